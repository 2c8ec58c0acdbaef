package spatial

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"fpdataset/internal/types"
)

type candidateKey struct {
	lat, lon, margin float64
}

// cachedSource memoizes candidate lookups in a fixed-size LRU. Failed
// lookups are not stored.
type cachedSource struct {
	source  CandidateSource
	entries *lru.Cache[candidateKey, []types.Building]
	hits    atomic.Int64
	misses  atomic.Int64
}

func newCachedSource(source CandidateSource, size int) (*cachedSource, error) {
	entries, err := lru.New[candidateKey, []types.Building](size)
	if err != nil {
		return nil, err
	}
	return &cachedSource{source: source, entries: entries}, nil
}

func (c *cachedSource) FetchBuildingCandidates(ctx context.Context, lat, lon, margin float64) ([]types.Building, error) {
	key := candidateKey{lat, lon, margin}
	if buildings, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return buildings, nil
	}
	c.misses.Add(1)

	buildings, err := c.source.FetchBuildingCandidates(ctx, lat, lon, margin)
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, buildings)
	return buildings, nil
}

func (c *cachedSource) stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.entries.Len()}
}

// CacheStats reports candidate cache usage.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}
