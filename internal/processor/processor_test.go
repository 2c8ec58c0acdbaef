package processor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpdataset/internal/grid"
	"fpdataset/internal/monitoring"
	"fpdataset/internal/spatial"
	"fpdataset/internal/types"
)

var testGrid = grid.NewMatcher(grid.DefaultLevel)

type window struct{ start, end int64 }

type fakeSource struct {
	rows      map[int64]types.Location
	buildings []types.Building
	fetchErr  error
	failAt    int64

	windows        []window
	candidateCalls int
}

func newFakeSource(ids ...int64) *fakeSource {
	f := &fakeSource{rows: map[int64]types.Location{}}
	for _, id := range ids {
		lat := 37.5 + float64(id)*0.0001
		lon := 127.0 + float64(id)*0.0001
		f.rows[id] = types.Location{
			ID:        id,
			Latitude:  lat,
			Longitude: lon,
			LCellID:   fmt.Sprintf("cell-%d", id),
			WMAC:      "aa:bb:cc:dd:ee:01,aa:bb:cc:dd:ee:02",
			WRSSI:     "-85.0,-60.5",
			IPCIKey:   "k",
			GridCell:  testGrid.Match(lat, lon),
		}
	}
	return f
}

func (f *fakeSource) FetchRange(_ context.Context, start, end int64) ([]types.Location, error) {
	f.windows = append(f.windows, window{start, end})
	if f.fetchErr != nil && start >= f.failAt {
		return nil, f.fetchErr
	}
	var out []types.Location
	for id := start; id < end; id++ {
		if l, ok := f.rows[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeSource) FetchBuildingCandidates(_ context.Context, lat, lon, margin float64) ([]types.Building, error) {
	f.candidateCalls++
	var out []types.Building
	for _, b := range f.buildings {
		if b.MinX <= lon+margin && b.MaxX >= lon-margin && b.MinY <= lat+margin && b.MaxY >= lat-margin {
			out = append(out, b)
		}
	}
	return out, nil
}

func newTestProcessor(src *fakeSource, cfg Config) *Processor {
	m := spatial.NewMatcher(src, testGrid, spatial.Options{Margin: 0.01})
	return New(src, testGrid, m, cfg)
}

func collect(t *testing.T, p *Processor, start, end int64) ([]types.OutputRecord, error) {
	t.Helper()
	var recs []types.OutputRecord
	for rec, err := range p.ProcessRange(context.Background(), start, end) {
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func TestProcessRangeWindows(t *testing.T) {
	src := newFakeSource(10, 11, 12, 15, 19)
	p := newTestProcessor(src, Config{BatchSize: 3})

	recs, err := collect(t, p, 10, 20)
	require.NoError(t, err)

	assert.Equal(t, []window{{10, 13}, {13, 16}, {16, 19}, {19, 20}}, src.windows)
	require.Len(t, recs, 5)
	for i, id := range []int64{10, 11, 12, 15, 19} {
		assert.Equal(t, []string{fmt.Sprintf("cell-%d", id)}, recs[i].Input.LCellID)
		assert.Equal(t, src.rows[id].GridCell, recs[i].Answer.GridCell)
	}
}

func TestProcessRangeEmptyAndInvalid(t *testing.T) {
	src := newFakeSource(1, 2, 3)
	p := newTestProcessor(src, Config{BatchSize: 10})

	recs, err := collect(t, p, 5, 5)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, src.windows)

	_, err = collect(t, p, 6, 5)
	assert.True(t, errors.Is(err, ErrInvalidRange))
	assert.Empty(t, src.windows)
}

func TestProcessRangeSkipsEmptyWindows(t *testing.T) {
	src := newFakeSource(0, 250)
	var batches []BatchStat
	p := newTestProcessor(src, Config{BatchSize: 100, OnBatch: func(b BatchStat) { batches = append(batches, b) }})

	recs, err := collect(t, p, 0, 300)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []int{1, 0, 1}, []int{batches[0].Rows, batches[1].Rows, batches[2].Rows})
}

func TestProcessRangeNotRestartable(t *testing.T) {
	src := newFakeSource(1, 2)
	p := newTestProcessor(src, Config{})
	seq := p.ProcessRange(context.Background(), 0, 10)

	n := 0
	for _, err := range seq {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 2, n)

	var errs []error
	for _, err := range seq {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrSequenceConsumed))
	assert.Len(t, src.windows, 1)
}

func TestProcessRangeEarlyBreak(t *testing.T) {
	src := newFakeSource(1, 2, 3, 4, 5, 6)
	p := newTestProcessor(src, Config{BatchSize: 2})

	for _, err := range p.ProcessRange(context.Background(), 1, 7) {
		require.NoError(t, err)
		break
	}
	assert.Len(t, src.windows, 1)
}

func TestProcessRangeFetchError(t *testing.T) {
	boom := errors.New("lost connection")
	src := newFakeSource(1, 2, 3, 4)
	src.fetchErr = boom
	src.failAt = 3
	p := newTestProcessor(src, Config{BatchSize: 2})

	recs, err := collect(t, p, 1, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Len(t, recs, 2)
}

func TestProcessRangeMalformedRSSI(t *testing.T) {
	src := newFakeSource(1)
	loc := src.rows[1]
	loc.WRSSI = "-70,strong"
	src.rows[1] = loc
	p := newTestProcessor(src, Config{})

	_, err := collect(t, p, 0, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location 1: wrssi")
}

func TestProcessRangeBuildingSearch(t *testing.T) {
	src := newFakeSource(1, 2)
	home := src.rows[1]
	src.buildings = []types.Building{{
		UID:  "B-1",
		MinX: home.Longitude - 0.00001, MaxX: home.Longitude + 0.00001,
		MinY: home.Latitude - 0.00001, MaxY: home.Latitude + 0.00001,
	}}

	t.Run("disabled", func(t *testing.T) {
		src.candidateCalls = 0
		recs, err := collect(t, newTestProcessor(src, Config{}), 0, 3)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		for _, r := range recs {
			assert.Nil(t, r.Answer.Buildings)
		}
		assert.Zero(t, src.candidateCalls)
	})

	t.Run("enabled", func(t *testing.T) {
		src.candidateCalls = 0
		recs, err := collect(t, newTestProcessor(src, Config{BuildingSearch: true}), 0, 3)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, 2, src.candidateCalls)

		require.Len(t, recs[0].Answer.Buildings, 1)
		assert.Equal(t, "B-1", recs[0].Answer.Buildings[0].UID)
		assert.NotNil(t, recs[1].Answer.Buildings)
		assert.Empty(t, recs[1].Answer.Buildings)
	})
}

func TestProcessRangeWithoutMatcher(t *testing.T) {
	src := newFakeSource(1, 2, 3)

	var batches []BatchStat
	p := New(src, nil, nil, Config{BatchSize: 2, OnBatch: func(b BatchStat) { batches = append(batches, b) }})
	recs, err := collect(t, p, 1, 4)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for _, r := range recs {
		assert.Nil(t, r.Answer.Buildings)
	}
	require.Len(t, batches, 2)
	assert.Zero(t, batches[0].GridMismatches+batches[1].GridMismatches)

	out := filepath.Join(t.TempDir(), "result.jsonl")
	st, err := New(src, nil, nil, Config{}).ProcessToFile(context.Background(), 1, 4, out)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, spatial.CacheStats{}, st.Cache)

	_, err = collect(t, New(src, nil, nil, Config{BuildingSearch: true}), 1, 4)
	assert.True(t, errors.Is(err, ErrNoMatcher))
	assert.Len(t, src.windows, 3, "no window is fetched without a matcher")
}

func TestProcessRangeKeepsStoredGridCell(t *testing.T) {
	var logged []string
	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = append(logged, fmt.Sprintf(format, v...)) })
	defer func() { monitoring.Logf = original }()

	src := newFakeSource(1)
	loc := src.rows[1]
	loc.GridCell = types.GridCell{XID: 1, YID: 1}
	src.rows[1] = loc

	var batches []BatchStat
	p := newTestProcessor(src, Config{OnBatch: func(b BatchStat) { batches = append(batches, b) }})
	recs, err := collect(t, p, 1, 2)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, types.GridCell{XID: 1, YID: 1}, recs[0].Answer.GridCell)
	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].GridMismatches)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "stored cell x_id=1,y_id=1")
}

func TestProcessRangeCanceled(t *testing.T) {
	src := newFakeSource(1)
	p := newTestProcessor(src, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got error
	for _, err := range p.ProcessRange(ctx, 0, 10) {
		got = err
	}
	assert.True(t, errors.Is(got, context.Canceled))
	assert.Empty(t, src.windows)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestProcessToFile(t *testing.T) {
	src := newFakeSource(1, 2, 3)
	p := newTestProcessor(src, Config{BatchSize: 2})
	out := filepath.Join(t.TempDir(), "output", "result.jsonl")

	st, err := p.ProcessToFile(context.Background(), 1, 4, out)
	require.NoError(t, err)

	assert.Equal(t, 3, st.Records)
	assert.Len(t, st.Batches, 2)
	assert.NotEmpty(t, st.RunID)
	assert.Equal(t, filepath.Join(filepath.Dir(out), "result_traindata.jsonl"), st.TrainingPath)
	assert.True(t, st.Elapsed > 0)

	lines := readLines(t, out)
	require.Len(t, lines, 3)
	assert.Equal(t,
		fmt.Sprintf(`{"input":{"lcellid":["cell-1"],"wmac":["aa:bb:cc:dd:ee:01","aa:bb:cc:dd:ee:02"],"wrssi":[-85,-60.5],"ipcikey":["k"]},"answer":{"grid_cell":{"x_id":%d,"y_id":%d}}}`,
			src.rows[1].GridCell.XID, src.rows[1].GridCell.YID),
		lines[0])

	train := readLines(t, st.TrainingPath)
	require.Len(t, train, 3)
	for i, line := range train {
		var tr types.TrainingRecord
		require.NoError(t, json.Unmarshal([]byte(line), &tr))
		assert.Equal(t, "wmac=aa:bb:cc:dd:ee:01,aa:bb:cc:dd:ee:02 wrssi=-85,-60.5 lcellid=cell-"+fmt.Sprint(i+1)+" ipcikey=k", tr.Prompt)

		var cell types.GridCell
		_, err := fmt.Sscanf(tr.Completion, "x_id=%d,y_id=%d", &cell.XID, &cell.YID)
		require.NoError(t, err)

		var rec struct {
			Answer struct {
				GridCell types.GridCell `json:"grid_cell"`
			} `json:"answer"`
		}
		require.NoError(t, json.Unmarshal([]byte(lines[i]), &rec))
		if diff := cmp.Diff(rec.Answer.GridCell, cell); diff != "" {
			t.Errorf("line %d: completion disagrees with output (-output +completion):\n%s", i, diff)
		}
	}
}

func TestProcessToFileEmptyRange(t *testing.T) {
	src := newFakeSource()
	p := newTestProcessor(src, Config{})
	out := filepath.Join(t.TempDir(), "empty.jsonl")

	st, err := p.ProcessToFile(context.Background(), 100, 200, out)
	require.NoError(t, err)
	assert.Zero(t, st.Records)
	assert.Zero(t, st.PerRecord())
	assert.Zero(t, st.Throughput())
	assert.Equal(t, 1, st.EmptyBatches())

	assert.Empty(t, readLines(t, out))
	assert.Empty(t, readLines(t, TrainingPath(out)))
}

func TestProcessToFileInvalidRange(t *testing.T) {
	out := filepath.Join(t.TempDir(), "never.jsonl")
	_, err := newTestProcessor(newFakeSource(), Config{}).ProcessToFile(context.Background(), 9, 3, out)
	assert.True(t, errors.Is(err, ErrInvalidRange))
	assert.NoFileExists(t, out)
}

func TestProcessToFileKeepsPartialOutput(t *testing.T) {
	src := newFakeSource(1, 2, 3, 4)
	src.fetchErr = errors.New("server gone away")
	src.failAt = 3
	p := newTestProcessor(src, Config{BatchSize: 2})
	out := filepath.Join(t.TempDir(), "partial.jsonl")

	st, err := p.ProcessToFile(context.Background(), 1, 5, out)
	require.Error(t, err)
	assert.Equal(t, 2, st.Records)
	assert.Len(t, readLines(t, out), 2)
	assert.Len(t, readLines(t, TrainingPath(out)), 2)
}

func TestTrainingPath(t *testing.T) {
	tests := map[string]string{
		"output/result.jsonl": "output/result_traindata.jsonl",
		"result":              "result_traindata.jsonl",
		"a.b/result.json":     "a.b/result_traindata.jsonl",
	}
	for in, want := range tests {
		assert.Equal(t, want, TrainingPath(in), in)
	}
}

func TestStatsRates(t *testing.T) {
	var zero Stats
	assert.Zero(t, zero.PerRecord())
	assert.Zero(t, zero.Throughput())
	assert.Zero(t, zero.FetchShare())
	assert.Zero(t, zero.MatchShare())

	s := Stats{Records: 4, Elapsed: 2e9, FetchTime: 5e8, MatchTime: 1e9}
	assert.Equal(t, 2.0, s.Throughput())
	assert.Equal(t, int64(5e8), int64(s.PerRecord()))
	assert.InDelta(t, 25.0, s.FetchShare(), 1e-9)
	assert.InDelta(t, 50.0, s.MatchShare(), 1e-9)
}
