package processor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fpdataset/internal/monitoring"
	"fpdataset/internal/types"
)

// TrainingPath returns the training file written next to outputPath:
// outputPath without its extension, suffixed with _traindata.jsonl.
func TrainingPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_traindata.jsonl"
}

// ProcessToFile writes one JSON line per output record to outputPath and the
// matching training record to TrainingPath(outputPath). On error the lines
// written so far are kept.
func (p *Processor) ProcessToFile(ctx context.Context, start, end int64, outputPath string) (st Stats, err error) {
	st = Stats{
		RunID:        uuid.NewString(),
		Start:        start,
		End:          end,
		OutputPath:   outputPath,
		TrainingPath: TrainingPath(outputPath),
	}
	if err := checkRange(start, end); err != nil {
		return st, err
	}

	began := time.Now()
	defer func() {
		st.Elapsed = time.Since(began)
		st.Cache = p.matcher.CacheStats()
	}()

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return st, fmt.Errorf("create output directory: %w", err)
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return st, fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	train, err := os.Create(st.TrainingPath)
	if err != nil {
		return st, fmt.Errorf("create training file: %w", err)
	}
	defer train.Close()

	outBuf := bufio.NewWriter(out)
	trainBuf := bufio.NewWriter(train)
	defer outBuf.Flush()
	defer trainBuf.Flush()

	outEnc := json.NewEncoder(outBuf)
	outEnc.SetEscapeHTML(false)
	trainEnc := json.NewEncoder(trainBuf)
	trainEnc.SetEscapeHTML(false)

	monitoring.Logf("run %s: processing ids [%d, %d) into %s", st.RunID, start, end, outputPath)

	for rec, err := range p.records(ctx, start, end, &st) {
		if err != nil {
			return st, err
		}
		if err := outEnc.Encode(rec); err != nil {
			return st, fmt.Errorf("write output record: %w", err)
		}
		if err := trainEnc.Encode(types.NewTrainingRecord(rec)); err != nil {
			return st, fmt.Errorf("write training record: %w", err)
		}
	}

	if err := outBuf.Flush(); err != nil {
		return st, fmt.Errorf("flush output file: %w", err)
	}
	if err := trainBuf.Flush(); err != nil {
		return st, fmt.Errorf("flush training file: %w", err)
	}
	return st, nil
}
