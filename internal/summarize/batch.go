package summarize

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultBatchConcurrency bounds concurrent summary generations.
const DefaultBatchConcurrency = 10

// BatchResult reports one record's outcome.
type BatchResult struct {
	RecordID string
	Summary  *Summary
	Quality  QualityReport
	Attempts int
	Err      error
}

// ProgressFunc receives per-record completion updates during a batch run.
type ProgressFunc func(done, total int, result BatchResult)

// SummarizeBatch runs the quality-gated pipeline over inputs with bounded
// concurrency. A record below the quality thresholds is regenerated up to
// MaxQualityRetries times; the best-scoring attempt wins. Results are in
// input order. Errors are per-record; the batch itself only fails on
// context cancellation.
func (s *Summarizer) SummarizeBatch(ctx context.Context, inputs []Input, concurrency int, progress ProgressFunc) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	results := make([]BatchResult, len(inputs))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	for i, in := range inputs {
		if err := sem.Acquire(ctx, 1); err != nil {
			return results, err
		}
		wg.Add(1)
		go func(i int, in Input) {
			defer wg.Done()
			defer sem.Release(1)

			results[i] = s.summarizeWithRetry(ctx, in)

			mu.Lock()
			done++
			d := done
			mu.Unlock()
			if progress != nil {
				progress(d, len(inputs), results[i])
			}
		}(i, in)
	}

	wg.Wait()
	return results, ctx.Err()
}

// summarizeWithRetry regenerates below-threshold summaries, keeping the best
// attempt seen.
func (s *Summarizer) summarizeWithRetry(ctx context.Context, in Input) BatchResult {
	res := BatchResult{RecordID: in.RecordID}
	source := BuildContext(in)

	for attempt := 1; attempt <= MaxQualityRetries; attempt++ {
		res.Attempts = attempt

		sum, err := s.generate(ctx, in, attempt == 1)
		if err != nil {
			res.Err = err
			return res
		}

		q := Assess(sum, source)
		if res.Summary == nil || q.Overall > res.Quality.Overall {
			res.Summary, res.Quality = sum, q
		}
		if q.Passes() {
			break
		}

		s.log.Debug().
			Str("record_id", in.RecordID).
			Int("attempt", attempt).
			Float64("overall", q.Overall).
			Float64("structure", q.Structure).
			Msg("summary below quality threshold, retrying")
	}

	// Keep the winning attempt in the cache.
	if s.cache != nil && res.Summary != nil {
		s.cache.Set(in.RecordID, source, res.Summary.Raw)
	}
	res.Err = ctx.Err()
	return res
}
