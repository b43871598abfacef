package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Summary tallies batch outcomes per category.
type Summary struct {
	Accepted  int
	Review    int
	Rejected  int
	Unchanged int
	Failed    int
	Results   []Result
}

// Total returns the number of sources processed.
func (s *Summary) Total() int {
	return s.Accepted + s.Review + s.Rejected + s.Unchanged + s.Failed
}

func (s *Summary) count(r Result) {
	switch r.Outcome {
	case OutcomeAccepted:
		s.Accepted++
	case OutcomeReview:
		s.Review++
	case OutcomeRejected:
		s.Rejected++
	case OutcomeUnchanged:
		s.Unchanged++
	default:
		s.Failed++
	}
}

// ProcessBatch runs sources through the pipeline with at most concurrency
// in flight. A failing source is recorded in the summary and never stops
// the batch.
func (r *Runner) ProcessBatch(ctx context.Context, inputs []SourceInput, concurrency int) *Summary {
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	summary := &Summary{Results: make([]Result, len(inputs))}

	for i, in := range inputs {
		g.Go(func() error {
			res := r.Process(gctx, in)
			if res.Err != nil {
				zap.L().Error("pipeline: source failed",
					zap.String("url", in.URL),
					zap.Error(res.Err),
				)
			}
			mu.Lock()
			summary.Results[i] = res
			summary.count(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("pipeline: batch complete",
		zap.Int("total", summary.Total()),
		zap.Int("accepted", summary.Accepted),
		zap.Int("review", summary.Review),
		zap.Int("rejected", summary.Rejected),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("failed", summary.Failed),
	)
	return summary
}
