package executor

import (
	"context"
	"sync"

	"github.com/sakif/coderunner/internal/metrics"
)

// PullFunc fetches a single image.
type PullFunc func(ctx context.Context, ref string) PullResult

// PullAll runs pull for every ref with at most concurrency pulls in flight and
// returns the results in ref order. Refs still queued when ctx ends report
// ctx.Err().
func PullAll(ctx context.Context, refs []string, concurrency int, pull PullFunc) []PullResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]PullResult, len(refs))
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = PullResult{Image: ref, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			results[i] = pull(ctx, ref)
		}()
	}
	wg.Wait()

	for _, res := range results {
		metrics.ImagePulls.WithLabelValues(res.Image, res.Outcome()).Inc()
	}
	return results
}
