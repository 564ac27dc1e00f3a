// ABOUTME: Blocking helper that runs a single query against any source
// ABOUTME: Used by one-shot tools that do not need a coordinator
package source

import (
	"context"

	"github.com/harperreed/truetime-go/pkg/truetime"
)

// QueryOnce runs one query and waits for its result. Cancelling ctx cancels
// the query.
func QueryOnce(ctx context.Context, src truetime.Source) (truetime.Anchor, error) {
	type result struct {
		anchor truetime.Anchor
		err    error
	}
	results := make(chan result, 1)

	cancel := src.Query(
		func(server, mono int64) {
			results <- result{anchor: truetime.Anchor{ServerWallTimeAtReceiptMs: server, MonotonicAtReceiptMs: mono}}
		},
		func(err error) {
			results <- result{err: err}
		},
	)
	defer cancel()

	select {
	case r := <-results:
		return r.anchor, r.err
	case <-ctx.Done():
		return truetime.Anchor{}, ctx.Err()
	}
}
