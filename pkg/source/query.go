// ABOUTME: Shared bookkeeping for one in-flight source query
// ABOUTME: Guarantees at-most-once delivery and releases resources on cancel
package source

import (
	"context"
	"sync"
)

// query tracks one Query call. Callbacks run with mu held, so once cancel
// returns no callback can be running or start later.
type query struct {
	mu        sync.Mutex
	finished  bool
	onSuccess func(int64, int64)
	onFailure func(error)
	releases  []func()

	ctx       context.Context
	cancelCtx context.CancelFunc
}

func newQuery(onSuccess func(int64, int64), onFailure func(error)) *query {
	ctx, cancel := context.WithCancel(context.Background())
	return &query{
		onSuccess: onSuccess,
		onFailure: onFailure,
		ctx:       ctx,
		cancelCtx: cancel,
	}
}

// succeed delivers an anchor unless the query already ended.
func (q *query) succeed(serverWallTimeAtReceiptMs, monotonicAtReceiptMs int64) bool {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return false
	}
	q.finished = true
	q.onSuccess(serverWallTimeAtReceiptMs, monotonicAtReceiptMs)
	q.mu.Unlock()

	q.release()
	return true
}

// fail delivers a failure unless the query already ended.
func (q *query) fail(err error) bool {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return false
	}
	q.finished = true
	q.onFailure(err)
	q.mu.Unlock()

	q.release()
	return true
}

// cancel implements truetime.CancelFunc.
func (q *query) cancel() {
	q.mu.Lock()
	q.finished = true
	q.mu.Unlock()

	q.release()
}

// track registers a resource to release when the query ends. If it already
// ended the resource is released immediately.
func (q *query) track(release func()) {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		release()
		return
	}
	q.releases = append(q.releases, release)
	q.mu.Unlock()
}

func (q *query) release() {
	q.cancelCtx()

	q.mu.Lock()
	releases := q.releases
	q.releases = nil
	q.mu.Unlock()

	for _, r := range releases {
		r()
	}
}
