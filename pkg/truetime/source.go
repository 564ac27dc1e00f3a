// ABOUTME: Contract for a single asynchronous time query
// ABOUTME: Implemented by the NTP and authority sources in the source package
package truetime

// CancelFunc stops a query. After it returns no callback of that query will
// run and the query's sockets and timers are released. Calling it again, or
// after the query completed, does nothing.
type CancelFunc func()

// Source performs one exchange with a time authority per Query call.
//
// Exactly one of onSuccess or onFailure runs, exactly once, unless the query is
// cancelled first. Callbacks may run on any goroutine. Sources do their own
// retries, if any.
type Source interface {
	Query(onSuccess func(serverWallTimeAtReceiptMs, monotonicAtReceiptMs int64), onFailure func(reason error)) CancelFunc
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(onSuccess func(serverWallTimeAtReceiptMs, monotonicAtReceiptMs int64), onFailure func(reason error)) CancelFunc

// Query calls f.
func (f SourceFunc) Query(onSuccess func(int64, int64), onFailure func(error)) CancelFunc {
	return f(onSuccess, onFailure)
}
