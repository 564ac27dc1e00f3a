// ABOUTME: Observer receives the outcome of each sync attempt
// ABOUTME: Callbacks run on the coordinator goroutine
package truetime

// Observer is notified when the current sync attempt resolves. Superseded
// attempts are never reported.
//
// Callbacks run on the coordinator's goroutine: they may call StartSync and
// SampleCurrentEstimate, but must not call Shutdown or block for long.
type Observer interface {
	OnSyncSucceeded(estimate Estimate)
	OnSyncFailed(reason error)
}

// ObserverFuncs adapts a pair of functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Succeeded func(Estimate)
	Failed    func(error)
}

// OnSyncSucceeded calls Succeeded.
func (o ObserverFuncs) OnSyncSucceeded(estimate Estimate) {
	if o.Succeeded != nil {
		o.Succeeded(estimate)
	}
}

// OnSyncFailed calls Failed.
func (o ObserverFuncs) OnSyncFailed(reason error) {
	if o.Failed != nil {
		o.Failed(reason)
	}
}

// MultiObserver fans a result out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) OnSyncSucceeded(estimate Estimate) {
	for _, o := range m {
		o.OnSyncSucceeded(estimate)
	}
}

func (m MultiObserver) OnSyncFailed(reason error) {
	for _, o := range m {
		o.OnSyncFailed(reason)
	}
}
