// ABOUTME: Anchor pairs an authority's wall time with the local monotonic clock
// ABOUTME: The boot-relative true time derived from it stays constant until reboot
package truetime

import "time"

// Anchor is the result of one successful time query. Both readings come from
// the same exchange.
type Anchor struct {
	// ServerWallTimeAtReceiptMs is the authority's wall-clock time, in epoch
	// milliseconds, at the moment the device received the response.
	ServerWallTimeAtReceiptMs int64

	// MonotonicAtReceiptMs is the device's monotonic uptime reading at that
	// same moment.
	MonotonicAtReceiptMs int64
}

// BootRelativeTrueTimeMs returns the true wall-clock time at which the
// monotonic clock read zero. It is not an offset between two clocks: adding the
// current monotonic reading to it yields current true time.
func (a Anchor) BootRelativeTrueTimeMs() int64 {
	return a.ServerWallTimeAtReceiptMs - a.MonotonicAtReceiptMs
}

// ServerTime returns the anchored server time as a time.Time.
func (a Anchor) ServerTime() time.Time {
	return time.UnixMilli(a.ServerWallTimeAtReceiptMs)
}
