// ABOUTME: Offset calculation from an anchor and current clock readings
// ABOUTME: Estimates are always recomputed, never cached
package truetime

import "time"

// Estimate is a true-time reading derived from an Anchor at one instant.
type Estimate struct {
	// EstimatedTrueTimeMs is the estimated true wall-clock time in epoch ms.
	EstimatedTrueTimeMs int64

	// DriftMs is EstimatedTrueTimeMs minus the local wall clock. Positive means
	// the local clock lags true time, negative means it is ahead.
	DriftMs int64

	// Readings the estimate was computed from.
	MonotonicMs  int64
	WallClockMs  int64
	BootRelative int64
}

// ComputeEstimate derives current true time and drift from an anchor and the
// current monotonic and wall-clock readings.
func ComputeEstimate(anchor Anchor, nowMonotonicMs, nowWallClockMs int64) Estimate {
	bootRelative := anchor.BootRelativeTrueTimeMs()
	trueTime := bootRelative + nowMonotonicMs

	return Estimate{
		EstimatedTrueTimeMs: trueTime,
		DriftMs:             trueTime - nowWallClockMs,
		MonotonicMs:         nowMonotonicMs,
		WallClockMs:         nowWallClockMs,
		BootRelative:        bootRelative,
	}
}

// TrueTime returns the estimated true time.
func (e Estimate) TrueTime() time.Time {
	return time.UnixMilli(e.EstimatedTrueTimeMs)
}

// LocalTime returns the local wall-clock reading the estimate was taken against.
func (e Estimate) LocalTime() time.Time {
	return time.UnixMilli(e.WallClockMs)
}

// Drift returns DriftMs as a duration.
func (e Estimate) Drift() time.Duration {
	return time.Duration(e.DriftMs) * time.Millisecond
}

// LocalLags reports whether the local wall clock is behind true time.
func (e Estimate) LocalLags() bool {
	return e.DriftMs > 0
}

// LocalAhead reports whether the local wall clock is ahead of true time.
func (e Estimate) LocalAhead() bool {
	return e.DriftMs < 0
}
