// ABOUTME: Tests for anchor arithmetic and drift sign convention
// ABOUTME: Covers epoch-scale values without overflow
package truetime

import (
	"testing"
	"time"
)

func TestBootRelativeTrueTime(t *testing.T) {
	a := Anchor{ServerWallTimeAtReceiptMs: 1_700_000_000_000, MonotonicAtReceiptMs: 500_000}
	if got, want := a.BootRelativeTrueTimeMs(), int64(1_699_999_500_000); got != want {
		t.Errorf("expected boot-relative %d, got %d", want, got)
	}
}

func TestComputeEstimateExample(t *testing.T) {
	a := Anchor{ServerWallTimeAtReceiptMs: 1_700_000_000_000, MonotonicAtReceiptMs: 500_000}

	est := ComputeEstimate(a, 502_500, 1_700_000_001_800)

	if est.EstimatedTrueTimeMs != 1_700_000_002_500 {
		t.Errorf("expected true time 1700000002500, got %d", est.EstimatedTrueTimeMs)
	}
	if est.DriftMs != 700 {
		t.Errorf("expected drift +700ms, got %d", est.DriftMs)
	}
	if !est.LocalLags() || est.LocalAhead() {
		t.Error("expected local clock to lag")
	}
	if est.Drift() != 700*time.Millisecond {
		t.Errorf("expected 700ms drift duration, got %v", est.Drift())
	}
}

func TestComputeEstimateAnchoring(t *testing.T) {
	const s, m = int64(1_650_000_123_456), int64(86_400_000)

	for _, elapsed := range []int64{0, 1, 999, 3_600_000, 90 * 86_400_000} {
		est := ComputeEstimate(Anchor{s, m}, m+elapsed, 0)
		if est.EstimatedTrueTimeMs != s+elapsed {
			t.Errorf("elapsed %d: expected %d, got %d", elapsed, s+elapsed, est.EstimatedTrueTimeMs)
		}
	}
}

func TestDriftSign(t *testing.T) {
	a := Anchor{ServerWallTimeAtReceiptMs: 2_000_000, MonotonicAtReceiptMs: 1_000}

	tests := []struct {
		name      string
		wall      int64
		wantDrift int64
		lags      bool
		ahead     bool
	}{
		{name: "local lags", wall: 1_999_000, wantDrift: 1_000, lags: true},
		{name: "local ahead", wall: 2_000_250, wantDrift: -250, ahead: true},
		{name: "exact", wall: 2_000_000, wantDrift: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := ComputeEstimate(a, 1_000, tt.wall)
			if est.DriftMs != tt.wantDrift {
				t.Errorf("expected drift %d, got %d", tt.wantDrift, est.DriftMs)
			}
			if est.LocalLags() != tt.lags {
				t.Errorf("expected LocalLags=%v", tt.lags)
			}
			if est.LocalAhead() != tt.ahead {
				t.Errorf("expected LocalAhead=%v", tt.ahead)
			}
		})
	}
}

func TestEstimateTimes(t *testing.T) {
	est := ComputeEstimate(Anchor{1_700_000_000_000, 0}, 0, 1_700_000_000_000)
	if !est.TrueTime().Equal(time.UnixMilli(1_700_000_000_000)) {
		t.Errorf("unexpected true time %v", est.TrueTime())
	}
	if !est.LocalTime().Equal(est.TrueTime()) {
		t.Errorf("expected local time to equal true time, got %v", est.LocalTime())
	}
}

func TestSystemClockMonotonic(t *testing.T) {
	var c SystemClock
	first := c.MonotonicMs()
	time.Sleep(5 * time.Millisecond)
	second := c.MonotonicMs()
	if second < first {
		t.Errorf("monotonic clock went backwards: %d then %d", first, second)
	}
	if c.WallClockMs() <= 0 {
		t.Error("expected positive wall clock")
	}
}
