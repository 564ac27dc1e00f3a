// ABOUTME: Shared fixtures for source tests
// ABOUTME: Provides a settable clock, a quiet logger, and a result recorder
package source

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harperreed/truetime-go/pkg/truetime"
	"github.com/sirupsen/logrus"
)

type manualClock struct {
	mono atomic.Int64
	wall atomic.Int64
}

func newManualClock(mono, wall int64) *manualClock {
	c := &manualClock{}
	c.mono.Store(mono)
	c.wall.Store(wall)
	return c
}

func (c *manualClock) MonotonicMs() int64 { return c.mono.Load() }
func (c *manualClock) WallClockMs() int64 { return c.wall.Load() }

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// recorder captures the callbacks of one Query call.
type recorder struct {
	anchors chan truetime.Anchor
	errs    chan error
}

func newRecorder() *recorder {
	return &recorder{
		anchors: make(chan truetime.Anchor, 4),
		errs:    make(chan error, 4),
	}
}

func (r *recorder) onSuccess(server, mono int64) {
	r.anchors <- truetime.Anchor{ServerWallTimeAtReceiptMs: server, MonotonicAtReceiptMs: mono}
}

func (r *recorder) onFailure(err error) {
	r.errs <- err
}

func (r *recorder) waitAnchor(t *testing.T) truetime.Anchor {
	t.Helper()
	select {
	case a := <-r.anchors:
		return a
	case err := <-r.errs:
		t.Fatalf("expected success, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for success")
	}
	return truetime.Anchor{}
}

func (r *recorder) waitError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errs:
		return err
	case a := <-r.anchors:
		t.Fatalf("expected failure, got %+v", a)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for failure")
	}
	return nil
}

func (r *recorder) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case a := <-r.anchors:
		t.Fatalf("unexpected success %+v", a)
	case err := <-r.errs:
		t.Fatalf("unexpected failure %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}
