package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harperreed/truetime-go/pkg/truetime"
)

func TestQueryOnce(t *testing.T) {
	src := truetime.SourceFunc(func(onSuccess func(int64, int64), onFailure func(error)) truetime.CancelFunc {
		go onSuccess(1_000, 2_000)
		return func() {}
	})

	anchor, err := QueryOnce(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if anchor.ServerWallTimeAtReceiptMs != 1_000 || anchor.MonotonicAtReceiptMs != 2_000 {
		t.Errorf("unexpected anchor %+v", anchor)
	}
}

func TestQueryOnceFailure(t *testing.T) {
	boom := errors.New("boom")
	src := truetime.SourceFunc(func(onSuccess func(int64, int64), onFailure func(error)) truetime.CancelFunc {
		onFailure(boom)
		return func() {}
	})

	if _, err := QueryOnce(context.Background(), src); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestQueryOnceContextCancels(t *testing.T) {
	cancelled := make(chan struct{})
	src := truetime.SourceFunc(func(func(int64, int64), func(error)) truetime.CancelFunc {
		return func() { close(cancelled) }
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := QueryOnce(ctx, src); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	select {
	case <-cancelled:
	default:
		t.Error("expected the query to be cancelled")
	}
}
