// ABOUTME: Tests for the NTP source
// ABOUTME: Replaces the network query to check anchoring, validation and cancellation
package source

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/harperreed/truetime-go/pkg/truetime"
)

func newTestNTP(clock truetime.Clock, fn queryFunc) *NTP {
	n := NewNTP(NTPConfig{Host: "ntp.test", Clock: clock, Logger: quietLogger()})
	n.query = fn
	return n
}

func TestNTPDefaults(t *testing.T) {
	n := NewNTP(NTPConfig{Logger: quietLogger()})
	if n.Host() != DefaultNTPHost {
		t.Errorf("expected host %s, got %s", DefaultNTPHost, n.Host())
	}
	if n.timeout != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, n.timeout)
	}
}

func TestNTPAnchorsOffset(t *testing.T) {
	clock := newManualClock(42_000, 1_700_000_000_000)
	now := time.UnixMilli(1_700_000_000_000)

	n := newTestNTP(clock, func(host string, opts ntp.QueryOptions) (*ntp.Response, error) {
		if host != "ntp.test" {
			t.Errorf("unexpected host %s", host)
		}
		if opts.Timeout != DefaultTimeout {
			t.Errorf("unexpected timeout %v", opts.Timeout)
		}
		return &ntp.Response{
			Time:          now,
			ReferenceTime: now.Add(-time.Minute),
			Stratum:       2,
			ClockOffset:   1500 * time.Millisecond,
			RTT:           20 * time.Millisecond,
		}, nil
	})

	rec := newRecorder()
	cancel := n.Query(rec.onSuccess, rec.onFailure)
	defer cancel()

	anchor := rec.waitAnchor(t)
	if anchor.ServerWallTimeAtReceiptMs != 1_700_000_001_500 {
		t.Errorf("expected server time 1700000001500, got %d", anchor.ServerWallTimeAtReceiptMs)
	}
	if anchor.MonotonicAtReceiptMs != 42_000 {
		t.Errorf("expected monotonic 42000, got %d", anchor.MonotonicAtReceiptMs)
	}
}

func TestNTPRejectsInvalidResponse(t *testing.T) {
	now := time.Now()
	n := newTestNTP(newManualClock(0, 0), func(string, ntp.QueryOptions) (*ntp.Response, error) {
		return &ntp.Response{Time: now, ReferenceTime: now, Stratum: 0}, nil
	})

	rec := newRecorder()
	cancel := n.Query(rec.onSuccess, rec.onFailure)
	defer cancel()

	err := rec.waitError(t)
	var netErr *truetime.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if netErr.Op != "validate" || netErr.Host != "ntp.test" {
		t.Errorf("unexpected error fields %+v", netErr)
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestNTPNetworkFailure(t *testing.T) {
	n := newTestNTP(newManualClock(0, 0), func(string, ntp.QueryOptions) (*ntp.Response, error) {
		return nil, timeoutError{}
	})

	rec := newRecorder()
	cancel := n.Query(rec.onSuccess, rec.onFailure)
	defer cancel()

	err := rec.waitError(t)
	var netErr *truetime.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if !netErr.Timeout() {
		t.Error("expected a timeout")
	}
}

func TestNTPCancelClosesSocket(t *testing.T) {
	// A UDP peer that never answers.
	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()

	dialed := make(chan struct{})
	returned := make(chan error, 1)
	n := newTestNTP(newManualClock(0, 0), func(host string, opts ntp.QueryOptions) (*ntp.Response, error) {
		conn, err := opts.Dialer("", peer.LocalAddr().String())
		if err != nil {
			returned <- err
			return nil, err
		}
		close(dialed)

		_, err = conn.Read(make([]byte, 48))
		returned <- err
		return nil, err
	})

	rec := newRecorder()
	cancel := n.Query(rec.onSuccess, rec.onFailure)

	select {
	case <-dialed:
	case err := <-returned:
		t.Fatalf("dial failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("query never dialed")
	}

	cancel()

	select {
	case err := <-returned:
		if !errors.Is(err, net.ErrClosed) {
			t.Errorf("expected read on closed socket, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not unblock the query")
	}

	rec.expectQuiet(t)
}
