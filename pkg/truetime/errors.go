// ABOUTME: Failure reasons surfaced to sync observers
// ABOUTME: Both kinds are retryable by starting a new sync
package truetime

import (
	"errors"
	"fmt"
	"net"
)

// ErrSourceUnavailable reports that the time source could not be constructed
// or initialised for this attempt.
var ErrSourceUnavailable = errors.New("time source unavailable")

// NetworkError reports a failed exchange with the time authority.
type NetworkError struct {
	Op   string // "dial", "query", "read", ...
	Host string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Host == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Host, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the exchange failed because it took too long.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, ErrTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// ErrTimeout is used by sources that enforce their own deadline.
var ErrTimeout = errors.New("timeout")
