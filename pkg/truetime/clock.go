// ABOUTME: Wall and monotonic clock readings used to anchor server time
// ABOUTME: SystemClock prefers the boot-time counter, which keeps running through suspend
package truetime

import "time"

// Clock supplies the two local readings the estimate is built from.
type Clock interface {
	// MonotonicMs returns milliseconds of device uptime. It never goes
	// backwards and is unaffected by wall-clock changes.
	MonotonicMs() int64

	// WallClockMs returns the local wall-clock time in epoch milliseconds.
	WallClockMs() int64
}

// SystemClock reads the operating system clocks.
type SystemClock struct{}

var _ Clock = SystemClock{}

// WallClockMs returns time.Now in epoch milliseconds.
func (SystemClock) WallClockMs() int64 {
	return time.Now().UnixMilli()
}

// MonotonicMs returns milliseconds since boot where the platform exposes it,
// otherwise milliseconds since process start.
func (SystemClock) MonotonicMs() int64 {
	if ms, ok := bootTimeMs(); ok {
		return ms
	}
	return time.Since(processStart).Milliseconds()
}

// processStart carries Go's monotonic reading for the fallback path.
var processStart = time.Now()
