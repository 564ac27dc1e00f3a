// ABOUTME: Boot-time clock stub for platforms without CLOCK_BOOTTIME
// ABOUTME: SystemClock falls back to process-relative monotonic time

//go:build !linux

package truetime

func bootTimeMs() (int64, bool) {
	return 0, false
}
