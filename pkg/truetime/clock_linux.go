// ABOUTME: Linux boot-time clock reading
// ABOUTME: CLOCK_BOOTTIME matches Android's elapsedRealtime, including time spent suspended

//go:build linux

package truetime

import "golang.org/x/sys/unix"

func bootTimeMs() (int64, bool) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return 0, false
	}
	return unix.TimespecToNsec(ts) / 1e6, true
}
