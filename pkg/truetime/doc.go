// ABOUTME: True-time estimation package
// ABOUTME: Anchors a time authority's answer to the monotonic clock and derives drift on demand
// Package truetime estimates true wall-clock time on a device whose local clock
// may be wrong, stepped or drifting.
//
// A Coordinator runs one query at a time against a Source (an NTP server or a
// truetime authority, see the source package). The answer is stored as an
// Anchor: the authority's wall time paired with the device's monotonic reading
// at the moment the answer arrived. Because the monotonic clock is not affected
// by user or NTP adjustments, the anchor stays valid until reboot, and every
// call to SampleCurrentEstimate recomputes true time and drift from it.
//
// Example:
//
//	coord := truetime.NewCoordinator(truetime.Config{
//	    Source: source.NewNTP(source.NTPConfig{Host: "time.android.com"}),
//	    Observer: truetime.ObserverFuncs{
//	        Succeeded: func(est truetime.Estimate) { log.Printf("drift: %v", est.Drift()) },
//	    },
//	})
//	defer coord.Shutdown()
//	coord.StartSync()
//
//	if est, ok := coord.SampleCurrentEstimate(); ok {
//	    fmt.Println(est.TrueTime())
//	}
package truetime
