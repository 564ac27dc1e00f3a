// ABOUTME: Time sources for the truetime coordinator
// ABOUTME: NTP servers via beevik/ntp and truetime authorities via WebSocket
// Package source provides truetime.Source implementations.
//
// Each Query runs on its own goroutine, reports exactly once unless cancelled,
// and releases its socket when cancelled or finished.
//
// Example:
//
//	src := source.NewNTP(source.NTPConfig{Host: "pool.ntp.org"})
//	cancel := src.Query(onSuccess, onFailure)
//	defer cancel()
package source
