// ABOUTME: Truetime authority server package
// ABOUTME: Answers client/time requests with this host's wall clock
// Package authority serves the host's wall-clock time to truetime clients
// over a WebSocket, and optionally advertises itself via mDNS.
//
// Example:
//
//	srv, err := authority.NewServer(authority.Config{Port: 8928, Name: "rack-1", EnableMDNS: true})
//	go srv.Start()
//	defer srv.Stop()
package authority
