// ABOUTME: mDNS service discovery package
// ABOUTME: Discover truetime authorities on the local network
// Package discovery finds truetime authorities advertised over mDNS.
//
// Example:
//
//	services, err := discovery.Discover(ctx, 3*time.Second)
//	for _, svc := range services {
//	    fmt.Printf("Found: %s at %s\n", svc.Name, svc.Addr())
//	}
package discovery
