// ABOUTME: Build and product identification
// ABOUTME: Reported in client/hello device info and by the --version flag
package version

import "fmt"

// Version is overridden at build time with
// -ldflags "-X github.com/harperreed/truetime-go/internal/version.Version=..."
var Version = "0.1.0"

const (
	Product      = "Truetime Go"
	Manufacturer = "harperreed"
)

// String returns the product and version for display
func String() string {
	return fmt.Sprintf("%s %s", Product, Version)
}
