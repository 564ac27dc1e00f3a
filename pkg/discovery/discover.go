// ABOUTME: One-shot browse for truetime authorities
// ABOUTME: Collects unique authorities seen within a time window
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/harperreed/truetime-go/internal/discovery"
	"github.com/sirupsen/logrus"
)

// ErrNoAuthorities is returned when the browse window ends empty
var ErrNoAuthorities = errors.New("no truetime authorities found")

// Service is a discovered authority
type Service struct {
	Name string
	Host string
	Port int
}

// Addr returns host:port
func (s Service) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// Discover browses for authorities for up to timeout, or until ctx ends
func Discover(ctx context.Context, timeout time.Duration) ([]Service, error) {
	m := discovery.NewManager(discovery.Config{Logger: logrus.StandardLogger()})
	defer m.Stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m.Browse()
	services := collect(ctx, m.Servers())
	if len(services) == 0 {
		return nil, ErrNoAuthorities
	}
	return services, nil
}

// collect drains servers until ctx ends, keeping the first entry per address
func collect(ctx context.Context, servers <-chan *discovery.ServerInfo) []Service {
	var services []Service
	seen := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return services
		case info := <-servers:
			svc := Service{Name: info.Name, Host: info.Host, Port: info.Port}
			if seen[svc.Addr()] {
				continue
			}
			seen[svc.Addr()] = true
			services = append(services, svc)
		}
	}
}
