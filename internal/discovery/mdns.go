// ABOUTME: mDNS service discovery for truetime authorities
// ABOUTME: Handles both advertisement (authority side) and browsing (client side)
package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType is the mDNS service authorities advertise
const ServiceType = "_truetime._tcp"

// browseTimeout bounds each mDNS query round
const browseTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Logger      logrus.FieldLogger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	logger  logrus.FieldLogger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
	wg      sync.WaitGroup
}

// ServerInfo describes a discovered authority
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// Addr returns host:port
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Manager{
		config:  config,
		logger:  logger.WithField("component", "discovery"),
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise advertises this authority via mDNS
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=/truetime"},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Infof("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for authorities until Stop is called
func (m *Manager) Browse() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.browseLoop()
	}()
}

// browseLoop continuously browses for authorities
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		forwarded := make(chan struct{})

		go func() {
			defer close(forwarded)
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				server := &ServerInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}

				m.logger.Debugf("Discovered authority: %s at %s", server.Name, server.Addr())

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		params := &mdns.QueryParam{
			Service:     ServiceType,
			Domain:      "local",
			Timeout:     browseTimeout,
			Entries:     entries,
			DisableIPv6: true,
		}

		err := mdns.Query(params)
		close(entries)
		<-forwarded

		if err != nil {
			m.logger.WithError(err).Debug("mDNS query failed")
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// Servers returns the channel of discovered authorities
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Discover browses until the first authority is found or ctx ends
func (m *Manager) Discover(ctx context.Context) (*ServerInfo, error) {
	m.Browse()

	select {
	case server := <-m.servers:
		return server, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no authority found: %w", ctx.Err())
	case <-m.ctx.Done():
		return nil, fmt.Errorf("discovery stopped")
	}
}

// Stop stops the discovery manager and waits for its goroutines
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
