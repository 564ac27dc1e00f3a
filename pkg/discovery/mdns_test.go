// ABOUTME: Tests for authority discovery
// ABOUTME: Feeds browse results through a channel to check de-duplication
package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/harperreed/truetime-go/internal/discovery"
)

func TestCollectDeduplicates(t *testing.T) {
	servers := make(chan *discovery.ServerInfo, 4)
	servers <- &discovery.ServerInfo{Name: "a", Host: "10.0.0.1", Port: 8928}
	servers <- &discovery.ServerInfo{Name: "a again", Host: "10.0.0.1", Port: 8928}
	servers <- &discovery.ServerInfo{Name: "b", Host: "10.0.0.2", Port: 8928}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	services := collect(ctx, servers)
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d: %+v", len(services), services)
	}
	if services[0].Name != "a" || services[1].Name != "b" {
		t.Errorf("unexpected services %+v", services)
	}
}

func TestCollectEmpty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if services := collect(ctx, make(chan *discovery.ServerInfo)); len(services) != 0 {
		t.Errorf("expected no services, got %+v", services)
	}
}

func TestServiceAddr(t *testing.T) {
	tests := []struct {
		svc  Service
		want string
	}{
		{Service{Host: "10.0.0.1", Port: 8928}, "10.0.0.1:8928"},
		{Service{Host: "fe80::1", Port: 123}, "[fe80::1]:123"},
	}

	for _, tt := range tests {
		if got := tt.svc.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}
