// ABOUTME: Tests for truetime protocol messages and offset math
// ABOUTME: Verifies wire field names and NTP-style offset calculation
package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestServerTimeWireFormat(t *testing.T) {
	msg := Message{
		Type: TypeServerTime,
		Payload: ServerTime{
			ClientTransmitted: 1,
			ServerReceived:    2,
			ServerTransmitted: 3,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	for _, field := range []string{`"type":"server/time"`, `"client_transmitted":1`, `"server_received":2`, `"server_transmitted":3`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("expected %s in %s", field, data)
		}
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	var st ServerTime
	if err := decodePayload(decoded.Payload, &st); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if st.ServerTransmitted != 3 {
		t.Errorf("expected server_transmitted 3, got %d", st.ServerTransmitted)
	}
}

func TestRTTCalculation(t *testing.T) {
	// Simulate a sync exchange with 4.5ms RTT
	e := Exchange{
		T1: 1000000, // Client send
		T2: 1002000, // Server receive, +2ms
		T3: 1002500, // Server send, +0.5ms processing
		T4: 1005000, // Client receive, +5ms total
	}

	// RTT = (t4-t1) - (t3-t2) = 5000 - 500 = 4500µs
	if rtt := e.RTT(); rtt != 4500 {
		t.Errorf("expected RTT 4500µs, got %dµs", rtt)
	}
}

func TestOffsetCalculation(t *testing.T) {
	tests := []struct {
		name       string
		exchange   Exchange
		wantOffset int64
	}{
		{
			name:       "clocks agree",
			exchange:   Exchange{T1: 1000, T2: 1500, T3: 1600, T4: 2100},
			wantOffset: 0,
		},
		{
			name:       "server ahead by one second",
			exchange:   Exchange{T1: 1000, T2: 1001500, T3: 1001600, T4: 2100},
			wantOffset: 1000000,
		},
		{
			name:       "server behind",
			exchange:   Exchange{T1: 5000000, T2: 3000500, T3: 3000600, T4: 5001100},
			wantOffset: -2000000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.exchange.Offset(); got != tt.wantOffset {
				t.Errorf("expected offset %d, got %d", tt.wantOffset, got)
			}
			if got, want := tt.exchange.ServerTimeAtReceipt(), tt.exchange.T4+tt.wantOffset; got != want {
				t.Errorf("expected server time at receipt %d, got %d", want, got)
			}
		})
	}
}

func TestNewExchange(t *testing.T) {
	e := NewExchange(ServerTime{ClientTransmitted: 10, ServerReceived: 20, ServerTransmitted: 30}, 40)
	if e != (Exchange{T1: 10, T2: 20, T3: 30, T4: 40}) {
		t.Errorf("unexpected exchange %+v", e)
	}
}
