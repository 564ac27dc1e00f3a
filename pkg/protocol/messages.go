// ABOUTME: Truetime authority protocol message type definitions
// ABOUTME: JSON envelopes exchanged over the /truetime websocket
package protocol

const (
	// ProtocolVersion is the version of the authority protocol we implement
	ProtocolVersion = 1

	// Path is the websocket endpoint served by authorities
	Path = "/truetime"

	TypeClientHello   = "client/hello"
	TypeServerHello   = "server/hello"
	TypeClientTime    = "client/time"
	TypeServerTime    = "server/time"
	TypeClientGoodbye = "client/goodbye"
	TypeServerError   = "server/error"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID   string      `json:"client_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ClientTime is sent for clock synchronization
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Client wall clock, Unix microseconds
}

// ServerTime is the response to client/time. All values are Unix microseconds.
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Echoed client timestamp
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}

// ServerError tells the client why a request was refused
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClientGoodbye is sent before a client disconnects
type ClientGoodbye struct {
	Reason string `json:"reason"`
}
