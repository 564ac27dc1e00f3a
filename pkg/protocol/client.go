// ABOUTME: WebSocket client for the truetime authority protocol
// ABOUTME: Handles connection, handshake, and routing of server/time replies
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// HandshakeTimeout bounds the wait for server/hello
const HandshakeTimeout = 5 * time.Second

// Config holds client configuration
type Config struct {
	ServerAddr string
	ClientID   string
	Name       string
	DeviceInfo DeviceInfo
	Logger     logrus.FieldLogger
}

// Client represents a WebSocket client
type Client struct {
	config Config
	logger logrus.FieldLogger
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Message channels
	TimeSyncResp chan ServerTime
	Errors       chan ServerError

	// Server identity from the handshake
	serverHello ServerHello

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		config:       config,
		logger:       logger.WithField("server", config.ServerAddr),
		TimeSyncResp: make(chan ServerTime, 10),
		Errors:       make(chan ServerError, 1),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Connect establishes WebSocket connection and performs handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: Path}
	c.logger.Debugf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		// Closed while dialing.
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("dial failed: %w", context.Canceled)
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	// Perform handshake
	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	// Start message reader
	go c.readMessages()

	return nil
}

// handshake performs the protocol handshake
func (c *Client) handshake() error {
	hello := ClientHello{
		ClientID:   c.config.ClientID,
		Name:       c.config.Name,
		Version:    ProtocolVersion,
		DeviceInfo: &c.config.DeviceInfo,
	}

	if err := c.sendJSON(Message{Type: TypeClientHello, Payload: hello}); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	// Wait for server/hello (with timeout)
	c.conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{}) // Clear deadline

	var serverMsg Message
	if err := json.Unmarshal(data, &serverMsg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	if serverMsg.Type != TypeServerHello {
		return fmt.Errorf("expected server/hello, got %s", serverMsg.Type)
	}

	var serverHello ServerHello
	if err := decodePayload(serverMsg.Payload, &serverHello); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	c.mu.Lock()
	c.serverHello = serverHello
	c.mu.Unlock()

	c.logger.WithField("server_id", serverHello.ServerID).Debugf("Handshake complete with %s", serverHello.Name)
	return nil
}

// decodePayload re-decodes a generic payload into a typed struct
func decodePayload(payload interface{}, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// sendJSON sends a JSON message
func (c *Client) sendJSON(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	return c.conn.WriteJSON(msg)
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer close(c.done)
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.WithError(err).Debug("Read error")
			}
			return
		}

		c.handleJSONMessage(data)
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.WithError(err).Warn("Failed to parse JSON message")
		return
	}

	switch msg.Type {
	case TypeServerTime:
		var timeMsg ServerTime
		if err := decodePayload(msg.Payload, &timeMsg); err != nil {
			c.logger.WithError(err).Warn("Failed to parse server/time")
			return
		}
		select {
		case c.TimeSyncResp <- timeMsg:
		case <-c.ctx.Done():
		}

	case TypeServerError:
		var serverErr ServerError
		if err := decodePayload(msg.Payload, &serverErr); err != nil {
			c.logger.WithError(err).Warn("Failed to parse server/error")
			return
		}
		select {
		case c.Errors <- serverErr:
		default:
			c.logger.Warnf("Dropping server error %s: %s", serverErr.Code, serverErr.Message)
		}

	default:
		c.logger.Debugf("Unknown message type: %s", msg.Type)
	}
}

// SendTimeSync sends a client/time message
func (c *Client) SendTimeSync(t1 int64) error {
	msg := Message{
		Type: TypeClientTime,
		Payload: ClientTime{
			ClientTransmitted: t1,
		},
	}
	return c.sendJSON(msg)
}

// SendGoodbye sends a client/goodbye message before disconnecting
func (c *Client) SendGoodbye(reason string) error {
	msg := Message{
		Type: TypeClientGoodbye,
		Payload: ClientGoodbye{
			Reason: reason,
		},
	}
	return c.sendJSON(msg)
}

// ServerHello returns the server identity received during the handshake
func (c *Client) ServerHello() ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverHello
}

// Close closes the connection. It is safe to call more than once and from
// any goroutine.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()
	if c.connected {
		c.connected = false
		c.conn.Close()
		c.logger.Debug("Connection closed")
	}
}

// Done is closed once the reader goroutine has exited. It never closes if
// Connect did not succeed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
