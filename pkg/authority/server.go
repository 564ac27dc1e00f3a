// ABOUTME: WebSocket time authority server
// ABOUTME: Handles handshake, rate-limited time replies, and graceful shutdown
package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harperreed/truetime-go/internal/discovery"
	"github.com/harperreed/truetime-go/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultPort is the port authorities listen on
	DefaultPort = 8928

	// DefaultRequestRate is the per-client client/time budget
	DefaultRequestRate = 10

	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Config configures an authority server
type Config struct {
	// Port to listen on (default: 8928)
	Port int

	// Name of the server for identification
	Name string

	// EnableMDNS enables mDNS service advertisement
	EnableMDNS bool

	// RequestRate limits client/time requests per client per second
	// (default: 10). Burst is the same value.
	RequestRate float64

	// Clock supplies the served time (default: the real clock)
	Clock clockwork.Clock

	// Logger defaults to the logrus standard logger
	Logger logrus.FieldLogger

	// Registerer receives the server metrics if set
	Registerer prometheus.Registerer
}

// Server is a truetime authority
type Server struct {
	config   Config
	serverID string
	logger   logrus.FieldLogger
	clock    clockwork.Clock

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	// Client management
	clients   map[string]*client
	clientsMu sync.RWMutex

	requests *prometheus.CounterVec

	// mDNS discovery
	mdnsManager *discovery.Manager

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// client represents a connected client (internal)
type client struct {
	ID      string
	Name    string
	Conn    *websocket.Conn
	limiter *rate.Limiter

	// Output channel for messages
	sendChan chan protocol.Message
}

// ClientInfo describes a connected client
type ClientInfo struct {
	ID   string
	Name string
}

// NewServer creates a new authority server
func NewServer(config Config) (*Server, error) {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Port < 0 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", config.Port)
	}
	if config.Name == "" {
		config.Name = "Truetime Authority"
	}
	if config.RequestRate == 0 {
		config.RequestRate = DefaultRequestRate
	}
	if config.RequestRate < 0 {
		return nil, fmt.Errorf("invalid request rate %v", config.RequestRate)
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		logger:   config.Logger.WithField("component", "authority"),
		clock:    config.Clock,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Time is public; any origin may ask for it
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "truetime_authority_time_requests_total",
			Help: "client/time requests by result.",
		}, []string{"result"}),
		stopChan: make(chan struct{}),
	}

	if config.Registerer != nil {
		if err := config.Registerer.Register(s.requests); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	s.mux.HandleFunc(protocol.Path, s.handleWebSocket)

	return s, nil
}

// Handler returns the HTTP handler serving the websocket endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ID returns the server's identifier
func (s *Server) ID() string {
	return s.serverID
}

// Start starts listening and blocks until Stop is called or the listener fails
func (s *Server) Start() error {
	s.logger.Infof("Server starting: %s (ID: %s)", s.config.Name, s.serverID)

	// Start mDNS advertisement if enabled
	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Logger:      s.logger,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.WithError(err).Warn("Failed to start mDNS advertisement")
		} else {
			s.logger.Info("mDNS advertisement started")
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Infof("WebSocket server listening on %s", addr)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serveErr error
	select {
	case <-s.stopChan:
		s.logger.Info("Server shutting down...")
	case serveErr = <-errChan:
		s.logger.WithError(serveErr).Error("HTTP server error")
	}

	s.shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Warn("HTTP server shutdown error")
	}

	s.wg.Wait()
	s.logger.Info("Server stopped cleanly")

	return serveErr
}

// shutdown refuses new clients and disconnects existing ones
func (s *Server) shutdown() {
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	// Hijacked websocket connections are not closed by http.Server.Shutdown
	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
	s.clientsMu.RUnlock()
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Close disconnects all clients and waits for their goroutines. It is for
// servers driven through Handler rather than Start.
func (s *Server) Close() {
	s.Stop()
	s.shutdown()
	s.wg.Wait()
}

// Clients returns information about all connected clients
func (s *Server) Clients() []ClientInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	clients := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, ClientInfo{ID: c.ID, Name: c.Name})
	}
	return clients
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	down := s.isShutdown
	s.shutdownMu.RUnlock()
	if down {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	s.logger.Debugf("New WebSocket connection from %s", r.RemoteAddr)

	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConnection(conn)
}

// handleConnection manages a client connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	// Wait for client/hello
	conn.SetReadDeadline(time.Now().Add(protocol.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		s.logger.WithError(err).Debug("Error reading hello")
		return
	}
	conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.WithError(err).Debug("Error unmarshaling message")
		return
	}

	if msg.Type != protocol.TypeClientHello {
		s.logger.Debugf("Expected client/hello, got %s", msg.Type)
		return
	}

	var hello protocol.ClientHello
	if err := decode(msg.Payload, &hello); err != nil {
		s.logger.WithError(err).Debug("Error unmarshaling client hello")
		return
	}

	if hello.ClientID == "" || hello.Name == "" {
		s.logger.Debug("Client hello missing required fields")
		return
	}

	c := &client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		limiter:  rate.NewLimiter(rate.Limit(s.config.RequestRate), max(1, int(s.config.RequestRate))),
		sendChan: make(chan protocol.Message, 16),
	}

	// Check for duplicate and register. A shutdown that began after the upgrade
	// must not miss this client.
	s.clientsMu.Lock()
	s.shutdownMu.RLock()
	down := s.isShutdown
	s.shutdownMu.RUnlock()
	if down {
		s.clientsMu.Unlock()
		return
	}
	if _, exists := s.clients[hello.ClientID]; exists {
		s.clientsMu.Unlock()
		s.logger.Warnf("Client ID %s already connected, rejecting duplicate", hello.ClientID)
		return
	}
	s.clients[c.ID] = c
	s.clientsMu.Unlock()

	logger := s.logger.WithFields(logrus.Fields{"client_id": c.ID, "client": c.Name})
	logger.Info("Client connected")

	writerDone := make(chan struct{})
	defer func() {
		s.removeClient(c)
		<-writerDone
		logger.Info("Client disconnected")
	}()

	// Start writer goroutine
	go func() {
		defer close(writerDone)
		s.clientWriter(c)
	}()

	serverHello := protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  protocol.ProtocolVersion,
	}
	if err := s.sendMessage(c, protocol.TypeServerHello, serverHello); err != nil {
		logger.WithError(err).Warn("Error sending server hello")
		return
	}

	// Read messages from client
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Debug("WebSocket error")
			}
			return
		}

		if done := s.handleClientMessage(c, logger, data); done {
			return
		}
	}
}

// clientWriter sends messages to the client
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteJSON(msg); err != nil {
				c.Conn.Close()
				drain(c.sendChan)
				return
			}

		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				c.Conn.Close()
				drain(c.sendChan)
				return
			}
		}
	}
}

// drain discards queued messages until the channel is closed
func drain(ch <-chan protocol.Message) {
	for range ch {
	}
}

// handleClientMessage processes a message from a client; it reports whether
// the connection should end
func (s *Server) handleClientMessage(c *client, logger logrus.FieldLogger, data []byte) bool {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.WithError(err).Debug("Error unmarshaling message")
		return false
	}

	switch msg.Type {
	case protocol.TypeClientTime:
		s.handleTimeSync(c, logger, msg.Payload)
	case protocol.TypeClientGoodbye:
		var goodbye protocol.ClientGoodbye
		if err := decode(msg.Payload, &goodbye); err == nil {
			logger.Infof("Client goodbye: %s", goodbye.Reason)
		}
		return true
	default:
		logger.Debugf("Unknown message type: %s", msg.Type)
	}
	return false
}

// handleTimeSync responds to time synchronization requests
func (s *Server) handleTimeSync(c *client, logger logrus.FieldLogger, payload interface{}) {
	serverRecv := s.clock.Now().UnixMicro()

	if !c.limiter.Allow() {
		s.requests.WithLabelValues("rate_limited").Inc()
		s.sendMessage(c, protocol.TypeServerError, protocol.ServerError{
			Code:    "rate_limited",
			Message: "too many client/time requests",
		})
		return
	}

	var clientTime protocol.ClientTime
	if err := decode(payload, &clientTime); err != nil {
		s.requests.WithLabelValues("malformed").Inc()
		logger.WithError(err).Debug("Malformed client/time")
		return
	}

	response := protocol.ServerTime{
		ClientTransmitted: clientTime.ClientTransmitted,
		ServerReceived:    serverRecv,
		ServerTransmitted: s.clock.Now().UnixMicro(),
	}

	if err := s.sendMessage(c, protocol.TypeServerTime, response); err != nil {
		s.requests.WithLabelValues("dropped").Inc()
		logger.WithError(err).Warn("Dropping server/time")
		return
	}
	s.requests.WithLabelValues("answered").Inc()
}

// removeClient removes a client
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	delete(s.clients, c.ID)
	close(c.sendChan)
}

// sendMessage queues a JSON message for a client
func (s *Server) sendMessage(c *client, msgType string, payload interface{}) error {
	msg := protocol.Message{
		Type:    msgType,
		Payload: payload,
	}

	select {
	case c.sendChan <- msg:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// decode re-decodes a generic payload into a typed struct
func decode(payload interface{}, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
