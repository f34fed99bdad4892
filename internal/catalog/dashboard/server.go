// Package dashboard provides a real-time WebSocket feed of the catalog.
//
// The dashboard broadcasts collection snapshots, the reconciled filter
// taxonomy and remote sync health to connected WebSocket clients. A client
// that connects late is first sent the most recent message of every kind.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	servertiming "github.com/mitchellh/go-server-timing"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSnapshot carries the full contents of one collection
	MessageTypeSnapshot MessageType = "snapshot"

	// MessageTypeTaxonomy carries the reconciled filter list
	MessageTypeTaxonomy MessageType = "taxonomy"

	// MessageTypeSyncStatus carries remote mirror health
	MessageTypeSyncStatus MessageType = "sync_status"

	// MessageTypeDraftStaged indicates an inbox image became a draft
	MessageTypeDraftStaged MessageType = "draft_staged"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Kind      string          `json:"kind,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// key identifies the replay slot of a message. Snapshots are kept per kind.
func (m Message) key() string {
	if m.Kind == "" {
		return string(m.Type)
	}
	return string(m.Type) + "/" + m.Kind
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	// mu guards clients and latest
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	latest  map[string]Message

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Host to bind (default: all interfaces)
	Host string

	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// NewServer creates a new dashboard WebSocket server
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		clients:   make(map[*websocket.Conn]bool),
		latest:    make(map[string]Message),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Handler returns the HTTP routes served by the dashboard. The JSON
// endpoints report their lookup time in a Server-Timing header.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/health", timed(s.handleHealth))
	mux.Handle("/taxonomy", timed(s.handleTaxonomy))
	mux.Handle("/status", timed(s.handleStatus))
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

func timed(h http.HandlerFunc) http.Handler {
	return servertiming.Middleware(h, nil)
}

// startMetric starts a Server-Timing metric, or returns nil when the request
// is not timed.
func startMetric(r *http.Request, name string) *servertiming.Metric {
	timing := servertiming.FromContext(r.Context())
	if timing == nil {
		return nil
	}
	return timing.NewMetric(name).Start()
}

func stopMetric(m *servertiming.Metric) {
	if m != nil {
		m.Stop()
	}
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server. A nil server is a no-op.
func (s *Server) Stop() error {
	if s == nil {
		return nil
	}
	s.logger.Println("Stopping dashboard server")

	s.cancel()

	s.mu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.mu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast queues a message for every connected client. It never blocks;
// when the queue is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// Latest returns the most recent message of type t and kind, if any.
func (s *Server) Latest(t MessageType, kind string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.latest[Message{Type: t, Kind: kind}.key()]
	return msg, ok
}

// broadcastLoop handles message broadcasting to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.mu.Lock()
			s.latest[msg.key()] = msg
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.mu.Unlock()

			for _, conn := range clients {
				if err := s.write(conn, data); err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	replay := make([]Message, 0, len(s.latest))
	for _, msg := range s.latest {
		replay = append(replay, msg)
	}
	s.mu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	for _, msg := range replay {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := s.write(conn, data); err != nil {
			s.removeClient(conn)
			return
		}
	}

	go s.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	if _, exists := s.clients[conn]; !exists {
		s.mu.Unlock()
		return
	}
	delete(s.clients, conn)
	clientCount := len(s.clients)
	s.mu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client disconnected (total: %d)", clientCount)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := startMetric(r, "clients")
	clients := s.ClientCount()
	stopMetric(m)
	writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"clients": clients,
	})
}

// handleTaxonomy returns the last broadcast taxonomy, or an empty list.
func (s *Server) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	s.serveLatest(w, r, MessageTypeTaxonomy, []byte("[]"))
}

// handleStatus returns the last broadcast sync status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.serveLatest(w, r, MessageTypeSyncStatus, []byte("{}"))
}

func (s *Server) serveLatest(w http.ResponseWriter, r *http.Request, t MessageType, empty []byte) {
	m := startMetric(r, "latest")
	msg, ok := s.Latest(t, "")
	stopMetric(m)
	w.Header().Set("Content-Type", "application/json")
	if !ok || len(msg.Data) == 0 {
		_, _ = w.Write(empty)
		return
	}
	_, _ = w.Write(msg.Data)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// handleRoot returns basic server information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Storefront Dashboard</title>
</head>
<body>
    <h1>Storefront Dashboard Server</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Filter taxonomy: <a href="/taxonomy">/taxonomy</a></p>
    <p>Sync status: <a href="/status">/status</a></p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
