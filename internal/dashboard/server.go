// Package dashboard provides a real-time WebSocket server for sync monitoring.
//
// The dashboard broadcasts account status transitions, sync pass summaries,
// and conflict events to connected WebSocket clients, enabling real-time
// monitoring of sync activity across all linked accounts.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/northapp/northsync/internal/model"
	"github.com/northapp/northsync/internal/status"
	"github.com/northapp/northsync/internal/store"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeStatusTransition indicates an account changed sync status
	MessageTypeStatusTransition MessageType = "status_transition"

	// MessageTypeSyncComplete indicates a sync pass finished for a user
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeConflictPending indicates unresolved conflicts need review
	MessageTypeConflictPending MessageType = "conflict_pending"

	// MessageTypeSyncFailed indicates an account sync failed
	MessageTypeSyncFailed MessageType = "sync_failed"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TransitionData contains status change information
type TransitionData struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// SyncCompleteData contains sync pass completion information
type SyncCompleteData struct {
	UserID          string        `json:"user_id"`
	Synced          int           `json:"synced"`
	Failed          int           `json:"failed"`
	ConflictPending int           `json:"conflict_pending"`
	Skipped         int           `json:"skipped"`
	Duration        time.Duration `json:"duration"`
}

// ConflictPendingData contains unresolved conflict information
type ConflictPendingData struct {
	AccountID string `json:"account_id"`
	Pending   int    `json:"pending"`
}

// SyncFailedData contains account failure information
type SyncFailedData struct {
	AccountID string `json:"account_id"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	tracker *status.Tracker
	store   *store.Store

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Message broadcasting
	broadcast chan Message

	// Tracker subscription, released on Stop
	unobserve func()

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Logging
	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8321)
	Port int

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8321,
		Logger: log.Default(),
	}
}

// NewServer creates a new dashboard WebSocket server. The tracker feeds
// live transitions; the store backs the /status snapshot endpoint.
func NewServer(tracker *status.Tracker, st *store.Store, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		tracker:   tracker,
		store:     st,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start broadcast handler
	s.wg.Add(1)
	go s.broadcastLoop()

	// Feed tracker transitions into the broadcast channel
	if s.tracker != nil {
		transitions, cancel := s.tracker.ObserveAll()
		s.unobserve = cancel
		s.wg.Add(1)
		go s.transitionLoop(transitions)
	}

	// Start HTTP server
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("[dashboard] listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("[dashboard] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("[dashboard] stopping")

	if s.unobserve != nil {
		s.unobserve()
	}
	s.cancel()

	// Close all WebSocket connections
	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("[dashboard] stopped")
	return nil
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("[dashboard] broadcast channel full, dropping message")
	}
}

// BroadcastSyncComplete publishes a sync pass summary.
func (s *Server) BroadcastSyncComplete(data SyncCompleteData) {
	s.broadcastData(MessageTypeSyncComplete, data)
}

func (s *Server) broadcastData(mt MessageType, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Printf("[dashboard] failed to marshal %s payload: %v", mt, err)
		return
	}
	s.Broadcast(Message{Type: mt, Timestamp: time.Now(), Data: raw})
}

// transitionLoop forwards tracker transitions to connected clients.
func (s *Server) transitionLoop(transitions <-chan model.Transition) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case tr, ok := <-transitions:
			if !ok {
				return
			}
			s.broadcastData(MessageTypeStatusTransition, TransitionData{
				AccountID: tr.AccountID,
				UserID:    tr.UserID,
				From:      string(tr.From),
				To:        string(tr.To),
			})
		}
	}
}

// broadcastLoop handles message broadcasting to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("[dashboard] failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Send to clients (outside read lock to avoid blocking broadcasts)
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("[dashboard] failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // Allow all origins for development
	})
	if err != nil {
		s.logger.Printf("[dashboard] WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("[dashboard] client connected (total: %d)", clientCount)

	go s.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, _, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		// We don't process client messages, just keep connection alive
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("[dashboard] client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clientCount,
	})
}

// accountStatus is one row of the /status snapshot.
type accountStatus struct {
	AccountID   string    `json:"account_id"`
	UserID      string    `json:"user_id"`
	Institution string    `json:"institution"`
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}

// handleStatus returns a point-in-time snapshot of every account's sync
// status, grouped by user.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.tracker == nil {
		http.Error(w, "status snapshot unavailable", http.StatusServiceUnavailable)
		return
	}

	userIDs, err := s.store.ListUserIDs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	users := make(map[string][]accountStatus, len(userIDs))
	for _, userID := range userIDs {
		accounts, err := s.store.ListAccountsByUser(r.Context(), userID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		rows := make([]accountStatus, 0, len(accounts))
		for _, acct := range accounts {
			rows = append(rows, accountStatus{
				AccountID:   acct.ID,
				UserID:      acct.UserID,
				Institution: acct.InstitutionName,
				Status:      string(s.tracker.Current(acct.ID)),
				LastUpdated: acct.LastUpdated,
			})
		}
		users[userID] = rows
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"users": users,
	})
}

// handleRoot returns basic server information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>North Sync Dashboard</title>
</head>
<body>
    <h1>North Sync Dashboard Server</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Status snapshot: <a href="/status">/status</a></p>
    <p>Connect a WebSocket client to receive real-time sync updates.</p>
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
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
