// Package dashboard serves the browser surface for duo: a JSON API over the
// list controller, a WebSocket feed of controller notifications, and the live
// markdown preview.
//
// When the store failed to initialize the server still starts. The item API
// answers 503 while the preview and health endpoints keep working.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/duoapp/duo/internal/items"
	"github.com/duoapp/duo/internal/preview"
	"github.com/duoapp/duo/internal/store"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeCollectionChanged carries an items.CollectionChange.
	MessageTypeCollectionChanged MessageType = "collection_changed"

	// MessageTypeSelectionChanged carries an items.Selection.
	MessageTypeSelectionChanged MessageType = "selection_changed"

	// MessageTypeError carries ErrorData for a failed operation.
	MessageTypeError MessageType = "error"

	// MessageTypePreviewUpdate carries a preview.Update.
	MessageTypePreviewUpdate MessageType = "preview_update"

	// MessageTypeStats carries StatsData. It is also the welcome message.
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

// StatsData summarizes the session state.
type StatsData struct {
	Total         int    `json:"total"`
	HasSelection  bool   `json:"has_selection"`
	DataAvailable bool   `json:"data_available"`
	Driver        string `json:"driver,omitempty"`
}

// Server manages WebSocket connections and serves the HTTP surface.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	ctrl       *items.Controller
	driver     string
	unavailErr error
	handler    *Handler
	detach     func()

	// apiMu serializes select-then-mutate sequences issued over HTTP.
	apiMu sync.Mutex

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	stateMu sync.RWMutex
	stats   StatsData
	preview preview.Update

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080). Zero picks a free port.
	Port int

	// Logger for server activity (default: no-op)
	Logger *zap.Logger

	// Controller backs the item API. Nil disables it.
	Controller *items.Controller

	// Driver is reported in stats.
	Driver string

	// Unavailable explains why Controller is nil. It is included in 503
	// responses.
	Unavailable error
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: zap.NewNop(),
	}
}

// NewServer creates a dashboard server and, if a controller is configured,
// subscribes to its notifications.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr:       fmt.Sprintf(":%d", config.Port),
		ctrl:       config.Controller,
		driver:     config.Driver,
		unavailErr: config.Unavailable,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Message, 100),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
	s.stats = StatsData{DataAvailable: s.ctrl != nil, Driver: s.driver}

	if s.ctrl != nil {
		s.handler = NewHandler(s, logger)
		s.detach = s.handler.Attach(s.ctrl)
	}
	return s
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("dashboard listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Debug("stopping dashboard server")

	if s.detach != nil {
		s.detach()
	}
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Debug("dashboard server stopped")
	return nil
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Warn("broadcast channel full, dropping message", zap.String("type", string(msg.Type)))
	}
}

// BroadcastData marshals v and broadcasts it as a message of type t.
func (s *Server) BroadcastData(t MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal message", zap.String("type", string(t)), zap.Error(err))
		return
	}
	s.Broadcast(Message{Type: t, Timestamp: time.Now(), Data: data})
}

// UpdateStats records the latest stats and broadcasts them.
func (s *Server) UpdateStats(stats StatsData) {
	stats.DataAvailable = s.ctrl != nil
	stats.Driver = s.driver

	s.stateMu.Lock()
	s.stats = stats
	s.stateMu.Unlock()

	s.BroadcastData(MessageTypeStats, stats)
}

// Stats returns the most recently recorded stats.
func (s *Server) Stats() StatsData {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.stats
}

// PublishPreview records the latest editor text and broadcasts it.
func (s *Server) PublishPreview(u preview.Update) {
	s.stateMu.Lock()
	s.preview = u
	s.stateMu.Unlock()

	s.BroadcastData(MessageTypePreviewUpdate, u)
}

// Preview returns the most recently published editor text.
func (s *Server) Preview() preview.Update {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.preview
}

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
				s.logger.Error("failed to marshal message", zap.Error(err))
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Debug("failed to send to client", zap.Error(err))
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	// Welcome before registering, so a broadcast can never precede it.
	welcome, _ := json.Marshal(s.Stats())
	welcomeData, _ := json.Marshal(Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      welcome,
	})
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	err = conn.Write(ctx, websocket.MessageText, welcomeData)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Debug("client connected", zap.Int("total", clientCount))

	go s.readLoop(conn)
}

// readLoop keeps the connection open until the client goes away.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Debug("client disconnected", zap.Int("total", clientCount))
	} else {
		s.clientsMu.Unlock()
	}
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

// dataUnavailable builds the error returned while the item API is disabled.
func (s *Server) dataUnavailable() error {
	if s.unavailErr != nil {
		return s.unavailErr
	}
	return fmt.Errorf("no database configured: %w", store.ErrStorageUnavailable)
}
