package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/tableserver/internal/game"
	"github.com/lox/tableserver/internal/table"
	"github.com/lox/tableserver/internal/wallet"
)

// Server accepts WebSocket clients and fans table events out to them. It
// implements table.Sink: table actors hand it events, it renders them to
// frames and routes by table subscription or user identity.
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	registry    *table.Registry
	wallet      *wallet.Wallet
	logger      *log.Logger
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewServer creates the transport. SetRegistry must be called before Run;
// the registry needs the server as its sink, so construction is two-phase.
func NewServer(addr string, w *wallet.Wallet, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Origin is not checked: identity comes from HELLO and the
				// deployment fronts this with its own edge.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		wallet:      w,
		logger:      logger.WithPrefix("server"),
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetRegistry wires the table registry in after construction.
func (s *Server) SetRegistry(r *table.Registry) {
	s.registry = r
}

// Run serves WebSocket traffic until the context is cancelled, then closes
// every client connection.
func (s *Server) Run(ctx context.Context) error {
	go s.trackConnections()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	httpServer := &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		s.stop()
		return err
	case err := <-errCh:
		s.stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) stop() {
	s.cancel()
	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.close()
	}
	s.mu.Unlock()
}

func (s *Server) trackConnections() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("client connected", "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			delete(s.connections, conn)
			total := len(s.connections)
			s.mu.Unlock()
			s.handleDisconnect(conn)
			_ = conn.close()
			s.logger.Info("client disconnected", "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

// handleDisconnect marks the seat not-connected; the seat stays in any
// live hand and the turn timer keeps running.
func (s *Server) handleDisconnect(conn *Connection) {
	userID, tableID := conn.user(), conn.table()
	if userID == "" || tableID == "" {
		return
	}
	// Another connection for the same user may still be up.
	if s.userConnected(userID, conn) {
		return
	}
	session, ok := s.registry.Get(tableID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := session.SetConnected(ctx, userID, false); err != nil && !errors.Is(err, game.ErrNotSeated) {
		s.logger.Error("marking user disconnected", "user", userID, "table", tableID, "error", err)
	}
}

func (s *Server) userConnected(userID string, except *Connection) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn != except && conn.user() == userID {
			return true
		}
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrading connection", "error", err)
		return
	}

	client := newConnection(conn, s, s.logger)
	select {
	case s.register <- client:
	case <-s.ctx.Done():
		_ = conn.Close()
		return
	}
	client.start()

	go func() {
		<-client.ctx.Done()
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "OK")
}

// Broadcast implements table.Sink: deliver to every connection watching
// the table.
func (s *Server) Broadcast(tableID string, event game.Event) {
	msg, err := messageFromEvent(tableID, event)
	if err != nil {
		s.logger.Error("rendering event", "table", tableID, "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn.table() == tableID {
			if err := conn.sendMessage(msg); err != nil {
				s.logger.Debug("broadcast delivery failed", "user", conn.user(), "error", err)
			}
		}
	}
}

// SendToUser implements table.Sink: deliver to every connection held by
// one user. Hole cards and snapshots travel only this path.
func (s *Server) SendToUser(tableID, userID string, event game.Event) {
	msg, err := messageFromEvent(tableID, event)
	if err != nil {
		s.logger.Error("rendering event", "table", tableID, "user", userID, "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn.user() == userID {
			if err := conn.sendMessage(msg); err != nil {
				s.logger.Debug("user delivery failed", "user", userID, "error", err)
			}
		}
	}
}
