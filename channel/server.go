// Package channel serves the persistent WebSocket endpoint the execution
// agent connects to.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ethereum-optimism/infra/op-suiterelay/metrics"
	"github.com/ethereum-optimism/infra/op-suiterelay/protocol"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadLimit    = 1 << 20
	shutdownTimeout     = 5 * time.Second
)

// Handler receives the lifecycle and messages of agent connections.
// A Connect error refuses the connection.
type Handler interface {
	Connect(conn protocol.Conn) error
	Deliver(conn protocol.Conn, msg protocol.Message) error
	Disconnect(conn protocol.Conn)
}

// Config contains channel server configuration
type Config struct {
	Host         string
	Port         int // 0 picks a free port
	Handler      Handler
	Log          log.Logger
	WriteTimeout time.Duration
	ReadLimit    int64
}

// Server accepts agent connections and hands their messages to a Handler
type Server struct {
	cfg      Config
	log      log.Logger
	upgrader websocket.Upgrader
	router   *mux.Router
	srv      *http.Server
	listener net.Listener

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewServer creates a channel server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}

	s := &Server{
		cfg: cfg,
		log: cfg.Log,
		// the agent runs inside a browser, so any origin may connect
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*Conn),
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/", s.handleRoot)
	s.router.HandleFunc("/ws", s.handleWS)
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start binds the listening socket
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.log.Info("Channel listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the HTTP handler serving the channel
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections until ctx is done, then shuts the server down and
// closes every open agent connection.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Start(); err != nil {
			return err
		}
	}

	errC := make(chan error, 1)
	go func() {
		errC <- s.srv.Serve(s.listener)
	}()

	select {
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("channel server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down channel")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// hijacked connections are not tracked by http.Server
	s.closeAll()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down channel: %w", err)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWS(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("op-suiterelay channel; connect with a websocket at /ws\n"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		metrics.RecordErrorDetails("upgrade", err)
		s.log.Warn("Failed to upgrade agent connection", "remote", r.RemoteAddr, "err", err)
		return
	}
	ws.SetReadLimit(s.cfg.ReadLimit)

	conn := newConn(ws, s.cfg.WriteTimeout, s.log)
	s.track(conn)
	defer s.untrack(conn)

	if err := s.cfg.Handler.Connect(conn); err != nil {
		conn.log.Warn("Refusing agent connection", "err", err)
		conn.closeWith(websocket.CloseTryAgainLater, err.Error())
		return
	}
	conn.log.Info("Agent connection open")

	s.readPump(conn)
	s.cfg.Handler.Disconnect(conn)
	conn.log.Info("Agent connection closed")
}

func (s *Server) readPump(conn *Conn) {
	for {
		msgType, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				conn.log.Warn("Agent connection dropped", "err", err)
			}
			conn.closeWith(formatWSError(err))
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			metrics.RecordErrorDetails("decode", err)
			conn.log.Warn("Dropping malformed agent message", "err", err)
			continue
		}
		metrics.RecordChannelMessage("inbound", string(msg.Event()))

		if err := s.cfg.Handler.Deliver(conn, msg); err != nil {
			conn.log.Debug("Handler stopped accepting messages", "err", err)
			conn.Close()
			return
		}
	}
}

func (s *Server) track(conn *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn.ID()] = conn
}

func (s *Server) untrack(conn *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn.ID())
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}

// eventOf reads the event name of an encoded frame for metrics
func eventOf(msg []byte) string {
	var env struct {
		Event protocol.Event `json:"event"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return "unknown"
	}
	return string(env.Event)
}
