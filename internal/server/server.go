package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Server accepts websocket clients and hands them to the orchestrator.
type Server struct {
	cfg      *Config
	upgrader websocket.Upgrader
	orch     *Orchestrator
	logger   *log.Logger
	httpSrv  *http.Server
	cancel   context.CancelFunc
}

// NewServer wires an HTTP server around the orchestrator.
func NewServer(cfg *Config, orch *Orchestrator, logger *log.Logger) *Server {
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// For development, allow all origins
				// In production, implement proper origin checking
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		orch:   orch,
		logger: logger.WithPrefix("server"),
	}
}

// Start serves until Stop is called or the listener fails. It blocks.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.orch.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:    s.cfg.ListenAddress(),
		Handler: mux,
	}

	s.logger.Info("Starting WebSocket server", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the listener down and cancels every running session.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// handleWebSocket upgrades the request and starts the connection pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s.orch, s.logger)
	s.logger.Info("Client connected", "remote", conn.RemoteAddr())
	client.Start()
}

// handleHealth reports liveness and the number of active games.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"active_sessions": s.orch.ActiveSessions(),
	})
}
