package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/widyatma/loratag/internal/config"
	"github.com/widyatma/loratag/internal/observability"
	"github.com/widyatma/loratag/pkg/hub"
)

// Server exposes the application over HTTP and websocket.
type Server struct {
	cfg      *config.Config
	app      *App
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	httpServer *http.Server
	sweeper    *hub.Sweeper
	watcher    *Watcher
	autoSaver  *AutoSaver

	isShuttingDown bool
	shutdownMu     sync.RWMutex
}

// NewServer wires the application behind the HTTP surface.
func NewServer(cfg *config.Config, app *App, logger zerolog.Logger) (*Server, error) {
	if cfg.Server.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	if app == nil {
		return nil, fmt.Errorf("application context is required")
	}

	s := &Server{
		cfg:    cfg,
		app:    app,
		logger: logger.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, same-host browser tabs
			},
		},
	}

	s.sweeper = hub.NewSweeper(app.Hub(), cfg.Hub.SweepIntervalDuration(), cfg.Hub.IdleTimeoutDuration())
	s.autoSaver = NewAutoSaver(app, cfg.Session.AutoSaveInterval, logger)

	if cfg.Workspace.Watch {
		w, err := NewWatcher(app, cfg.Workspace.InputDir, logger)
		if err != nil {
			return nil, fmt.Errorf("create directory watcher: %w", err)
		}
		s.watcher = w
	}

	return s, nil
}

// Start launches the HTTP server and all background components.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	s.registerAPIRoutes(mux)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler: mux,
	}

	s.logger.Info().
		Str("host", s.cfg.Server.Host).
		Int("port", s.cfg.Server.Port).
		Msg("Starting server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.sweeper.Start()
	if err := s.autoSaver.Start(); err != nil {
		return err
	}
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			return err
		}
	}

	return nil
}

// Stop gracefully shuts the server down: background components first, then a
// shutdown broadcast, a final forced save, and the HTTP listener last.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down")

	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.autoSaver.Stop()
	s.sweeper.Stop()

	_ = s.app.Hub().Broadcast(hub.Envelope{
		Type: hub.TypeShutdown,
		Data: map[string]interface{}{"message": "Server is shutting down"},
	})
	s.app.Hub().Close()

	s.app.Queue().WaitForActive(10 * time.Second)
	if err := s.app.Store().Save(true); err != nil {
		s.logger.Error().Err(err).Msg("Final session save failed")
	}
	_ = s.app.Queue().Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Server stopped")
	return nil
}

// handleWebSocket upgrades the connection, registers it with the hub, pushes
// the initial full state and enters the read loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := s.app.Hub().Connect(conn)

	// Every new connection gets the full state; there is no replay of missed
	// messages for reconnects.
	if err := s.app.Hub().Send(client.ID, s.app.SessionStateEnvelope()); err != nil {
		return
	}

	go s.readLoop(r.Context(), client, conn)
}

// readLoop consumes messages from one client until the connection drops.
func (s *Server) readLoop(ctx context.Context, client *hub.Client, conn *websocket.Conn) {
	defer s.app.Hub().Disconnect(client.ID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}

		s.app.Hub().UpdateHeartbeat(client.ID)
		s.handleMessage(ctx, client, message)
	}
}

// handleMessage validates, dispatches and answers one inbound message. A
// malformed or unknown message produces an error envelope for the sender
// only; the connection stays open.
func (s *Server) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	if err := hub.ValidateInbound(message); err != nil {
		_ = s.app.Hub().Send(client.ID, hub.ErrorEnvelope(err.Error()))
		return
	}

	var env hub.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		_ = s.app.Hub().Send(client.ID, hub.ErrorEnvelope("malformed message"))
		return
	}
	observability.RecordClientMessage(string(env.Type))

	reply, broadcasts := s.app.Dispatch(ctx, env)
	if reply != nil {
		_ = s.app.Hub().Send(client.ID, *reply)
	}
	for _, b := range broadcasts {
		_ = s.app.Hub().Broadcast(b)
	}
}
