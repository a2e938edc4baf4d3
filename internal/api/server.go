// Package api exposes the engine over HTTP for collaborators that sanitize
// text before sending it out and restore it after receiving a response.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/termswap/internal/config"
	"github.com/raaihank/termswap/internal/engine"
	"github.com/raaihank/termswap/internal/logger"
	"github.com/raaihank/termswap/internal/websocket"
)

const apiVersion = "0.1.0"

// Server represents the HTTP API server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	engine  *engine.Engine
	router  *mux.Router
	server  *http.Server
	wsHub   *websocket.Hub
	limiter *clientLimiter
	started time.Time

	// mu serializes engine calls; the engine assumes a single writer.
	mu sync.Mutex
}

// New creates a new API server instance. hub may be nil when WebSocket
// events are disabled.
func New(cfg *config.Config, log *logger.Logger, eng *engine.Engine, hub *websocket.Hub) *Server {
	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("api"),
		engine:  eng,
		router:  mux.NewRouter(),
		wsHub:   hub,
		started: time.Now(),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	if hub != nil {
		eng.OnResult(func(r engine.Result) {
			hub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypeOperation,
				Timestamp: r.Timestamp,
				Data:      operationEvent(r),
			})
		})
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

func operationEvent(r engine.Result) websocket.OperationEvent {
	return websocket.OperationEvent{
		Mode:         string(r.Mode),
		Replacements: r.TotalReplacements,
		OriginalHash: r.OriginalHash,
		NewHash:      r.NewHash,
		BackupPath:   r.BackupPath,
		Warnings:     r.Warnings,
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.wsHub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods("GET")
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	if s.limiter != nil {
		v1.Use(s.rateLimitMiddleware)
	}
	v1.Use(s.serializeMiddleware)

	// In-memory, no side effects
	v1.HandleFunc("/sanitize", s.handleSanitize).Methods("POST")
	v1.HandleFunc("/restore", s.handleRestore).Methods("POST")
	v1.HandleFunc("/check", s.handleCheck).Methods("POST")
	v1.HandleFunc("/find-terms", s.handleFindTerms).Methods("POST")

	// Working text
	v1.HandleFunc("/encode", s.handleEncode).Methods("POST")
	v1.HandleFunc("/decode", s.handleDecode).Methods("POST")
	v1.HandleFunc("/obfuscate", s.handleObfuscate).Methods("POST")
	v1.HandleFunc("/deobfuscate", s.handleDeobfuscate).Methods("POST")
	v1.HandleFunc("/full", s.handleFull).Methods("POST")
	v1.HandleFunc("/undo", s.handleUndo).Methods("POST")
	v1.HandleFunc("/translate-file", s.handleTranslateFile).Methods("POST")
	v1.HandleFunc("/stats", s.handleStats).Methods("GET")
	v1.HandleFunc("/history", s.handleHistory).Methods("GET")

	// Rules
	v1.HandleFunc("/rules", s.handleRules).Methods("GET")
	v1.HandleFunc("/rules/reload", s.handleReload).Methods("POST")
	v1.HandleFunc("/validate", s.handleValidate).Methods("GET")
	v1.HandleFunc("/completions", s.handleCompletions).Methods("GET")
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting termswap API server",
		zap.Int("port", s.config.Server.Port),
		zap.String("work_file", s.config.Workspace.WorkFile),
		zap.Bool("rate_limit", s.limiter != nil),
		zap.Bool("websocket", s.wsHub != nil && s.config.WebSocket.Enabled),
	)
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping termswap API server")
	return s.server.Shutdown(ctx)
}
