// Package api exposes the game over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/ebb-flow/internal/game"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure a Server. Zero values pick defaults.
type Options struct {
	AdminToken     string
	CORSOrigin     string
	RequestTimeout time.Duration
	// Live serves the websocket garden feed; nil leaves the route unmounted.
	Live           http.Handler
	Logger         *log.Logger
	SecurityLogger *SecurityLogger
}

// Server handles HTTP requests
type Server struct {
	manager        *game.Manager
	store          Pinger
	live           http.Handler
	adminToken     string
	corsOrigin     string
	requestTimeout time.Duration
	errorHandler   *ErrorHandler
	logger         *log.Logger
	securityLogger *SecurityLogger
	startTime      time.Time
}

// NewServer creates a new API server
func NewServer(manager *game.Manager, store Pinger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile)
	}
	securityLogger := opts.SecurityLogger
	if securityLogger == nil {
		securityLogger = NewSecurityLogger(nil)
	}
	s := &Server{
		manager:        manager,
		store:          store,
		live:           opts.Live,
		adminToken:     opts.AdminToken,
		corsOrigin:     opts.CORSOrigin,
		requestTimeout: opts.RequestTimeout,
		errorHandler:   NewErrorHandler(logger, securityLogger),
		logger:         logger,
		securityLogger: securityLogger,
		startTime:      time.Now(),
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = 15 * time.Second
	}
	return s
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.SecurityLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(s.CORSMiddleware)

	// The websocket feed outlives any request timeout.
	if s.live != nil {
		r.Get("/api/garden/live", s.live.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))

		r.Get("/health", s.handleHealthCheck)
		r.Get("/health/ready", s.handleReadiness)
		r.Get("/health/live", s.handleLiveness)

		r.Route("/api", func(r chi.Router) {
			r.Get("/init", s.handleInit)
			r.Post("/start-game", s.handleStartGame)
			r.Post("/collect-leaf", s.handleCollectLeaf)
			r.Get("/session", s.handleSession)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/recent-games", s.handleRecentGames)
			r.Get("/garden", s.handleGarden)
		})

		r.Route("/internal", func(r chi.Router) {
			r.Use(s.AdminMiddleware)
			r.Post("/reset-stats", s.handleResetStats)
		})
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Server-Version", Version)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_write_failed status=%d error=%v", status, err)
	}
}
