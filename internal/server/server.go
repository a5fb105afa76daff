// Package server provides the HTTP server and routing for nestegg.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/nestegg-io/nestegg/internal/config"
	"github.com/nestegg-io/nestegg/internal/database"
	insightshandlers "github.com/nestegg-io/nestegg/internal/modules/insights/handlers"
	portfoliohandlers "github.com/nestegg-io/nestegg/internal/modules/portfolio/handlers"
	"github.com/nestegg-io/nestegg/internal/notify"
	"github.com/nestegg-io/nestegg/internal/pricing"
	"github.com/nestegg-io/nestegg/internal/reliability"
)

// Config holds everything the server routes over.
type Config struct {
	Log               zerolog.Logger
	Cfg               *config.Config
	Databases         []*database.DB
	PriceRouter       *pricing.Router
	PortfolioHandlers *portfoliohandlers.Handler
	InsightsHandlers  *insightshandlers.Handler // nil disables /api/insights
	Tokens            *notify.TokenRepository
	Backup            *reliability.BackupService // nil disables /api/system/backup
}

// Server is the HTTP server.
type Server struct {
	router            *chi.Mux
	server            *http.Server
	log               zerolog.Logger
	cfg               *config.Config
	priceRouter       *pricing.Router
	portfolioHandlers *portfoliohandlers.Handler
	insightsHandlers  *insightshandlers.Handler
	backup            *reliability.BackupService
	systemHandlers    *SystemHandlers
	tokenHandlers     *TokenHandlers
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:            chi.NewRouter(),
		log:               cfg.Log.With().Str("component", "server").Logger(),
		cfg:               cfg.Cfg,
		priceRouter:       cfg.PriceRouter,
		portfolioHandlers: cfg.PortfolioHandlers,
		insightsHandlers:  cfg.InsightsHandlers,
		backup:            cfg.Backup,
		systemHandlers:    NewSystemHandlers(cfg.Databases, cfg.Log),
		tokenHandlers:     NewTokenHandlers(cfg.Tokens, cfg.Log),
	}

	s.setupMiddleware(cfg.Cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/system/status", s.systemHandlers.HandleStatus)
		if s.backup != nil {
			r.Post("/system/backup", s.handleBackup)
		}

		r.Route("/portfolio", s.portfolioHandlers.Routes)

		if s.insightsHandlers != nil {
			r.Route("/insights", s.insightsHandlers.Routes)
		}

		r.Post("/notifications/token", s.tokenHandlers.HandleRegister)
		r.Delete("/notifications/token", s.tokenHandlers.HandleUnregister)

		r.Post("/cache/clear", s.handleCacheClear)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.priceRouter.ClearCache()
	s.log.Info().Msg("Price cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if err := s.backup.CreateAndUploadBackup(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("Manual backup failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
