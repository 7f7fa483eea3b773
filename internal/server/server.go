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

	"github.com/avelldo/papertrader/internal/modules/accounts"
	"github.com/avelldo/papertrader/internal/modules/portfolio"
	"github.com/avelldo/papertrader/internal/modules/trading"
)

// Config holds server configuration
type Config struct {
	Port      int
	DevMode   bool
	Log       zerolog.Logger
	Accounts  *accounts.Handlers
	Trading   *trading.Handlers
	Portfolio *portfolio.Handlers
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	startedAt time.Time
	accounts  *accounts.Handlers
	trading   *trading.Handlers
	portfolio *portfolio.Handlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		startedAt: time.Now(),
		accounts:  cfg.Accounts,
		trading:   cfg.Trading,
		portfolio: cfg.Portfolio,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Account-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/system/status", s.handleSystemStatus)

		r.Post("/auth/login", s.accounts.HandleLogin)
		r.Get("/stock/{symbol}", s.portfolio.HandleGetStock)

		// Everything below needs a resolved account
		r.Group(func(r chi.Router) {
			r.Use(s.accounts.RequireAccount)

			r.Get("/account", s.accounts.HandleGetAccount)
			r.Post("/trade/buy", s.trading.HandleBuy)
			r.Post("/trade/sell", s.trading.HandleSell)
			r.Get("/transactions", s.trading.HandleGetTransactions)
			r.Get("/portfolio", s.portfolio.HandleGetPortfolio)
			r.Get("/portfolio/networth", s.portfolio.HandleGetNetWorth)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
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
