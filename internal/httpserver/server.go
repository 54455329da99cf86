package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ifinance/relay/internal/config"
	"github.com/ifinance/relay/internal/httpserver/middleware"
	"github.com/ifinance/relay/internal/observability"
)

// Server represents the HTTP server.
type Server struct {
	config      config.ServerConfig
	handler     *Handler
	middlewares middleware.Middleware
	authn       middleware.Authenticator
	srv         *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.Config,
	handler *Handler,
	middlewares middleware.Middleware,
	authn middleware.Authenticator,
) *Server {
	return &Server{
		config:      cfg.Server,
		handler:     handler,
		middlewares: middlewares,
		authn:       authn,
		srv:         nil,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	authed := middleware.Auth(s.authn)

	// Public routes.
	mux.HandleFunc("/api/signup", s.handler.HandleSignup)
	mux.HandleFunc("/api/login", s.handler.HandleLogin)
	mux.HandleFunc("/health", s.handler.HandleHealth)

	// Authenticated routes.
	mux.Handle("/api/chat", authed(http.HandlerFunc(s.handler.HandleChat)))
	mux.Handle("/api/financial-analysis", authed(http.HandlerFunc(s.handler.HandleFinancialAnalysis)))
	mux.Handle("/api/user/profile", authed(http.HandlerFunc(s.handler.HandleProfile)))
	mux.Handle("/api/user/usage", authed(http.HandlerFunc(s.handler.HandleUsage)))
	mux.Handle("/api/templates/use", authed(http.HandlerFunc(s.handler.HandleUseTemplate)))
	mux.Handle("/api/upload", authed(http.HandlerFunc(s.handler.HandleUpload)))

	// Apply middleware chain.
	handlerWithMiddleware := s.middlewares(mux)

	// Create server with timeouts.
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      handlerWithMiddleware,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	ctx := context.Background()
	observability.FromContext(ctx).Info("starting HTTP server", observability.Int("port", s.config.Port))

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.FromContext(ctx).Info("shutting down HTTP server")

	if s.srv == nil {
		return nil
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
