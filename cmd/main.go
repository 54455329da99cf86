package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.uber.org/dig"

	"github.com/ifinance/relay/internal/analysis"
	"github.com/ifinance/relay/internal/auth"
	"github.com/ifinance/relay/internal/config"
	"github.com/ifinance/relay/internal/domain"
	"github.com/ifinance/relay/internal/httpserver"
	"github.com/ifinance/relay/internal/httpserver/middleware"
	"github.com/ifinance/relay/internal/observability"
	"github.com/ifinance/relay/internal/provider/gateway"
	"github.com/ifinance/relay/internal/provider/groq"
	"github.com/ifinance/relay/internal/provider/registry"
	"github.com/ifinance/relay/internal/relay"
	"github.com/ifinance/relay/internal/routing"
	"github.com/ifinance/relay/internal/session"
	"github.com/ifinance/relay/internal/store/sqlite"
)

// ErrProviderNotConfigured indicates that a provider is not configured and should be skipped.
var ErrProviderNotConfigured = errors.New("provider not configured")

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *httpserver.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}

	// Storage
	if err := container.Provide(func(cfg *config.DatabaseConfig) (*sqlite.Store, error) {
		return sqlite.Open(cfg.Path)
	}); err != nil {
		log.Fatalf("Failed to provide store: %v", err)
	}
	if err := container.Provide(func(s *sqlite.Store) domain.UserStore { return s.Users() }); err != nil {
		log.Fatalf("Failed to provide user store: %v", err)
	}
	if err := container.Provide(func(s *sqlite.Store) domain.ConversationStore { return s.Conversations() }); err != nil {
		log.Fatalf("Failed to provide conversation store: %v", err)
	}
	if err := container.Provide(func(s *sqlite.Store) domain.UsageStore { return s.Usage() }); err != nil {
		log.Fatalf("Failed to provide usage store: %v", err)
	}
	if err := container.Provide(func(s *sqlite.Store) domain.FileStore { return s.Files() }); err != nil {
		log.Fatalf("Failed to provide file store: %v", err)
	}
	if err := container.Provide(func(s *sqlite.Store) domain.TemplateStore { return s.Templates() }); err != nil {
		log.Fatalf("Failed to provide template store: %v", err)
	}
	if err := container.Provide(func(s *sqlite.Store) domain.AuditStore { return s.Audit() }); err != nil {
		log.Fatalf("Failed to provide audit store: %v", err)
	}

	// Sessions
	if err := container.Provide(func(cfg *config.RedisConfig) domain.SessionStore {
		return session.NewRedisStore(cfg)
	}); err != nil {
		log.Fatalf("Failed to provide session store: %v", err)
	}

	// Auth
	if err := container.Provide(func(cfg *config.AuthConfig) (*auth.TokenIssuer, error) {
		return auth.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.SessionTTLHours)*time.Hour)
	}); err != nil {
		log.Fatalf("Failed to provide token issuer: %v", err)
	}
	if err := container.Provide(func(
		cfg *config.AuthConfig,
		users domain.UserStore,
		sessions domain.SessionStore,
		issuer *auth.TokenIssuer,
	) *auth.Service {
		return auth.NewService(users, sessions, issuer, time.Duration(cfg.SessionTTLHours)*time.Hour)
	}); err != nil {
		log.Fatalf("Failed to provide auth service: %v", err)
	}

	// Adapter Registry
	if err := container.Provide(func() domain.AdapterRegistry {
		return registry.NewRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// Gateway Adapter
	if err := container.Provide(gateway.NewAdapter); err != nil {
		log.Fatalf("Failed to provide gateway adapter: %v", err)
	}

	// Groq Adapter
	if err := container.Provide(func(cfg *groq.Config) (*groq.Adapter, error) {
		if cfg.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}
		return groq.NewAdapter(cfg)
	}); err != nil {
		log.Fatalf("Failed to provide groq adapter: %v", err)
	}

	// Register adapters with registry (invoked for side effects)
	if err := container.Invoke(func(reg domain.AdapterRegistry, adapter *gateway.Adapter) error {
		if err := reg.Register(adapter); err != nil {
			return fmt.Errorf("failed to register gateway adapter: %w", err)
		}
		return nil
	}); err != nil {
		log.Fatalf("Failed to register gateway adapter: %v", err)
	}
	if err := container.Invoke(func(reg domain.AdapterRegistry, adapter *groq.Adapter) error {
		if err := reg.Register(adapter); err != nil {
			return fmt.Errorf("failed to register groq adapter: %w", err)
		}
		return nil
	}); err != nil {
		// Ignore ErrProviderNotConfigured as it's expected for optional adapters
		if !errors.Is(err, ErrProviderNotConfigured) {
			log.Fatalf("Failed to register groq adapter: %v", err)
		}
	}

	// Routing and Relay
	if err := container.Provide(routing.NewRouter); err != nil {
		log.Fatalf("Failed to provide router: %v", err)
	}
	if err := container.Provide(func(cfg *config.RelayConfig) *relay.RelayCostConfig {
		return &relay.RelayCostConfig{
			FallbackTokenEstimate: cfg.FallbackTokenEstimate,
			CostPerToken:          cfg.CostPerToken,
		}
	}); err != nil {
		log.Fatalf("Failed to provide cost config: %v", err)
	}
	if err := container.Provide(relay.NewFinalizer); err != nil {
		log.Fatalf("Failed to provide finalizer: %v", err)
	}
	if err := container.Provide(relay.NewController); err != nil {
		log.Fatalf("Failed to provide relay controller: %v", err)
	}
	if err := container.Provide(domain.NewQuotaGate); err != nil {
		log.Fatalf("Failed to provide quota gate: %v", err)
	}

	// Seed the built-in analysis template (invoked for side effects)
	if err := container.Invoke(func(templates domain.TemplateStore) error {
		return templates.Upsert(context.Background(), analysis.SeedTemplate())
	}); err != nil {
		log.Fatalf("Failed to seed analysis template: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(cfg *config.CORSConfig) middleware.Middleware {
		return middleware.BuildMiddlewareChain(cfg)
	}); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(func(svc *auth.Service) middleware.Authenticator {
		return svc
	}); err != nil {
		log.Fatalf("Failed to provide authenticator: %v", err)
	}
	if err := container.Provide(httpserver.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(httpserver.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
