package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/ifinance/relay/internal/provider/gateway"
	"github.com/ifinance/relay/internal/provider/groq"
)

// Config represents the relay configuration.
type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Relay    RelayConfig
	Gateway  gateway.Config
	Groq     groq.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int `env:"SERVER_PORT"         envDefault:"8080"`
	ReadTimeout int `env:"SERVER_READ_TIMEOUT" envDefault:"30"`
	// WriteTimeout must stay generous: the chat endpoint holds the
	// response open for the lifetime of the upstream stream.
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"300"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// AuthConfig contains session token settings.
type AuthConfig struct {
	JWTSecret       string `env:"AUTH_JWT_SECRET"`
	SessionTTLHours int    `env:"AUTH_SESSION_TTL_HOURS" envDefault:"720"`
}

// DatabaseConfig contains the relational store settings.
type DatabaseConfig struct {
	Path string `env:"DATABASE_PATH" envDefault:"data/relay.db"`
}

// RedisConfig contains session store settings.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
}

// RelayConfig tunes the streaming relay and its accounting.
type RelayConfig struct {
	MaxTokens   int     `env:"RELAY_MAX_TOKENS"  envDefault:"3000"`
	Temperature float64 `env:"RELAY_TEMPERATURE" envDefault:"0.7"`

	AnalysisModel       string  `env:"ANALYSIS_MODEL"       envDefault:"gpt-4o"`
	AnalysisMaxTokens   int     `env:"ANALYSIS_MAX_TOKENS"  envDefault:"8000"`
	AnalysisTemperature float64 `env:"ANALYSIS_TEMPERATURE" envDefault:"0.3"`

	// FallbackTokenEstimate is recorded when the upstream never reports
	// a usage figure for a stream.
	FallbackTokenEstimate int64 `env:"RELAY_FALLBACK_TOKEN_ESTIMATE" envDefault:"100"`

	// CostPerToken is the fixed per-token rate used to derive the cost
	// column of usage-log entries.
	CostPerToken float64 `env:"RELAY_COST_PER_TOKEN" envDefault:"0.0001"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	Server   *ServerConfig
	CORS     *CORSConfig
	Auth     *AuthConfig
	Database *DatabaseConfig
	Redis    *RedisConfig
	Relay    *RelayConfig
	Gateway  *gateway.Config
	Groq     *groq.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:   &cfg.Server,
		CORS:     &cfg.CORS,
		Auth:     &cfg.Auth,
		Database: &cfg.Database,
		Redis:    &cfg.Redis,
		Relay:    &cfg.Relay,
		Gateway:  &cfg.Gateway,
		Groq:     &cfg.Groq,
	}
}
