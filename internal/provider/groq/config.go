package groq

// Config contains Groq provider configuration. Groq exposes an
// OpenAI-compatible surface, so the official SDK is pointed at its base
// URL:
//   - APIKey: Maps to option.WithAPIKey()
//   - BaseURL: Maps to option.WithBaseURL()
//   - Timeout: Maps to option.WithRequestTimeout() (in seconds)
//   - MaxRetries: Maps to option.WithMaxRetries()
type Config struct {
	APIKey     string `env:"GROQ_API_KEY"`
	BaseURL    string `env:"GROQ_BASE_URL"    envDefault:"https://api.groq.com/openai/v1"`
	Timeout    int    `env:"GROQ_TIMEOUT"     envDefault:"120"`
	MaxRetries int    `env:"GROQ_MAX_RETRIES" envDefault:"2"`
}
