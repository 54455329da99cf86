package gateway

// Config contains the OpenAI-compatible gateway settings. The gateway
// fronts several vendors (OpenAI, Anthropic, OpenRouter models) behind one
// chat-completions endpoint with bearer-token auth.
type Config struct {
	APIKey  string `env:"GATEWAY_API_KEY"`
	BaseURL string `env:"GATEWAY_BASE_URL" envDefault:"https://apps.abacus.ai/v1"`
	Timeout int    `env:"GATEWAY_TIMEOUT"  envDefault:"300"`
}
