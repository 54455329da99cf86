// Package groq provides the Groq adapter using the official OpenAI SDK
// pointed at Groq's OpenAI-compatible endpoint. It converts the SDK's
// streaming iterator into the domain delta-event sequence.
package groq

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ifinance/relay/internal/domain"
	"github.com/ifinance/relay/internal/observability"
)

const (
	adapterName  = "groq"
	defaultModel = "llama-3.1-8b-instant"
)

// modelAliases maps shorthand names to Groq's canonical identifiers.
var modelAliases = map[string]string{
	"llama3-70b": "llama3-70b-8192",
	"llama3-8b":  "llama3-8b-8192",
	"mixtral":    "mixtral-8x7b-32768",
	"gemma":      "gemma2-9b-it",
}

// knownModels pass through unchanged.
var knownModels = map[string]bool{
	"llama-3.1-70b-versatile": true,
	"llama-3.1-8b-instant":    true,
	"llama3-70b-8192":         true,
	"llama3-8b-8192":          true,
	"mixtral-8x7b-32768":      true,
	"gemma2-9b-it":            true,
}

// Adapter implements domain.Adapter for Groq.
type Adapter struct {
	client openai.Client
}

// NewAdapter creates a new Groq adapter.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("groq API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	}

	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.Timeout)*time.Second))
	}

	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	return &Adapter{client: openai.NewClient(opts...)}, nil
}

// Name returns the backend identifier.
func (a *Adapter) Name() string {
	return adapterName
}

// ResolveModel maps the requested model to a Groq identifier. Family
// substrings resolve first (any llama-3.1-70b variant lands on the
// versatile model), then the exact alias table, then pass-through for
// canonical names, then the backend default.
func (a *Adapter) ResolveModel(model string) string {
	switch {
	case strings.Contains(model, "llama-3.1-70b"):
		return "llama-3.1-70b-versatile"
	case strings.Contains(model, "llama-3.1-8b"):
		return "llama-3.1-8b-instant"
	}
	if alias, ok := modelAliases[model]; ok {
		return alias
	}
	if knownModels[model] {
		return model
	}
	return defaultModel
}

// Stream opens the SDK streaming call and converts chunk objects into
// delta events.
func (a *Adapter) Stream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.DeltaEvent, error) {
	params := toSDKParams(req)

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)

	// A rejected call or connection failure shows up on the stream
	// before any chunk; surface it as an upstream error instead of an
	// event so no partial response ever starts.
	if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, &domain.UpstreamError{Provider: adapterName, Message: err.Error()}
	}

	events := make(chan domain.DeltaEvent)

	go func() {
		defer close(events)

		logger := observability.FromContext(ctx)

		var totalTokens int64

		for stream.Next() {
			chunk := stream.Current()

			// Groq reports usage on the final chunk when it reports it
			// at all; keep the last figure seen.
			if chunk.Usage.TotalTokens > 0 {
				totalTokens = chunk.Usage.TotalTokens
			}

			if len(chunk.Choices) == 0 {
				continue
			}

			delta := chunk.Choices[0].Delta.Content
			done := chunk.Choices[0].FinishReason != ""

			if delta != "" {
				select {
				case events <- domain.DeltaEvent{Content: delta}:
				case <-ctx.Done():
					return
				}
			}

			if done {
				select {
				case events <- domain.DeltaEvent{Terminal: true, TotalTokens: totalTokens}:
				case <-ctx.Done():
				}
				return
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
			logger.Warn("groq stream failed", observability.Error(err))
			select {
			case events <- domain.DeltaEvent{Err: &domain.UpstreamError{Provider: adapterName, Message: err.Error()}}:
			case <-ctx.Done():
			}
		}
	}()

	return events, nil
}

// toSDKParams converts the domain request to SDK ChatCompletionNewParams.
func toSDKParams(req *domain.ChatRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, len(req.Messages))
	for i, msg := range req.Messages {
		switch msg.Role {
		case domain.RoleAssistant:
			messages[i] = openai.AssistantMessage(msg.Content)
		case domain.RoleSystem:
			messages[i] = openai.SystemMessage(msg.Content)
		default:
			messages[i] = openai.UserMessage(msg.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	return params
}
