// Package gateway provides the adapter for the OpenAI-compatible relay
// gateway. It speaks the chat-completions SSE wire format directly over
// net/http and normalizes the per-chunk delta shape into domain events.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ifinance/relay/internal/domain"
	"github.com/ifinance/relay/internal/observability"
)

const (
	adapterName  = "gateway"
	defaultModel = "gpt-4o-mini"

	doneSentinel = "[DONE]"
	dataPrefix   = "data: "

	// SSE lines are normally tiny, but a generous scanner buffer keeps a
	// long delta from truncating the stream.
	scanBufferSize = 1024 * 1024
)

// modelAliases maps legacy or vendor-shorthand names to the identifiers
// the gateway actually serves.
var modelAliases = map[string]string{
	"gpt-4-turbo-preview": "gpt-4-turbo",
	"gpt-3.5-turbo-16k":   "gpt-3.5-turbo",
	"claude-3-sonnet":     "claude-3-5-sonnet",
	"claude-3-haiku":      "claude-3-5-haiku",
}

// knownModels pass through to the gateway unchanged.
var knownModels = map[string]bool{
	"gpt-4o":            true,
	"gpt-4o-mini":       true,
	"gpt-4":             true,
	"gpt-4-turbo":       true,
	"gpt-3.5-turbo":     true,
	"claude-3-5-sonnet": true,
	"claude-3-5-haiku":  true,
	"claude-3-opus":     true,
}

// Adapter implements domain.Adapter for the OpenAI-compatible gateway.
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAdapter creates a new gateway adapter.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gateway API key is required")
	}

	return &Adapter{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}, nil
}

// Name returns the backend identifier.
func (a *Adapter) Name() string {
	return adapterName
}

// ResolveModel maps the requested model through the static alias table.
// Known models pass through unchanged; anything else falls back to the
// gateway default.
func (a *Adapter) ResolveModel(model string) string {
	if model == "" {
		return defaultModel
	}
	if alias, ok := modelAliases[model]; ok {
		return alias
	}
	if knownModels[model] {
		return model
	}
	return defaultModel
}

// Gateway wire types (OpenAI chat-completions shape).

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Stream opens the upstream SSE call and produces the delta-event
// sequence. Upstream rejection or connection failure surfaces as
// *domain.UpstreamError before any event is emitted.
func (a *Adapter) Stream(ctx context.Context, req *domain.ChatRequest) (<-chan domain.DeltaEvent, error) {
	//nolint:bodyclose // Response body is closed by the reader goroutine
	resp, err := a.open(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan domain.DeltaEvent)
	go a.readStream(ctx, resp, events)

	return events, nil
}

// open builds and executes the streaming HTTP request.
func (a *Adapter) open(ctx context.Context, req *domain.ChatRequest) (*http.Response, error) {
	messages := make([]wireMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = wireMessage{Role: msg.Role, Content: msg.Content}
	}

	body, err := json.Marshal(wireRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, &domain.UpstreamError{Provider: adapterName, Message: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		a.baseURL+"/chat/completions",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, &domain.UpstreamError{Provider: adapterName, Message: err.Error()}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.UpstreamError{Provider: adapterName, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, &domain.UpstreamError{
			Provider: adapterName,
			Status:   resp.StatusCode,
			Message:  string(errBody),
		}
	}

	return resp, nil
}

// readStream scans the SSE body line by line and forwards normalized
// events. Unparseable data lines are skipped rather than aborting the
// stream; a transient wire glitch should not kill an otherwise-good
// answer.
func (a *Adapter) readStream(ctx context.Context, resp *http.Response, events chan<- domain.DeltaEvent) {
	defer close(events)
	defer resp.Body.Close()

	logger := observability.FromContext(ctx)

	var totalTokens int64

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		data := strings.TrimPrefix(line, dataPrefix)
		if data == doneSentinel {
			select {
			case events <- domain.DeltaEvent{Terminal: true, TotalTokens: totalTokens}:
			case <-ctx.Done():
			}
			return
		}

		var chunk wireChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logger.Debug("skipping malformed stream chunk", observability.Error(err))
			continue
		}

		if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
			totalTokens = chunk.Usage.TotalTokens
		}

		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		select {
		case events <- domain.DeltaEvent{Content: chunk.Choices[0].Delta.Content}:
		case <-ctx.Done():
			return
		}
	}

	// Scanner error or upstream closed without [DONE]: the relay treats
	// a closed channel as an implicit terminal, so only real read errors
	// need forwarding.
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		select {
		case events <- domain.DeltaEvent{Err: &domain.UpstreamError{Provider: adapterName, Message: err.Error()}}:
		case <-ctx.Done():
		}
	}
}
