package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ifinance/relay/internal/domain"
	"github.com/ifinance/relay/internal/observability"
)

// FinalizeInput carries everything the end-of-stream persistence step
// needs: the original request, the accumulated response, and the usage
// figures observed at stream completion.
type FinalizeInput struct {
	UserID      string
	Request     *domain.ChatRequest
	Content     string
	Model       string
	Provider    string
	TotalTokens int64 // 0 means the upstream never reported usage
	Latency     time.Duration
	RequestType string
}

// Finalizer persists the exchange at stream completion: the conversation
// with all its messages, the user's cumulative token counter, and a
// usage-log entry.
//
// Every step follows the best-effort side-effect policy: a failure is
// logged and the remaining steps still run. Already-delivered content must
// never be regenerated because bookkeeping failed, so nothing here
// propagates to the transport.
type Finalizer struct {
	conversations domain.ConversationStore
	users         domain.UserStore
	usage         domain.UsageStore

	fallbackTokens int64
	costPerToken   float64
}

// NewFinalizer creates a new usage finalizer (DI constructor).
func NewFinalizer(
	conversations domain.ConversationStore,
	users domain.UserStore,
	usage domain.UsageStore,
	cfg *RelayCostConfig,
) *Finalizer {
	return &Finalizer{
		conversations:  conversations,
		users:          users,
		usage:          usage,
		fallbackTokens: cfg.FallbackTokenEstimate,
		costPerToken:   cfg.CostPerToken,
	}
}

// RelayCostConfig is the accounting slice of the relay configuration.
type RelayCostConfig struct {
	FallbackTokenEstimate int64
	CostPerToken          float64
}

// Finalize records the exchange. The token count falls back to a fixed
// estimate when the upstream never reported one; it is never persisted as
// zero.
func (f *Finalizer) Finalize(ctx context.Context, in FinalizeInput) {
	logger := observability.FromContext(ctx)

	tokens := in.TotalTokens
	if tokens <= 0 {
		tokens = f.fallbackTokens
	}

	latencyMs := in.Latency.Milliseconds()
	now := time.Now()

	entries := make([]domain.ConversationEntry, 0, len(in.Request.Messages)+1)
	for _, msg := range in.Request.Messages {
		entry := domain.ConversationEntry{
			ID:        uuid.New().String(),
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: now,
		}
		if msg.Role != domain.RoleUser {
			entry.Model = in.Model
			entry.Provider = in.Provider
		}
		entries = append(entries, entry)
	}
	entries = append(entries, domain.ConversationEntry{
		ID:         uuid.New().String(),
		Role:       domain.RoleAssistant,
		Content:    in.Content,
		Model:      in.Model,
		Provider:   in.Provider,
		TokenCount: tokens,
		LatencyMs:  latencyMs,
		CreatedAt:  now,
	})

	conv := &domain.Conversation{
		ID:        uuid.New().String(),
		Title:     domain.DeriveTitle(in.Request.Messages),
		UserID:    in.UserID,
		Model:     in.Model,
		Provider:  in.Provider,
		Messages:  entries,
		CreatedAt: now,
	}

	bestEffort(logger, "conversation create", f.conversations.Create(ctx, conv))
	bestEffort(logger, "token counter increment", f.users.IncrementTokensUsed(ctx, in.UserID, tokens))
	bestEffort(logger, "usage log append", f.usage.Append(ctx, &domain.UsageLogEntry{
		ID:             uuid.New().String(),
		UserID:         in.UserID,
		Provider:       in.Provider,
		Model:          in.Model,
		TokenCount:     tokens,
		Cost:           float64(tokens) * f.costPerToken,
		RequestType:    in.RequestType,
		ResponseTimeMs: latencyMs,
		CreatedAt:      now,
	}))
}

// bestEffort logs and swallows a persistence failure.
func bestEffort(logger *zap.Logger, op string, err error) {
	if err != nil {
		logger.Error("finalization step failed",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}
