package domain

import (
	"context"
	"fmt"

	"github.com/ifinance/relay/internal/observability"
)

// QuotaGate performs the pre-flight usage check. It runs before any
// upstream network call so an over-quota request costs nothing.
type QuotaGate struct {
	users UserStore
}

// NewQuotaGate creates a new quota gate (DI constructor).
func NewQuotaGate(users UserStore) *QuotaGate {
	return &QuotaGate{users: users}
}

// Check fetches the user's quota state and rejects the request when the
// budget is spent. No side effects.
func (g *QuotaGate) Check(ctx context.Context, userID string) (*User, error) {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}

	if user.TokensUsed >= user.TokensLimit {
		observability.FromContext(ctx).Info("quota exceeded",
			observability.String("user_id", userID),
			observability.Int64("tokens_used", user.TokensUsed),
			observability.Int64("tokens_limit", user.TokensLimit),
		)
		return nil, ErrQuotaExceeded
	}

	return user, nil
}
