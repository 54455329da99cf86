package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ifinance/relay/internal/domain"
	"github.com/ifinance/relay/internal/store/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedUser(t *testing.T, store *sqlite.Store) *domain.User {
	t.Helper()

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		Name:         "Ana Souza",
		FirstName:    "Ana",
		LastName:     "Souza",
		Plan:         "FREE",
		TokensLimit:  10000,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.Users().Create(context.Background(), user))
	return user
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should round-trip a user", func(t *testing.T) {
		store := openTestStore(t)
		user := seedUser(t, store)

		got, err := store.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, user.Email, got.Email)
		require.Equal(t, int64(10000), got.TokensLimit)

		byEmail, err := store.Users().GetByEmail(ctx, user.Email)
		require.NoError(t, err)
		require.Equal(t, user.ID, byEmail.ID)
	})

	t.Run("should reject a duplicate email", func(t *testing.T) {
		store := openTestStore(t)
		user := seedUser(t, store)

		dup := *user
		dup.ID = uuid.NewString()
		err := store.Users().Create(ctx, &dup)

		require.ErrorIs(t, err, domain.ErrEmailTaken)
	})

	t.Run("should return not found for unknown ids", func(t *testing.T) {
		store := openTestStore(t)

		_, err := store.Users().GetByID(ctx, "ghost")

		require.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("should update the profile", func(t *testing.T) {
		store := openTestStore(t)
		user := seedUser(t, store)

		user.FirstName = "Beatriz"
		user.Name = "Beatriz Souza"
		require.NoError(t, store.Users().UpdateProfile(ctx, user))

		got, err := store.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "Beatriz", got.FirstName)
	})

	t.Run("should accumulate token increments", func(t *testing.T) {
		store := openTestStore(t)
		user := seedUser(t, store)

		require.NoError(t, store.Users().IncrementTokensUsed(ctx, user.ID, 42))
		require.NoError(t, store.Users().IncrementTokensUsed(ctx, user.ID, 100))

		got, err := store.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, int64(142), got.TokensUsed)
	})
}

func TestConversationStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist a conversation with ordered messages", func(t *testing.T) {
		store := openTestStore(t)
		user := seedUser(t, store)

		now := time.Now()
		conv := &domain.Conversation{
			ID:       uuid.NewString(),
			Title:    "Quanto gastei?...",
			UserID:   user.ID,
			Model:    "gpt-4o-mini",
			Provider: "gateway",
			Messages: []domain.ConversationEntry{
				{ID: uuid.NewString(), Role: domain.RoleUser, Content: "Quanto gastei?", CreatedAt: now},
				{
					ID: uuid.NewString(), Role: domain.RoleAssistant, Content: "R$ 100",
					Model: "gpt-4o-mini", Provider: "gateway", TokenCount: 42, LatencyMs: 350, CreatedAt: now,
				},
			},
			CreatedAt: now,
		}
		require.NoError(t, store.Conversations().Create(ctx, conv))

		got, err := store.Conversations().GetByID(ctx, conv.ID)
		require.NoError(t, err)
		require.Equal(t, conv.Title, got.Title)
		require.Len(t, got.Messages, 2)
		require.Equal(t, domain.RoleUser, got.Messages[0].Role)
		require.Equal(t, int64(42), got.Messages[1].TokenCount)
	})

	t.Run("should list a user's conversations newest first", func(t *testing.T) {
		store := openTestStore(t)
		user := seedUser(t, store)

		for i, title := range []string{"older", "newer"} {
			conv := &domain.Conversation{
				ID:        uuid.NewString(),
				Title:     title,
				UserID:    user.ID,
				Model:     "gpt-4o-mini",
				Provider:  "gateway",
				CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, store.Conversations().Create(ctx, conv))
		}

		list, err := store.Conversations().ListByUser(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, "newer", list[0].Title)
	})
}

func TestUsageStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should list entries inside the window only", func(t *testing.T) {
		store := openTestStore(t)
		user := seedUser(t, store)

		old := &domain.UsageLogEntry{
			ID: uuid.NewString(), UserID: user.ID, Provider: "gateway", Model: "gpt-4o-mini",
			TokenCount: 10, Cost: 0.001, RequestType: domain.RequestTypeChat,
			CreatedAt: time.Now().AddDate(0, 0, -60),
		}
		recent := &domain.UsageLogEntry{
			ID: uuid.NewString(), UserID: user.ID, Provider: "gateway", Model: "gpt-4o-mini",
			TokenCount: 20, Cost: 0.002, RequestType: domain.RequestTypeChat,
			CreatedAt: time.Now(),
		}
		require.NoError(t, store.Usage().Append(ctx, old))
		require.NoError(t, store.Usage().Append(ctx, recent))

		entries, err := store.Usage().ListByUserSince(ctx, user.ID, time.Now().AddDate(0, 0, -30))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, int64(20), entries[0].TokenCount)
	})
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should only return the owner's files", func(t *testing.T) {
		store := openTestStore(t)
		owner := seedUser(t, store)
		other := seedUser(t, store)

		mine := &domain.FileRecord{
			ID: uuid.NewString(), UserID: owner.ID, Name: "balanco.csv",
			Size: 11, ContentType: "text/csv", ExtractedText: "receita,100", CreatedAt: time.Now(),
		}
		theirs := &domain.FileRecord{
			ID: uuid.NewString(), UserID: other.ID, Name: "dre.csv",
			Size: 5, ContentType: "text/csv", CreatedAt: time.Now(),
		}
		require.NoError(t, store.Files().Create(ctx, mine))
		require.NoError(t, store.Files().Create(ctx, theirs))

		got, err := store.Files().GetByIDs(ctx, owner.ID, []string{mine.ID, theirs.ID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "balanco.csv", got[0].Name)
		require.Equal(t, "receita,100", got[0].ExtractedText)
	})
}

func TestTemplateStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should upsert by name and fetch by id or name", func(t *testing.T) {
		store := openTestStore(t)

		tpl := &domain.FinancialTemplate{
			ID: "tpl-1", Name: "Análise Financeira iFinance", Prompt: "...",
			Active: true, Model: "gpt-4o", Temperature: 0.3, MaxTokens: 8000,
		}
		require.NoError(t, store.Templates().Upsert(ctx, tpl))

		tpl.Prompt = "updated"
		require.NoError(t, store.Templates().Upsert(ctx, tpl))

		byID, err := store.Templates().GetByID(ctx, "tpl-1")
		require.NoError(t, err)
		require.Equal(t, "updated", byID.Prompt)

		byName, err := store.Templates().GetByName(ctx, tpl.Name)
		require.NoError(t, err)
		require.Equal(t, "tpl-1", byName.ID)
	})

	t.Run("should not serve inactive templates", func(t *testing.T) {
		store := openTestStore(t)

		tpl := &domain.FinancialTemplate{ID: "tpl-2", Name: "old", Prompt: "x", Active: false}
		require.NoError(t, store.Templates().Upsert(ctx, tpl))

		_, err := store.Templates().GetByID(ctx, "tpl-2")
		require.ErrorIs(t, err, domain.ErrTemplateNotFound)
	})
}

func TestAuditStore(t *testing.T) {
	t.Run("should append entries", func(t *testing.T) {
		store := openTestStore(t)
		user := seedUser(t, store)

		err := store.Audit().Append(context.Background(), &domain.AuditLogEntry{
			ID: uuid.NewString(), UserID: user.ID, Action: "USE_TEMPLATE",
			Resource: "tpl-1", CreatedAt: time.Now(),
		})

		require.NoError(t, err)
	})
}
