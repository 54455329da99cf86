package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ifinance/relay/internal/domain"
)

// ConversationStore implements domain.ConversationStore.
type ConversationStore struct {
	db *sql.DB
}

// Conversations returns the conversation store facade.
func (s *Store) Conversations() *ConversationStore {
	return &ConversationStore{db: s.db}
}

// Create persists the conversation and all its messages in one
// transaction: either the whole exchange is recorded or none of it is.
func (s *ConversationStore) Create(ctx context.Context, conv *domain.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin conversation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, model, provider, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Title, conv.Model, conv.Provider, conv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for seq, msg := range conv.Messages {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages
				(id, conversation_id, seq, role, content, model, provider, token_count, latency_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, conv.ID, seq, msg.Role, msg.Content, msg.Model,
			msg.Provider, msg.TokenCount, msg.LatencyMs, msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert message %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit conversation tx: %w", err)
	}
	return nil
}

// GetByID fetches a conversation with its messages in insertion order.
func (s *ConversationStore) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, model, provider, created_at
		FROM conversations WHERE id = ?`, id)

	var conv domain.Conversation
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Model, &conv.Provider, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, model, provider, token_count, latency_ms, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg domain.ConversationEntry
		if err := rows.Scan(
			&msg.ID, &msg.Role, &msg.Content, &msg.Model, &msg.Provider,
			&msg.TokenCount, &msg.LatencyMs, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return &conv, nil
}

// ListByUser returns the user's conversations, newest first, without
// their messages.
func (s *ConversationStore) ListByUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, model, provider, created_at
		FROM conversations WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		if err := rows.Scan(
			&conv.ID, &conv.UserID, &conv.Title, &conv.Model, &conv.Provider, &conv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	return convs, nil
}
