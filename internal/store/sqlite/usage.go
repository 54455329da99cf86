package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ifinance/relay/internal/domain"
)

// UsageStore implements domain.UsageStore.
type UsageStore struct {
	db *sql.DB
}

// Usage returns the usage-log store facade.
func (s *Store) Usage() *UsageStore {
	return &UsageStore{db: s.db}
}

// Append inserts a usage-log entry. The log is append-only; nothing in
// the relay ever updates or deletes entries.
func (s *UsageStore) Append(ctx context.Context, entry *domain.UsageLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_logs
			(id, user_id, provider, model, token_count, cost, request_type, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Provider, entry.Model, entry.TokenCount,
		entry.Cost, entry.RequestType, entry.ResponseTimeMs, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

// ListByUserSince returns the user's usage-log entries at or after the
// given time, newest first.
func (s *UsageStore) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]domain.UsageLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider, model, token_count, cost, request_type, response_time_ms, created_at
		FROM usage_logs
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("query usage logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.UsageLogEntry
	for rows.Next() {
		var entry domain.UsageLogEntry
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Provider, &entry.Model,
			&entry.TokenCount, &entry.Cost, &entry.RequestType,
			&entry.ResponseTimeMs, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan usage log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage logs: %w", err)
	}

	return entries, nil
}
