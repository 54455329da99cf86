package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ifinance/relay/internal/domain"
)

// TemplateStore implements domain.TemplateStore.
type TemplateStore struct {
	db *sql.DB
}

// Templates returns the template store facade.
func (s *Store) Templates() *TemplateStore {
	return &TemplateStore{db: s.db}
}

const templateColumns = `id, name, description, prompt, category, active, model, temperature, max_tokens`

// GetByID fetches an active template by id.
func (s *TemplateStore) GetByID(ctx context.Context, id string) (*domain.FinancialTemplate, error) {
	return s.get(ctx, "id", id)
}

// GetByName fetches an active template by name.
func (s *TemplateStore) GetByName(ctx context.Context, name string) (*domain.FinancialTemplate, error) {
	return s.get(ctx, "name", name)
}

func (s *TemplateStore) get(ctx context.Context, column, value string) (*domain.FinancialTemplate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM financial_templates
		WHERE `+column+` = ? AND active = 1`, value)

	var tpl domain.FinancialTemplate
	err := row.Scan(
		&tpl.ID, &tpl.Name, &tpl.Description, &tpl.Prompt, &tpl.Category,
		&tpl.Active, &tpl.Model, &tpl.Temperature, &tpl.MaxTokens,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return &tpl, nil
}

// Upsert inserts or replaces a template by name. Used to seed the static
// templates at startup.
func (s *TemplateStore) Upsert(ctx context.Context, tpl *domain.FinancialTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO financial_templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			prompt      = excluded.prompt,
			category    = excluded.category,
			active      = excluded.active,
			model       = excluded.model,
			temperature = excluded.temperature,
			max_tokens  = excluded.max_tokens`,
		tpl.ID, tpl.Name, tpl.Description, tpl.Prompt, tpl.Category,
		tpl.Active, tpl.Model, tpl.Temperature, tpl.MaxTokens,
	)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	db *sql.DB
}

// Audit returns the audit-log store facade.
func (s *Store) Audit() *AuditStore {
	return &AuditStore{db: s.db}
}

// Append inserts an audit-log entry.
func (s *AuditStore) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Action, entry.Resource, entry.Details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
