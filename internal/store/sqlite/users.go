package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ifinance/relay/internal/domain"
)

// UserStore implements domain.UserStore.
type UserStore struct {
	db *sql.DB
}

// Users returns the user store facade.
func (s *Store) Users() *UserStore {
	return &UserStore{db: s.db}
}

const userColumns = `id, email, password_hash, name, first_name, last_name,
	company_name, plan, tokens_used, tokens_limit, created_at`

// Create inserts a new user.
func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Name, user.FirstName,
		user.LastName, user.CompanyName, user.Plan, user.TokensUsed,
		user.TokensLimit, user.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID fetches a user by id.
func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.get(ctx, "id", id)
}

// GetByEmail fetches a user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.get(ctx, "email", email)
}

func (s *UserStore) get(ctx context.Context, column, value string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)

	var user domain.User
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name,
		&user.FirstName, &user.LastName, &user.CompanyName, &user.Plan,
		&user.TokensUsed, &user.TokensLimit, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

// UpdateProfile updates the mutable profile fields of a user.
func (s *UserStore) UpdateProfile(ctx context.Context, user *domain.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = ?, first_name = ?, last_name = ?, company_name = ?
		WHERE id = ?`,
		user.Name, user.FirstName, user.LastName, user.CompanyName, user.ID,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// IncrementTokensUsed atomically adds tokens to the user's cumulative
// counter. The increment happens in the database, so concurrent
// finalizations for the same user never lose updates.
func (s *UserStore) IncrementTokensUsed(ctx context.Context, id string, tokens int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET tokens_used = tokens_used + ? WHERE id = ?`, tokens, id)
	if err != nil {
		return fmt.Errorf("increment tokens used: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
