package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ifinance/relay/internal/domain"
)

// FileStore implements domain.FileStore.
type FileStore struct {
	db *sql.DB
}

// Files returns the file store facade.
func (s *Store) Files() *FileStore {
	return &FileStore{db: s.db}
}

// Create inserts uploaded file metadata and its extracted text.
func (s *FileStore) Create(ctx context.Context, file *domain.FileRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, user_id, name, size, content_type, extracted_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.UserID, file.Name, file.Size, file.ContentType,
		file.ExtractedText, file.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// GetByIDs fetches the given files, restricted to the owning user, in the
// order they were requested.
func (s *FileStore) GetByIDs(ctx context.Context, userID string, ids []string) ([]domain.FileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, userID)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, size, content_type, extracted_text, created_at
		FROM files
		WHERE id IN (`+placeholders+`) AND user_id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.FileRecord, len(ids))
	for rows.Next() {
		var file domain.FileRecord
		if err := rows.Scan(
			&file.ID, &file.UserID, &file.Name, &file.Size,
			&file.ContentType, &file.ExtractedText, &file.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		byID[file.ID] = file
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}

	files := make([]domain.FileRecord, 0, len(byID))
	for _, id := range ids {
		if file, ok := byID[id]; ok {
			files = append(files, file)
		}
	}
	return files, nil
}
