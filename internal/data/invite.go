package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
)

// pendingJoinRepo implements the pending invite repository
type pendingJoinRepo struct {
	db *sql.DB
}

// NewPendingJoinRepo creates a new pending join repository
func NewPendingJoinRepo(db *sql.DB) (repo.PendingJoinRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_joins (
			code TEXT PRIMARY KEY,
			author_id TEXT NOT NULL,
			author_name TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending_joins table: %w", err)
	}
	return &pendingJoinRepo{db: db}, nil
}

// Save saves a pending join
func (r *pendingJoinRepo) Save(ctx context.Context, j *domain.PendingJoin) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending_joins (code, author_id, author_name, created_at)
		VALUES (?, ?, ?, ?)
	`, j.Code, j.AuthorID, j.AuthorName, j.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save pending join: %w", err)
	}
	return nil
}

// List lists pending joins, oldest first
func (r *pendingJoinRepo) List(ctx context.Context) ([]*domain.PendingJoin, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, author_id, author_name, created_at FROM pending_joins ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending joins: %w", err)
	}
	defer rows.Close()

	var joins []*domain.PendingJoin
	for rows.Next() {
		var j domain.PendingJoin
		var createdAt int64
		if err := rows.Scan(&j.Code, &j.AuthorID, &j.AuthorName, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending join: %w", err)
		}
		j.CreatedAt = time.Unix(createdAt, 0)
		joins = append(joins, &j)
	}
	return joins, rows.Err()
}

// Remove deletes a pending join
func (r *pendingJoinRepo) Remove(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_joins WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("failed to remove pending join: %w", err)
	}
	return nil
}
