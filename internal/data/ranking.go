package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
)

// rankingRepo implements the message ranking repository
type rankingRepo struct {
	db *sql.DB
}

// NewRankingRepo creates a new ranking repository
func NewRankingRepo(db *sql.DB) (repo.RankingRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ranking (
			chat_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			messages INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, user_id)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create ranking table: %w", err)
	}
	return &rankingRepo{db: db}, nil
}

// Increment bumps a sender's message count
func (r *rankingRepo) Increment(ctx context.Context, chatID, userID, userName string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ranking (chat_id, user_id, name, messages) VALUES (?, ?, ?, 1)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET messages = messages + 1, name = excluded.name
	`, chatID, userID, userName)
	if err != nil {
		return fmt.Errorf("failed to increment ranking: %w", err)
	}
	return nil
}

// List returns the chat ranking, most active first
func (r *rankingRepo) List(ctx context.Context, chatID string) ([]domain.RankEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chat_id, user_id, name, messages
		FROM ranking
		WHERE chat_id = ?
		ORDER BY messages DESC, name ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranking: %w", err)
	}
	defer rows.Close()

	var entries []domain.RankEntry
	for rows.Next() {
		var e domain.RankEntry
		if err := rows.Scan(&e.ChatID, &e.UserID, &e.Name, &e.Messages); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
