package repo

import (
	"context"

	"github.com/ravenabot/ravena/internal/biz/domain"
)

// GroupRepo is the group configuration repository interface
// Persists whole records; a save atomically replaces the previous one
type GroupRepo interface {
	// List lists all stored groups
	List(ctx context.Context) ([]*domain.GroupConfig, error)

	// Get gets a group by id, nil if absent
	Get(ctx context.Context, id string) (*domain.GroupConfig, error)

	// Save saves a group (create or replace)
	Save(ctx context.Context, group *domain.GroupConfig) error
}

// RankingRepo stores per-chat message counters
type RankingRepo interface {
	// Increment bumps the sender's counter and refreshes the display name
	Increment(ctx context.Context, chatID, userID, userName string) error

	// List returns the chat ranking ordered by message count (descending)
	List(ctx context.Context, chatID string) ([]domain.RankEntry, error)
}

// PendingJoinRepo stores invites waiting for approval
type PendingJoinRepo interface {
	Save(ctx context.Context, join *domain.PendingJoin) error
	List(ctx context.Context) ([]*domain.PendingJoin, error)
	Remove(ctx context.Context, code string) error
}
