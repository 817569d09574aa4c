package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
)

// groupRepo stores each group as one JSON document
type groupRepo struct {
	db *sql.DB
}

// NewGroupRepo creates a new group repository
func NewGroupRepo(db *sql.DB) (repo.GroupRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS group_configs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create group_configs table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_group_configs_name ON group_configs(name)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &groupRepo{db: db}, nil
}

// List lists all groups
func (r *groupRepo) List(ctx context.Context) ([]*domain.GroupConfig, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, data FROM group_configs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.GroupConfig
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g, err := decodeGroup(id, data)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

// Get gets a group by id
func (r *groupRepo) Get(ctx context.Context, id string) (*domain.GroupConfig, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM group_configs WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query group: %w", err)
	}
	return decodeGroup(id, data)
}

// Save saves a group, replacing the whole record
func (r *groupRepo) Save(ctx context.Context, g *domain.GroupConfig) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode group: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO group_configs (id, name, data, updated_at)
		VALUES (?, ?, ?, ?)
	`, g.ID, g.Name, string(data), g.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func decodeGroup(id, data string) (*domain.GroupConfig, error) {
	var g domain.GroupConfig
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("failed to decode group %s: %w", id, err)
	}
	return &g, nil
}
