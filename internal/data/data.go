package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ravenabot/ravena/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// Repositories contains all repositories
type Repositories struct {
	Group       repo.GroupRepo
	Ranking     repo.RankingRepo
	PendingJoin repo.PendingJoinRepo
	LLM         repo.LLMRepo
	Classifier  repo.ClassifierRepo

	db *sql.DB
}

// NewRepositories creates all repositories over one SQLite database.
// aiClient may be nil, leaving LLM and Classifier unset.
func NewRepositories(dbPath string, aiClient *OpenAIClient) (*Repositories, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	groupRepo, err := NewGroupRepo(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	rankingRepo, err := NewRankingRepo(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	joinRepo, err := NewPendingJoinRepo(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	repos := &Repositories{
		Group:       groupRepo,
		Ranking:     rankingRepo,
		PendingJoin: joinRepo,
		db:          db,
	}
	if aiClient != nil {
		repos.LLM = aiClient
		repos.Classifier = aiClient
	}
	return repos, nil
}

// Close closes the database connection
func (r *Repositories) Close() error {
	return r.db.Close()
}

func openDB(dbPath string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; handlers run concurrently
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	return db, nil
}
