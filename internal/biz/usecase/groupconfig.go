package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
)

// GroupConfigUsecase owns the group configuration lifecycle:
// unloaded -> loaded in memory -> persisted after every create/update.
// Callers get snapshots; saves replace the cached record (last write wins).
type GroupConfigUsecase struct {
	groupRepo repo.GroupRepo
	log       zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*domain.GroupConfig
}

// NewGroupConfigUsecase creates a new group config usecase
func NewGroupConfigUsecase(groupRepo repo.GroupRepo, log zerolog.Logger) *GroupConfigUsecase {
	return &GroupConfigUsecase{
		groupRepo: groupRepo,
		log:       log.With().Str("component", "groups").Logger(),
		cache:     make(map[string]*domain.GroupConfig),
	}
}

// LoadAll bulk-loads every stored group into memory
func (uc *GroupConfigUsecase) LoadAll(ctx context.Context) error {
	groups, err := uc.groupRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}
	uc.mu.Lock()
	for _, g := range groups {
		uc.cache[g.ID] = g
	}
	uc.mu.Unlock()
	uc.log.Info().Int("count", len(groups)).Msg("Groups loaded")
	return nil
}

// GetOrCreate returns the group, creating and persisting a default one when unknown.
// Store failures degrade to a fresh default record so routing never blocks.
func (uc *GroupConfigUsecase) GetOrCreate(ctx context.Context, id, displayName string) *domain.GroupConfig {
	if g := uc.cached(id); g != nil {
		return g
	}

	g, err := uc.groupRepo.Get(ctx, id)
	if err != nil {
		uc.log.Error().Err(err).Str("group_id", id).Msg("Failed to read group, using defaults")
		return domain.NewGroupConfig(id, displayName)
	}

	if g == nil {
		g = domain.NewGroupConfig(id, displayName)
		if err := uc.groupRepo.Save(ctx, g); err != nil {
			uc.log.Error().Err(err).Str("group_id", id).Msg("Failed to persist new group")
			return g
		}
		uc.log.Info().Str("group_id", id).Str("name", g.Name).Msg("Group created")
	}

	uc.mu.Lock()
	// another event may have loaded it meanwhile; keep the one already cached
	if existing, ok := uc.cache[id]; ok {
		g = existing
	} else {
		uc.cache[id] = g
	}
	uc.mu.Unlock()

	return g.Clone()
}

// Get returns a known group or nil
func (uc *GroupConfigUsecase) Get(ctx context.Context, id string) (*domain.GroupConfig, error) {
	if g := uc.cached(id); g != nil {
		return g, nil
	}
	g, err := uc.groupRepo.Get(ctx, id)
	if err != nil || g == nil {
		return nil, err
	}
	uc.mu.Lock()
	uc.cache[id] = g
	uc.mu.Unlock()
	return g.Clone(), nil
}

// FindByName finds a loaded group by its (case-insensitive) name
func (uc *GroupConfigUsecase) FindByName(name string) *domain.GroupConfig {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	for _, g := range uc.cache {
		if strings.EqualFold(g.Name, name) {
			return g.Clone()
		}
	}
	return nil
}

// List returns snapshots of every loaded group
func (uc *GroupConfigUsecase) List() []*domain.GroupConfig {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	groups := make([]*domain.GroupConfig, 0, len(uc.cache))
	for _, g := range uc.cache {
		groups = append(groups, g.Clone())
	}
	return groups
}

// Save persists the whole record and makes it the cached version
func (uc *GroupConfigUsecase) Save(ctx context.Context, g *domain.GroupConfig) error {
	if err := uc.groupRepo.Save(ctx, g); err != nil {
		return fmt.Errorf("failed to save group %s: %w", g.ID, err)
	}
	uc.mu.Lock()
	uc.cache[g.ID] = g.Clone()
	uc.mu.Unlock()
	return nil
}

// Update merges a partial update into the group and persists it. A failed
// store read aborts the update so a stored record is never replaced by defaults.
func (uc *GroupConfigUsecase) Update(ctx context.Context, id string, patch domain.GroupPatch) (*domain.GroupConfig, error) {
	g, err := uc.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Update(patch)
	if err := uc.Save(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// MarkRemoved flags the group as left/removed without purging it
func (uc *GroupConfigUsecase) MarkRemoved(ctx context.Context, id, by string) error {
	g, err := uc.loadForWrite(ctx, id)
	if err != nil {
		return err
	}
	g.SetRemoved(by)
	return uc.Save(ctx, g)
}

// loadForWrite returns a snapshot to modify, or a new default record when the
// group is not stored. Unlike GetOrCreate it never degrades on store errors.
func (uc *GroupConfigUsecase) loadForWrite(ctx context.Context, id string) (*domain.GroupConfig, error) {
	if g := uc.cached(id); g != nil {
		return g, nil
	}
	g, err := uc.groupRepo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read group %s: %w", id, err)
	}
	if g == nil {
		g = domain.NewGroupConfig(id, "")
	}
	return g, nil
}

func (uc *GroupConfigUsecase) cached(id string) *domain.GroupConfig {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if g, ok := uc.cache[id]; ok {
		return g.Clone()
	}
	return nil
}
