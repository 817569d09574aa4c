package usecase

import (
	"sync"

	"github.com/ravenabot/ravena/internal/biz/domain"
)

// DefaultHistorySize is how many recent messages are kept per conversation
const DefaultHistorySize = 30

// HistoryUsecase keeps a bounded, most-recent-N message log per conversation
type HistoryUsecase struct {
	size int

	mu    sync.RWMutex
	chats map[string][]domain.HistoryEntry
}

// NewHistoryUsecase creates a history keeping size entries per chat
func NewHistoryUsecase(size int) *HistoryUsecase {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &HistoryUsecase{size: size, chats: make(map[string][]domain.HistoryEntry)}
}

// Store appends an event's text to its conversation log
func (uc *HistoryUsecase) Store(e *domain.Event) {
	entry := domain.HistoryEntry{
		AuthorID:   e.AuthorID,
		AuthorName: e.AuthorName,
		Text:       e.Text,
		Timestamp:  e.Timestamp,
	}
	uc.mu.Lock()
	defer uc.mu.Unlock()
	entries := append(uc.chats[e.ChatID()], entry)
	if len(entries) > uc.size {
		entries = append([]domain.HistoryEntry(nil), entries[len(entries)-uc.size:]...)
	}
	uc.chats[e.ChatID()] = entries
}

// Recent returns up to limit entries, oldest first; limit <= 0 returns all
func (uc *HistoryUsecase) Recent(chatID string, limit int) []domain.HistoryEntry {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	entries := uc.chats[chatID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]domain.HistoryEntry(nil), entries...)
}
