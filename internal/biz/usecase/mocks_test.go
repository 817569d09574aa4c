package usecase

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ravenabot/ravena/internal/biz/domain"
)

// Mock implementations

type mockGroupRepo struct {
	groups  map[string]*domain.GroupConfig
	getErr  error
	saves   int
	getHits int
	mu      sync.Mutex
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{groups: make(map[string]*domain.GroupConfig)}
}

func (m *mockGroupRepo) List(ctx context.Context) ([]*domain.GroupConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.GroupConfig
	for _, g := range m.groups {
		out = append(out, g.Clone())
	}
	return out, nil
}

func (m *mockGroupRepo) Get(ctx context.Context, id string) (*domain.GroupConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getHits++
	if m.getErr != nil {
		return nil, m.getErr
	}
	if g, ok := m.groups[id]; ok {
		return g.Clone(), nil
	}
	return nil, nil
}

func (m *mockGroupRepo) Save(ctx context.Context, g *domain.GroupConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.groups[g.ID] = g.Clone()
	return nil
}

type mockRankingRepo struct {
	entries map[string]map[string]*domain.RankEntry
	err     error
	mu      sync.Mutex
}

func newMockRankingRepo() *mockRankingRepo {
	return &mockRankingRepo{entries: make(map[string]map[string]*domain.RankEntry)}
}

func (m *mockRankingRepo) Increment(ctx context.Context, chatID, userID, userName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	chat, ok := m.entries[chatID]
	if !ok {
		chat = make(map[string]*domain.RankEntry)
		m.entries[chatID] = chat
	}
	e, ok := chat[userID]
	if !ok {
		e = &domain.RankEntry{ChatID: chatID, UserID: userID}
		chat[userID] = e
	}
	e.Name = userName
	e.Messages++
	return nil
}

func (m *mockRankingRepo) List(ctx context.Context, chatID string) ([]domain.RankEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RankEntry
	for _, e := range m.entries[chatID] {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Messages > out[j].Messages })
	return out, nil
}

type mockJoinRepo struct {
	joins []*domain.PendingJoin
	mu    sync.Mutex
}

func (m *mockJoinRepo) Save(ctx context.Context, j *domain.PendingJoin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, j)
	return nil
}

func (m *mockJoinRepo) List(ctx context.Context) ([]*domain.PendingJoin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.PendingJoin(nil), m.joins...), nil
}

func (m *mockJoinRepo) Remove(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, j := range m.joins {
		if j.Code == code {
			m.joins = append(m.joins[:i], m.joins[i+1:]...)
			break
		}
	}
	return nil
}

type mockOrigin struct {
	chat      *domain.Chat
	contact   *domain.Contact
	media     *domain.Media
	mediaErr  error
	deleted   int
	reactions []string
	mu        sync.Mutex
}

func (m *mockOrigin) Chat(ctx context.Context) (*domain.Chat, error) {
	if m.chat == nil {
		return nil, errors.New("no chat")
	}
	return m.chat, nil
}

func (m *mockOrigin) Contact(ctx context.Context) (*domain.Contact, error) {
	if m.contact == nil {
		return nil, errors.New("no contact")
	}
	return m.contact, nil
}

func (m *mockOrigin) QuotedMessage(ctx context.Context) (*domain.QuotedMessage, error) {
	return nil, nil
}

func (m *mockOrigin) React(ctx context.Context, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, emoji)
	return nil
}

func (m *mockOrigin) Delete(ctx context.Context, forEveryone bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted++
	return nil
}

func (m *mockOrigin) DownloadMedia(ctx context.Context) (*domain.Media, error) {
	if m.mediaErr != nil {
		return nil, m.mediaErr
	}
	return m.media, nil
}

func (m *mockOrigin) deleteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted
}

type sentMessage struct {
	to   string
	text string
	opts domain.SendOptions
}

type mockSession struct {
	info domain.SessionInfo
	sent []sentMessage
	mu   sync.Mutex
}

func (m *mockSession) Info() domain.SessionInfo { return m.info }
func (m *mockSession) IsConnected() bool { return true }
func (m *mockSession) LastMessageReceivedAt() time.Time { return time.Time{} }

func (m *mockSession) SendMessage(ctx context.Context, to string, c domain.Content, opts domain.SendOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{to: to, text: c.Text, opts: opts})
	return "sent-id", nil
}

func (m *mockSession) Pin(ctx context.Context, chatID, msgID string, d time.Duration) error { return nil }
func (m *mockSession) Restart(ctx context.Context, reason string) error { return nil }
func (m *mockSession) Shutdown(ctx context.Context) error { return nil }

func (m *mockSession) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type mockClassifier struct {
	scores   map[string]float64
	err      error
	seenPath string
	existed  bool
}

func (m *mockClassifier) Classify(ctx context.Context, path string) (map[string]float64, error) {
	m.seenPath = path
	_, statErr := os.Stat(path)
	m.existed = statErr == nil
	return m.scores, m.err
}

type mockLLM struct {
	answer string
	err    error
	prompt string
}

func (m *mockLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	m.prompt = prompt
	return m.answer, m.err
}
