package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ravenabot/ravena/internal/biz"
	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/usecase"
)

// Mock implementations

type memGroupRepo struct {
	groups map[string]*domain.GroupConfig
	mu     sync.Mutex
}

func newMemGroupRepo() *memGroupRepo {
	return &memGroupRepo{groups: make(map[string]*domain.GroupConfig)}
}

func (m *memGroupRepo) List(ctx context.Context) ([]*domain.GroupConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.GroupConfig
	for _, g := range m.groups {
		out = append(out, g.Clone())
	}
	return out, nil
}

func (m *memGroupRepo) Get(ctx context.Context, id string) (*domain.GroupConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[id]; ok {
		return g.Clone(), nil
	}
	return nil, nil
}

func (m *memGroupRepo) Save(ctx context.Context, g *domain.GroupConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g.Clone()
	return nil
}

type memRankingRepo struct {
	counts map[string]map[string]*domain.RankEntry
	mu     sync.Mutex
}

func newMemRankingRepo() *memRankingRepo {
	return &memRankingRepo{counts: make(map[string]map[string]*domain.RankEntry)}
}

func (m *memRankingRepo) Increment(ctx context.Context, chatID, userID, userName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.counts[chatID]
	if !ok {
		chat = make(map[string]*domain.RankEntry)
		m.counts[chatID] = chat
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

func (m *memRankingRepo) List(ctx context.Context, chatID string) ([]domain.RankEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RankEntry
	for _, e := range m.counts[chatID] {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Messages != out[j].Messages {
			return out[i].Messages > out[j].Messages
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memRankingRepo) total(chatID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.counts[chatID] {
		n += e.Messages
	}
	return n
}

type memJoinRepo struct {
	joins []*domain.PendingJoin
	mu    sync.Mutex
}

func (m *memJoinRepo) Save(ctx context.Context, j *domain.PendingJoin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, j)
	return nil
}

func (m *memJoinRepo) List(ctx context.Context) ([]*domain.PendingJoin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.PendingJoin(nil), m.joins...), nil
}

func (m *memJoinRepo) Remove(ctx context.Context, code string) error {
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
	quoted    *domain.QuotedMessage
	media     *domain.Media
	reactions []string
	deleted   int
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
	return m.quoted, nil
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
	if m.media == nil {
		return nil, errors.New("no media")
	}
	return m.media, nil
}

func (m *mockOrigin) reacted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reactions...)
}

func (m *mockOrigin) deleteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted
}

type sentMessage struct {
	to      string
	content domain.Content
	opts    domain.SendOptions
}

type mockSession struct {
	info      domain.SessionInfo
	connected bool
	sent      []sentMessage
	pins      int
	restarts  []string
	sendErr   error
	shutdown  func(ctx context.Context) error
	mu        sync.Mutex
}

func newMockSession(id, phone string) *mockSession {
	return &mockSession{info: domain.SessionInfo{ID: id, PhoneNumber: phone, Prefix: "!"}, connected: true}
}

func (m *mockSession) Info() domain.SessionInfo { return m.info }

func (m *mockSession) IsConnected() bool { return m.connected }

func (m *mockSession) LastMessageReceivedAt() time.Time { return time.Time{} }

func (m *mockSession) SendMessage(ctx context.Context, to string, c domain.Content, opts domain.SendOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, sentMessage{to: to, content: c, opts: opts})
	return "sent-id", nil
}

func (m *mockSession) Pin(ctx context.Context, chatID, msgID string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins++
	return nil
}

func (m *mockSession) Restart(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts = append(m.restarts, reason)
	return nil
}

func (m *mockSession) Shutdown(ctx context.Context) error {
	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

func (m *mockSession) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *mockSession) texts() []string {
	var out []string
	for _, msg := range m.messages() {
		out = append(out, msg.content.Text)
	}
	return out
}

func (m *mockSession) restartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.restarts)
}

// testEnv wires a router over in-memory repositories
type testEnv struct {
	router     *Router
	dispatcher *Dispatcher
	registry   *Registry
	groups     *usecase.GroupConfigUsecase
	groupRepo  *memGroupRepo
	ranking    *memRankingRepo
	joins      *memJoinRepo
	tasks      *usecase.Tasks
	session    *mockSession
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()
	tasks := usecase.NewTasks(log)

	groupRepo := newMemGroupRepo()
	rankingRepo := newMemRankingRepo()
	joins := &memJoinRepo{}

	groups := usecase.NewGroupConfigUsecase(groupRepo, log)
	ranking := usecase.NewRankingUsecase(rankingRepo)
	history := usecase.NewHistoryUsecase(usecase.DefaultHistorySize)
	invites := usecase.NewInviteUsecase(joins, usecase.InviteConfig{
		Texts: usecase.InviteTexts{AskReason: "motivo?", NotConfigured: "sem grupo de convites"},
	}, log)
	t.Cleanup(invites.Close)
	admins := usecase.NewAdminUsecase([]string{"5511999999999"})

	uc := &biz.Usecases{
		Groups:  groups,
		Filter:  usecase.NewFilterUsecase(nil, usecase.FilterConfig{ScratchDir: t.TempDir()}, tasks, log),
		History: history,
		Ranking: ranking,
		Invites: invites,
		Mention: usecase.NewMentionUsecase(nil, history, usecase.MentionTexts{Greeting: "oi!"}, tasks, log),
		Admins:  admins,
		Tasks:   tasks,
	}

	texts := DefaultTexts()
	registry, err := NewRegistry()
	require.NoError(t, err)
	require.NoError(t, RegisterBuiltins(registry, ranking, nil, texts))

	management := NewManagement(groups, admins, texts, log)
	dispatcher := NewDispatcher(registry, management, groups, admins, DispatcherConfig{Texts: texts}, log)

	return &testEnv{
		router:     NewRouter(uc, dispatcher, nil, nil, texts, log),
		dispatcher: dispatcher,
		registry:   registry,
		groups:     groups,
		groupRepo:  groupRepo,
		ranking:    rankingRepo,
		joins:      joins,
		tasks:      tasks,
		session:    newMockSession("bot1", "5511900000001"),
	}
}

// capture registers a command recording the args it was invoked with
func (env *testEnv) capture(t *testing.T, name string) *[][]string {
	t.Helper()
	var mu sync.Mutex
	calls := [][]string{}
	require.NoError(t, env.registry.Register(&domain.Command{
		Name:      name,
		Reactions: &domain.Reactions{},
		Handler: func(ctx context.Context, cc *domain.CommandContext) ([]domain.OutboundMessage, error) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, cc.Args)
			return nil, nil
		},
	}))
	return &calls
}

func groupText(id, author, text string) *domain.Event {
	return &domain.Event{
		ID:             id,
		AuthorID:       author,
		AuthorName:     author,
		ConversationID: "120363000000000001@g.us",
		Type:           domain.MessageTypeText,
		Text:           text,
		Timestamp:      time.Now(),
	}
}

const testGroupID = "120363000000000001@g.us"
