package mcp

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenabot/ravena/internal/api"
	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/usecase"
)

type memGroupRepo struct {
	groups map[string]*domain.GroupConfig
	mu     sync.Mutex
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

type staticFleet []domain.SessionStatus

func (f staticFleet) Status() []domain.SessionStatus { return f }

func newAPI(t *testing.T) *Client {
	t.Helper()
	groups := usecase.NewGroupConfigUsecase(&memGroupRepo{groups: make(map[string]*domain.GroupConfig)}, zerolog.Nop())
	groups.GetOrCreate(context.Background(), "oc_estudos", "Estudos")

	history := usecase.NewHistoryUsecase(10)
	history.Store(&domain.Event{ID: "om_1", AuthorID: "ou_ana", AuthorName: "Ana", ConversationID: "oc_estudos", Text: "oi", Timestamp: time.Now()})

	fleet := staticFleet{{ID: "ravena1", PhoneNumber: "ou_bot1", Connected: true}}
	srv := httptest.NewServer(api.NewServer(fleet, groups, history, 0, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestClient_Fleet(t *testing.T) {
	c := newAPI(t)
	sessions, err := c.Fleet(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "ou_bot1", sessions[0].PhoneNumber)
}

func TestClient_Groups(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()

	groups, err := c.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Estudos", groups[0].Name)

	g, err := c.Group(ctx, "oc_estudos")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPrefix, g.Prefix)

	_, err = c.Group(ctx, "oc_nada")
	assert.ErrorContains(t, err, "HTTP 404")
}

func TestClient_SetPaused(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()

	summary, err := c.SetPaused(ctx, "oc_estudos", true)
	require.NoError(t, err)
	assert.True(t, summary.Paused)

	g, err := c.Group(ctx, "oc_estudos")
	require.NoError(t, err)
	assert.True(t, g.Paused)
}

func TestClient_History(t *testing.T) {
	c := newAPI(t)
	messages, err := c.History(context.Background(), "oc_estudos", 5)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "oi", messages[0].Text)
	assert.Equal(t, "Ana", messages[0].AuthorName)
}
