package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenabot/ravena/internal/biz/domain"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewRepositories(filepath.Join(t.TempDir(), "db", "ravena.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func TestGroupRepo_SaveGetList(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	missing, err := repos.Group.Get(ctx, "nope@g.us")
	require.NoError(t, err)
	assert.Nil(t, missing)

	g := domain.NewGroupConfig("g1@g.us", "amigos")
	g.Filters.NSFW = true
	g.MutedStrings = []string{"bom dia"}
	g.Nicks = []domain.Nick{{Number: "5511@c.us", Alias: "Zé"}}
	require.NoError(t, repos.Group.Save(ctx, g))

	got, err := repos.Group.Get(ctx, "g1@g.us")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "amigos", got.Name)
	assert.True(t, got.Filters.NSFW)
	assert.Equal(t, []string{"bom dia"}, got.MutedStrings)
	assert.Equal(t, "Zé", got.Nicks[0].Alias)

	g.Update(domain.GroupPatch{Paused: boolPtr(true)})
	require.NoError(t, repos.Group.Save(ctx, g))

	all, err := repos.Group.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Paused)
}

func TestGroupRepo_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	_, err := repos.db.Exec(`INSERT INTO group_configs (id, name, data, updated_at) VALUES ('bad@g.us', 'bad', '{', 0)`)
	require.NoError(t, err)

	_, err = repos.Group.Get(ctx, "bad@g.us")
	assert.Error(t, err)
}

func TestRankingRepo_IncrementAndOrder(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	require.NoError(t, repos.Ranking.Increment(ctx, "g1", "a", "Ana"))
	require.NoError(t, repos.Ranking.Increment(ctx, "g1", "b", "Bia"))
	require.NoError(t, repos.Ranking.Increment(ctx, "g1", "b", "Bianca"))
	require.NoError(t, repos.Ranking.Increment(ctx, "g2", "a", "Ana"))

	list, err := repos.Ranking.List(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].UserID)
	assert.Equal(t, "Bianca", list[0].Name)
	assert.Equal(t, 2, list[0].Messages)
	assert.Equal(t, 1, list[1].Messages)
}

func TestPendingJoinRepo(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	now := time.Now()
	require.NoError(t, repos.PendingJoin.Save(ctx, &domain.PendingJoin{Code: "c2", AuthorID: "b", CreatedAt: now}))
	require.NoError(t, repos.PendingJoin.Save(ctx, &domain.PendingJoin{Code: "c1", AuthorID: "a", AuthorName: "Ana", CreatedAt: now.Add(-time.Hour)}))

	joins, err := repos.PendingJoin.List(ctx)
	require.NoError(t, err)
	require.Len(t, joins, 2)
	assert.Equal(t, "c1", joins[0].Code)
	assert.Equal(t, "Ana", joins[0].AuthorName)

	require.NoError(t, repos.PendingJoin.Remove(ctx, "c1"))
	joins, err = repos.PendingJoin.List(ctx)
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.Equal(t, "c2", joins[0].Code)
}

func TestParseScores(t *testing.T) {
	scores, err := parseScores("```json\n{\"porn\": 0.9, \"sexy\": 0.1}\n```")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, scores["porn"], 0.0001)

	_, err = parseScores("not json")
	assert.Error(t, err)
}

func TestOpenAIClient_ClassifyMissingFile(t *testing.T) {
	c := NewOpenAIClient("key", "", "")
	_, err := c.Classify(context.Background(), filepath.Join(os.TempDir(), "does-not-exist.jpg"))
	assert.Error(t, err)
}

func boolPtr(b bool) *bool { return &b }
