package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ravenabot/ravena/internal/biz/domain"
)

func TestDispatcher_HandlerErrorRepliesGeneric(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register(&domain.Command{
		Name: "quebra",
		Handler: func(ctx context.Context, cc *domain.CommandContext) ([]domain.OutboundMessage, error) {
			return nil, errors.New("boom")
		},
	}))
	origin := &mockOrigin{}
	e := groupText("m1", "a@c.us", "!quebra")

	env.dispatcher.Dispatch(context.Background(), env.session, e, origin, "quebra", nil)

	assert.Equal(t, []string{"Erro ao executar comando: quebra"}, env.session.texts())
	assert.Equal(t, "m1", env.session.messages()[0].opts.QuotedMessageID)
	assert.Equal(t, []string{"⏳", "❌"}, origin.reacted())
}

func TestDispatcher_HandlerPanicIsContained(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.registry.Register(&domain.Command{
		Name: "panico",
		Handler: func(ctx context.Context, cc *domain.CommandContext) ([]domain.OutboundMessage, error) {
			panic("nil map")
		},
	}))

	env.dispatcher.Dispatch(context.Background(), env.session, groupText("m1", "a@c.us", "!panico"), &mockOrigin{}, "panico", nil)

	assert.Equal(t, []string{"Erro ao executar comando: panico"}, env.session.texts())
}

func TestDispatcher_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	g := env.groups.GetOrCreate(ctx, testGroupID, "")
	ran := 0
	require.NoError(t, env.registry.Register(&domain.Command{
		Name:      "banir",
		AdminOnly: true,
		Handler: func(ctx context.Context, cc *domain.CommandContext) ([]domain.OutboundMessage, error) {
			ran++
			return nil, nil
		},
	}))

	// sticker without media
	env.dispatcher.Dispatch(ctx, env.session, groupText("m1", "a@c.us", "!sticker"), &mockOrigin{}, "sticker", g)
	// admin-only by a regular member
	origin := &mockOrigin{chat: &domain.Chat{Participants: []domain.Participant{{ID: "a@c.us"}}}}
	env.dispatcher.Dispatch(ctx, env.session, groupText("m2", "a@c.us", "!banir"), origin, "banir", g)
	// super admin
	env.dispatcher.Dispatch(ctx, env.session, groupText("m3", "5511999999999@c.us", "!banir"), origin, "banir", g)

	texts := env.session.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, DefaultTexts().NeedsMedia, texts[0])
	assert.Equal(t, DefaultTexts().NotAdmin, texts[1])
	assert.Equal(t, 1, ran)
}

func TestDispatcher_QuotedMediaSatisfiesNeedsMedia(t *testing.T) {
	env := newTestEnv(t)
	quotedOrigin := &mockOrigin{media: &domain.Media{MimeType: "image/jpeg", Data: []byte("img")}}
	origin := &mockOrigin{quoted: &domain.QuotedMessage{ID: "q1", HasMedia: true, Type: domain.MessageTypeImage, Origin: quotedOrigin}}

	env.dispatcher.Dispatch(context.Background(), env.session, groupText("m1", "a@c.us", "!s"), origin, "s", nil)

	msgs := env.session.messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].opts.AsSticker)
	assert.Equal(t, []byte("img"), msgs[0].content.Media.Data)
}

func TestDispatcher_Cooldown(t *testing.T) {
	env := newTestEnv(t)
	ran := 0
	require.NoError(t, env.registry.Register(&domain.Command{
		Name:     "lento",
		Cooldown: time.Minute,
		Handler: func(ctx context.Context, cc *domain.CommandContext) ([]domain.OutboundMessage, error) {
			ran++
			return nil, nil
		},
	}))
	ctx := context.Background()
	env.dispatcher.Dispatch(ctx, env.session, groupText("m1", "a@c.us", "!lento"), &mockOrigin{}, "lento", nil)
	env.dispatcher.Dispatch(ctx, env.session, groupText("m2", "a@c.us", "!lento"), &mockOrigin{}, "lento", nil)

	assert.Equal(t, 1, ran)
	require.Len(t, env.session.texts(), 1)
	assert.Contains(t, env.session.texts()[0], "Aguarde")
}

func TestDispatcher_SendsInOrderAndRateLimitsPins(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.pinLimiter = rate.NewLimiter(rate.Limit(0.001), 1)

	pinned := domain.SendOptions{PinDuration: time.Hour}
	require.NoError(t, env.registry.Register(&domain.Command{
		Name: "avisos",
		Handler: func(ctx context.Context, cc *domain.CommandContext) ([]domain.OutboundMessage, error) {
			return []domain.OutboundMessage{
				{ChatID: testGroupID, Content: domain.TextContent("um"), Options: pinned},
				{ChatID: "", Content: domain.TextContent("inválida")},
				{ChatID: testGroupID, Content: domain.TextContent("dois"), Options: pinned},
			}, nil
		},
	}))

	env.dispatcher.Dispatch(context.Background(), env.session, groupText("m1", "a@c.us", "!avisos"), &mockOrigin{}, "avisos", nil)

	assert.Equal(t, []string{"um", "dois"}, env.session.texts())
	assert.Equal(t, 1, env.session.pins)
}

func TestDispatcher_CustomCommands(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.groups.Update(ctx, testGroupID, domain.GroupPatch{CustomCommands: &[]domain.CustomCommand{
		{StartsWith: "regras", Responses: []string{"Sem spam, {pessoa}"}, Active: true},
		{StartsWith: "bom dia", Responses: []string{"☀️"}, IgnorePrefix: true, Active: true},
	}})
	require.NoError(t, err)
	g := env.groups.GetOrCreate(ctx, testGroupID, "")

	env.dispatcher.Dispatch(ctx, env.session, groupText("m1", "Ana", "!Regras"), &mockOrigin{}, "Regras", g)
	env.dispatcher.HandleNonCommand(ctx, env.session, groupText("m2", "Bia", "gente, BOM DIA"), &mockOrigin{}, g)
	env.dispatcher.HandleNonCommand(ctx, env.session, groupText("m3", "Bia", "regras"), &mockOrigin{}, g)

	assert.Equal(t, []string{"Sem spam, Ana", "☀️"}, env.session.texts())

	saved, err := env.groups.Get(ctx, testGroupID)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.CustomCommands[0].Count)
	assert.Equal(t, 1, saved.CustomCommands[1].Count)
	assert.False(t, saved.CustomCommands[0].LastUsed.IsZero())
}

func TestDispatcher_UnknownCommandIsSilent(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.Dispatch(context.Background(), env.session, groupText("m1", "a@c.us", "!nada"), &mockOrigin{}, "nada", nil)
	assert.Empty(t, env.session.messages())

	env.dispatcher.notifyUnknown = true
	env.dispatcher.Dispatch(context.Background(), env.session, groupText("m2", "a@c.us", "!nada"), &mockOrigin{}, "nada", nil)
	assert.Equal(t, []string{"Comando desconhecido: nada"}, env.session.texts())
}

func TestDispatcher_PrivateImageBecomesSticker(t *testing.T) {
	env := newTestEnv(t)
	origin := &mockOrigin{media: &domain.Media{MimeType: "image/png", Data: []byte{9}}}
	e := &domain.Event{ID: "m1", AuthorID: "a@c.us", Type: domain.MessageTypeImage, HasMedia: true}

	env.dispatcher.HandleNonCommand(context.Background(), env.session, e, origin, nil)

	msgs := env.session.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "a@c.us", msgs[0].to)
	assert.True(t, msgs[0].opts.AsSticker)
}
