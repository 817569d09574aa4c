package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
	"github.com/ravenabot/ravena/internal/biz/usecase"
)

// RegisterBuiltins adds the fixed commands to the registry. llm may be nil.
func RegisterBuiltins(r *Registry, ranking *usecase.RankingUsecase, llm repo.LLMRepo, texts Texts) error {
	b := &builtins{registry: r, ranking: ranking, llm: llm, texts: texts}
	for _, c := range []*domain.Command{
		{
			Name:        "faladores",
			Category:    "grupo",
			Description: "ranking de quem mais fala no grupo",
			Cooldown:    30 * time.Second,
			Handler:     b.faladores,
		},
		{
			Name:        "cmd",
			Aliases:     []string{"comandos", "menu"},
			Category:    "geral",
			Description: "lista os comandos",
			Handler:     b.list,
		},
		{
			Name:        "ping",
			Category:    "geral",
			Description: "verifica se o bot está respondendo",
			Reactions:   &domain.Reactions{After: "🏓"},
			Handler:     b.ping,
		},
		{
			Name:        "ai",
			Aliases:     []string{"ia", "gpt"},
			Category:    "ia",
			Description: "pergunta algo para a IA",
			Cooldown:    10 * time.Second,
			Reactions:   &domain.Reactions{Trigger: "🤖", Before: "🤔", After: "✅", Error: "❌"},
			Handler:     b.ai,
		},
		{
			Name:        "sticker",
			Aliases:     []string{"s"},
			Category:    "mídia",
			Description: "transforma uma imagem em figurinha",
			NeedsMedia:  true,
			Reactions:   &domain.Reactions{Trigger: "🖼", Before: "⏳", After: "🖼", Error: "❌"},
			Handler:     b.sticker,
		},
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

type builtins struct {
	registry *Registry
	ranking  *usecase.RankingUsecase
	llm      repo.LLMRepo
	texts    Texts
}

func (b *builtins) faladores(ctx context.Context, cc *domain.CommandContext) ([]domain.OutboundMessage, error) {
	if cc.Group == nil {
		return []domain.OutboundMessage{domain.Reply(cc.Event, b.texts.GroupOnly)}, nil
	}
	text, err := b.ranking.Render(ctx, cc.Event.ChatID())
	if err != nil {
		return nil, err
	}
	return []domain.OutboundMessage{domain.Reply(cc.Event, text)}, nil
}

func (b *builtins) list(ctx context.Context, cc *domain.CommandContext) ([]domain.OutboundMessage, error) {
	prefix := cc.Session.Prefix
	if cc.Group != nil {
		prefix = cc.Group.Prefix
	}

	var sb strings.Builder
	sb.WriteString("*Comandos disponíveis*\n")
	category := ""
	for _, c := range b.registry.List() {
		if c.Category != category {
			category = c.Category
			fmt.Fprintf(&sb, "\n*%s*\n", strings.ToUpper(category))
		}
		fmt.Fprintf(&sb, "• %s%s: %s\n", prefix, c.Name, c.Description)
	}

	if cc.Group != nil {
		var custom []string
		for _, c := range cc.Group.CustomCommands {
			if c.Active {
				trigger := prefix + c.StartsWith
				if c.IgnorePrefix {
					trigger = c.StartsWith
				}
				custom = append(custom, trigger)
			}
		}
		if len(custom) > 0 {
			sb.WriteString("\n*COMANDOS DO GRUPO*\n")
			for _, t := range custom {
				fmt.Fprintf(&sb, "• %s\n", t)
			}
		}
	}
	return []domain.OutboundMessage{domain.Reply(cc.Event, strings.TrimRight(sb.String(), "\n"))}, nil
}

func (b *builtins) ping(ctx context.Context, cc *domain.CommandContext) ([]domain.OutboundMessage, error) {
	text := "Pong! 🏓"
	if !cc.Event.Timestamp.IsZero() {
		text = fmt.Sprintf("Pong! 🏓 (%dms)", time.Since(cc.Event.Timestamp).Milliseconds())
	}
	return []domain.OutboundMessage{domain.Reply(cc.Event, text)}, nil
}

func (b *builtins) ai(ctx context.Context, cc *domain.CommandContext) ([]domain.OutboundMessage, error) {
	if b.llm == nil {
		return []domain.OutboundMessage{domain.Reply(cc.Event, "IA indisponível no momento.")}, nil
	}
	prompt := strings.Join(cc.Args, " ")
	if prompt == "" {
		quoted, err := cc.Origin.QuotedMessage(ctx)
		if err == nil && quoted != nil {
			prompt = quoted.Text
		}
	}
	if prompt == "" {
		return []domain.OutboundMessage{domain.Reply(cc.Event, "Uso: ai <pergunta>")}, nil
	}

	answer, err := b.llm.Complete(ctx, b.texts.AISystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	msg := domain.Reply(cc.Event, answer)
	msg.Options.QuotedMessageID = cc.Event.ID
	return []domain.OutboundMessage{msg}, nil
}

func (b *builtins) sticker(ctx context.Context, cc *domain.CommandContext) ([]domain.OutboundMessage, error) {
	source := cc.Origin
	if !cc.Event.HasMedia {
		if cc.Quoted == nil || cc.Quoted.Origin == nil {
			return nil, fmt.Errorf("quoted media unavailable")
		}
		source = cc.Quoted.Origin
	}
	media, err := source.DownloadMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	if media == nil || len(media.Data) == 0 {
		return nil, fmt.Errorf("empty media")
	}
	return []domain.OutboundMessage{{
		ChatID:  cc.Event.ChatID(),
		Content: domain.Content{Media: media},
		Options: domain.SendOptions{AsSticker: true, QuotedMessageID: cc.Event.ID},
	}}, nil
}
