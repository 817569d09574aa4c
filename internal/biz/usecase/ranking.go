package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
)

const rankingTopN = 10

var rankingMedals = []string{"🥇", "🥈", "🥉"}

// RankingUsecase counts messages per sender and renders the chat ranking
type RankingUsecase struct {
	rankingRepo repo.RankingRepo
}

// NewRankingUsecase creates a new ranking usecase
func NewRankingUsecase(rankingRepo repo.RankingRepo) *RankingUsecase {
	return &RankingUsecase{rankingRepo: rankingRepo}
}

// Track counts one message of the event's author in the event's chat
func (uc *RankingUsecase) Track(ctx context.Context, e *domain.Event, origin domain.Origin) error {
	if e.AuthorID == "" {
		return nil
	}
	name := e.AuthorName
	if name == "" {
		name = "Usuário"
		if origin != nil {
			if contact, err := origin.Contact(ctx); err == nil && contact != nil {
				name = contact.DisplayName()
			}
		}
	}
	if err := uc.rankingRepo.Increment(ctx, e.ChatID(), e.AuthorID, name); err != nil {
		return fmt.Errorf("failed to update ranking: %w", err)
	}
	return nil
}

// Render builds the talkers ranking message of a group
func (uc *RankingUsecase) Render(ctx context.Context, chatID string) (string, error) {
	ranking, err := uc.rankingRepo.List(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("failed to list ranking: %w", err)
	}
	if len(ranking) == 0 {
		return "Ainda não há estatísticas de mensagens para este grupo.", nil
	}

	var b strings.Builder
	b.WriteString("*🏆 Ranking de faladores do grupo 🏆*\n\n")

	top := ranking
	if len(top) > rankingTopN {
		top = top[:rankingTopN]
	}
	for i, item := range top {
		position := fmt.Sprintf("%dº", i+1)
		if i < len(rankingMedals) {
			position = rankingMedals[i]
		}
		fmt.Fprintf(&b, "%s *%s*: %d mensagens\n", position, item.Name, item.Messages)
	}

	total := 0
	for _, item := range ranking {
		total += item.Messages
	}
	b.WriteString("\n📊 *Estatísticas:*\n")
	fmt.Fprintf(&b, "Total de %d mensagens enviadas por %d participantes", total, len(ranking))
	return b.String(), nil
}
