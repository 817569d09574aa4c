package biz

import (
	"github.com/ravenabot/ravena/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Groups  *usecase.GroupConfigUsecase
	Filter  *usecase.FilterUsecase
	History *usecase.HistoryUsecase
	Ranking *usecase.RankingUsecase
	Invites *usecase.InviteUsecase
	Mention *usecase.MentionUsecase
	Admins  *usecase.AdminUsecase
	Tasks   *usecase.Tasks
}
