package usecase

import (
	"context"
	"strings"

	"github.com/ravenabot/ravena/internal/biz/domain"
)

// AdminUsecase decides who may run admin-gated commands
type AdminUsecase struct {
	superAdmins []string
}

// NewAdminUsecase creates an admin checker with the given super admins
func NewAdminUsecase(superAdmins []string) *AdminUsecase {
	return &AdminUsecase{superAdmins: superAdmins}
}

// IsSuperAdmin reports whether the author is a fleet-wide admin
func (uc *AdminUsecase) IsSuperAdmin(authorID string) bool {
	for _, a := range uc.superAdmins {
		if a != "" && (a == authorID || strings.HasPrefix(authorID, a+"@")) {
			return true
		}
	}
	return false
}

// IsAdmin checks super admins, then the group's additional admins,
// then the chat's own admin flag.
func (uc *AdminUsecase) IsAdmin(ctx context.Context, authorID string, g *domain.GroupConfig, origin domain.Origin) bool {
	if uc.IsSuperAdmin(authorID) {
		return true
	}
	if g != nil && g.IsAdditionalAdmin(authorID) {
		return true
	}
	if g == nil {
		// private chats: the author manages their own conversation
		return true
	}
	if origin == nil {
		return false
	}
	chat, err := origin.Chat(ctx)
	if err != nil || chat == nil {
		return false
	}
	return chat.IsAdmin(authorID)
}
