package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
)

// DefaultInviteTimeout is how long the bot waits for the invite reason
const DefaultInviteTimeout = 5 * time.Minute

var invitePattern = regexp.MustCompile(`(?i)chat.whatsapp.com/([a-zA-Z0-9]{20,24})`)

// InviteTexts are the user-facing invite messages
type InviteTexts struct {
	AskReason     string
	NoReason      string
	Received      string
	Forwarded     string // appended after Received
	NotConfigured string
	ForwardFailed string
}

// InviteConfig configures the invite flow
type InviteConfig struct {
	InvitesChatID string // where requests are forwarded for approval
	Timeout       time.Duration
	Texts         InviteTexts
}

type pendingInvite struct {
	session    repo.Session
	code       string
	link       string
	authorName string
	timer      *time.Timer
}

// InviteUsecase handles group invite links sent to the bot in private chats
type InviteUsecase struct {
	joinRepo repo.PendingJoinRepo
	config   InviteConfig
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingInvite
}

// NewInviteUsecase creates a new invite usecase
func NewInviteUsecase(joinRepo repo.PendingJoinRepo, config InviteConfig, log zerolog.Logger) *InviteUsecase {
	if config.Timeout <= 0 {
		config.Timeout = DefaultInviteTimeout
	}
	return &InviteUsecase{
		joinRepo: joinRepo,
		config:   config,
		log:      log.With().Str("component", "invites").Logger(),
		pending:  make(map[string]*pendingInvite),
	}
}

func pendingKey(s repo.Session, authorID string) string {
	return s.Info().ID + "|" + authorID
}

// ProcessMessage detects an invite link in a private message and asks for the reason.
// Returns true when the message was consumed.
func (uc *InviteUsecase) ProcessMessage(ctx context.Context, s repo.Session, e *domain.Event, origin domain.Origin) bool {
	if e.IsGroup() || e.Text == "" {
		return false
	}
	m := invitePattern.FindStringSubmatch(e.Text)
	if m == nil {
		return false
	}
	link, code := m[0], m[1]
	uc.log.Info().Str("author", e.AuthorID).Str("link", link).Msg("Invite received")

	authorName := "Desconhecido"
	if origin != nil {
		if contact, err := origin.Contact(ctx); err == nil && contact != nil {
			authorName = contact.DisplayName()
		}
	}

	key := pendingKey(s, e.AuthorID)
	uc.mu.Lock()
	if prev, ok := uc.pending[key]; ok {
		prev.timer.Stop()
		delete(uc.pending, key)
	}
	uc.mu.Unlock()

	if _, err := s.SendMessage(ctx, e.AuthorID, domain.TextContent(uc.config.Texts.AskReason), domain.SendOptions{}); err != nil {
		uc.log.Error().Err(err).Str("author", e.AuthorID).Msg("Failed to ask invite reason")
		return false
	}

	p := &pendingInvite{session: s, code: code, link: link, authorName: authorName}
	authorID := e.AuthorID
	uc.mu.Lock()
	uc.pending[key] = p
	p.timer = time.AfterFunc(uc.config.Timeout, func() {
		if uc.take(key, p) {
			uc.handleRequest(context.Background(), p, authorID, uc.config.Texts.NoReason)
		}
	})
	uc.mu.Unlock()
	return true
}

// ProcessFollowUp treats the next private message after an invite as its reason.
// Returns true when the message was consumed.
func (uc *InviteUsecase) ProcessFollowUp(ctx context.Context, s repo.Session, e *domain.Event) bool {
	if e.IsGroup() || e.Text == "" {
		return false
	}
	key := pendingKey(s, e.AuthorID)
	uc.mu.Lock()
	p, ok := uc.pending[key]
	uc.mu.Unlock()
	if !ok || !uc.take(key, p) {
		return false
	}
	p.timer.Stop()
	uc.handleRequest(ctx, p, e.AuthorID, e.Text)
	return true
}

// HasPending reports whether the author has an invite waiting for a reason
func (uc *InviteUsecase) HasPending(s repo.Session, authorID string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	_, ok := uc.pending[pendingKey(s, authorID)]
	return ok
}

// take removes p from the pending set; false if someone else already did
func (uc *InviteUsecase) take(key string, p *pendingInvite) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if cur, ok := uc.pending[key]; !ok || cur != p {
		return false
	}
	delete(uc.pending, key)
	return true
}

func (uc *InviteUsecase) handleRequest(ctx context.Context, p *pendingInvite, authorID, reason string) {
	log := uc.log.With().Str("author", authorID).Str("code", p.code).Logger()
	log.Info().Msg("Processing invite request")

	join := &domain.PendingJoin{
		Code:       p.code,
		AuthorID:   authorID,
		AuthorName: p.authorName,
		CreatedAt:  time.Now(),
	}
	if err := uc.joinRepo.Save(ctx, join); err != nil {
		log.Error().Err(err).Msg("Failed to save pending join")
	}

	send := func(to, text string) error {
		_, err := p.session.SendMessage(ctx, to, domain.TextContent(text), domain.SendOptions{})
		return err
	}

	received := uc.config.Texts.Received
	if uc.config.Texts.Forwarded != "" {
		received += "\n" + uc.config.Texts.Forwarded
	}
	if err := send(authorID, received); err != nil {
		log.Error().Err(err).Msg("Failed to confirm invite")
	}

	if uc.config.InvitesChatID == "" {
		log.Warn().Msg("No invites chat configured, invite not forwarded")
		if err := send(authorID, uc.config.Texts.NotConfigured); err != nil {
			log.Error().Err(err).Msg("Failed to notify author")
		}
		return
	}

	info := fmt.Sprintf("📩 *Nova Solicitação de Convite de Grupo*\n\n"+
		"🔗 *Link*: chat.whatsapp.com/%s\n"+
		"👤 *De:* %s (%s)\n\n"+
		"💬 *Motivo:*\n%s", p.code, p.authorName, authorID, reason)
	command := fmt.Sprintf("!sa-joinGrupo %s %s %s", p.code, authorID, p.authorName)

	err := send(uc.config.InvitesChatID, info)
	if err == nil {
		err = send(uc.config.InvitesChatID, command)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to forward invite")
		if err := send(authorID, uc.config.Texts.ForwardFailed); err != nil {
			log.Error().Err(err).Msg("Failed to notify author")
		}
	}
}

// ClaimJoin finds the pending join matching the invite code or the user who
// added the bot, and removes it from the store. Returns nil when none matches.
func (uc *InviteUsecase) ClaimJoin(ctx context.Context, code, actorID string) *domain.PendingJoin {
	joins, err := uc.joinRepo.List(ctx)
	if err != nil {
		uc.log.Error().Err(err).Msg("Failed to list pending joins")
		return nil
	}
	for _, j := range joins {
		if (code != "" && j.Code == code) || (actorID != "" && j.AuthorID == actorID) {
			if err := uc.joinRepo.Remove(ctx, j.Code); err != nil {
				uc.log.Warn().Err(err).Str("code", j.Code).Msg("Failed to remove claimed join")
			}
			return j
		}
	}
	return nil
}

// Close stops every pending timer
func (uc *InviteUsecase) Close() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	for key, p := range uc.pending {
		p.timer.Stop()
		delete(uc.pending, key)
	}
}
