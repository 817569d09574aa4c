package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ravenabot/ravena/internal/biz"
	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
	"github.com/ravenabot/ravena/internal/biz/usecase"
)

// minIgnoreMatchLen guards against short ignore entries matching everyone
const minIgnoreMatchLen = 8

// Router decides how each inbound event is processed. It is shared by all
// sessions and never blocks on command handling.
type Router struct {
	uc         *biz.Usecases
	dispatcher *Dispatcher
	monitor    *StabilityMonitor
	load       *LoadReporter
	texts      Texts
	log        zerolog.Logger
}

// NewRouter creates a router. monitor and load may be nil.
func NewRouter(uc *biz.Usecases, dispatcher *Dispatcher, monitor *StabilityMonitor, load *LoadReporter, texts Texts, log zerolog.Logger) *Router {
	return &Router{
		uc:         uc,
		dispatcher: dispatcher,
		monitor:    monitor,
		load:       load,
		texts:      texts,
		log:        log.With().Str("component", "router").Logger(),
	}
}

// Route runs one inbound event through the pipeline. Errors never escape:
// they are logged here so one bad event cannot stop intake.
func (r *Router) Route(ctx context.Context, s repo.Session, e *domain.Event, origin domain.Origin) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Err(fmt.Errorf("panic: %v", rec)).Msg("Event routing panicked")
		}
	}()
	if e == nil || origin == nil || e.AuthorID == "" {
		r.log.Warn().Msg("Dropping malformed event")
		return
	}

	info := s.Info()
	log := r.log.With().Str("session", info.ID).Str("chat_id", e.ChatID()).Str("event_id", e.ID).Logger()

	if r.monitor != nil {
		r.monitor.Observe(e)
	}
	if r.load != nil {
		r.load.Received(info.ID, e.IsGroup())
	}
	if info.IsPeer(e.AuthorID) {
		return
	}

	if !e.IsGroup() {
		if r.uc.Invites.ProcessMessage(ctx, s, e, origin) {
			return
		}
		if r.uc.Invites.ProcessFollowUp(ctx, s, e) {
			return
		}
	}

	var g *domain.GroupConfig
	if e.IsGroup() {
		g = r.uc.Groups.GetOrCreate(ctx, e.ConversationID, "")
	}

	prefix := info.Prefix
	if g != nil {
		prefix = g.Prefix
	}

	if g != nil {
		r.uc.History.Store(e)
		if alias, ok := g.AliasFor(e.AuthorID); ok {
			e.AuthorName = alias
		}

		if g.Paused && !isUnpause(e.Text, prefix) {
			return
		}
		if isMuted(e.Text, g.MutedStrings) {
			log.Debug().Msg("Muted content")
			return
		}
		if err := r.uc.Ranking.Track(ctx, e, origin); err != nil {
			log.Warn().Err(err).Msg("Ranking update failed")
		}
		if isIgnored(e.AuthorID, g) {
			log.Debug().Str("author", e.AuthorID).Msg("Ignored author")
			return
		}
		if reason := r.uc.Filter.Apply(ctx, e, origin, g); reason != usecase.FilterReasonNone {
			return
		}
	}

	taskCtx := context.WithoutCancel(ctx)
	if e.Text == "" {
		r.uc.Tasks.Go("non-command", func() error {
			r.dispatcher.HandleNonCommand(taskCtx, s, e, origin, g)
			return nil
		})
		return
	}

	if r.uc.Mention.Handle(ctx, s, e, origin) {
		return
	}

	if prefix == "" || strings.HasPrefix(e.Text, prefix) {
		commandText := e.Text[len(prefix):]
		r.uc.Tasks.Go("command", func() error {
			r.dispatcher.Dispatch(taskCtx, s, e, origin, commandText, g)
			return nil
		})
		return
	}

	r.uc.Tasks.Go("non-command", func() error {
		r.dispatcher.HandleNonCommand(taskCtx, s, e, origin, g)
		return nil
	})
}

// HandleReaction runs the command bound to a reaction on target
func (r *Router) HandleReaction(ctx context.Context, s repo.Session, target *domain.Event, origin domain.Origin, emoji, reactorID string) {
	if target == nil || origin == nil || s.Info().IsPeer(reactorID) {
		return
	}
	var g *domain.GroupConfig
	if target.IsGroup() {
		g = r.uc.Groups.GetOrCreate(ctx, target.ConversationID, "")
		if g.Paused {
			return
		}
	}
	taskCtx := context.WithoutCancel(ctx)
	r.uc.Tasks.Go("reaction", func() error {
		r.dispatcher.DispatchReaction(taskCtx, s, target, origin, emoji, reactorID, g)
		return nil
	})
}

// HandleGroupJoin greets new members. When the session itself joined, the
// group is unpaused and attributed to whoever requested the invite.
func (r *Router) HandleGroupJoin(ctx context.Context, s repo.Session, ev *domain.MembershipEvent) {
	info := s.Info()
	log := r.log.With().Str("session", info.ID).Str("chat_id", ev.ChatID).Logger()
	g := r.uc.Groups.GetOrCreate(ctx, ev.ChatID, ev.ChatName)

	var names []string
	botJoined := false
	for _, m := range ev.Members {
		if isSelf(info, m.ID) {
			botJoined = true
			continue
		}
		if info.IsPeer(m.ID) {
			continue
		}
		name := m.Name
		if name == "" {
			name = "Usuário"
		}
		names = append(names, name)
	}

	if botJoined {
		paused := false
		patch := domain.GroupPatch{Paused: &paused}
		if join := r.uc.Invites.ClaimJoin(ctx, ev.InviteCode, ev.ActorID); join != nil {
			admins := g.AdditionalAdmins
			if !g.IsAdditionalAdmin(join.AuthorID) {
				admins = append(admins, join.AuthorID)
			}
			patch.AddedBy = &join.AuthorID
			patch.AdditionalAdmins = &admins
			if ev.InviteCode != "" {
				patch.InviteCode = &ev.InviteCode
			}
			log.Info().Str("added_by", join.AuthorID).Msg("Pending join claimed")
		}
		updated, err := r.uc.Groups.Update(ctx, g.ID, patch)
		if err != nil {
			log.Error().Err(err).Msg("Failed to update joined group")
		} else {
			g = updated
		}
		if g.IsRemoved() {
			g.RemovedBy = ""
			if err := r.uc.Groups.Save(ctx, g); err != nil {
				log.Error().Err(err).Msg("Failed to clear removal mark")
			}
		}
		r.send(ctx, s, ev.ChatID, fmt.Sprintf(r.texts.BotJoined, g.Prefix))
		log.Info().Msg("Joined group")
	}

	if g.Paused || len(names) == 0 {
		return
	}
	if text := usecase.RenderGreeting(g, ev.ChatName, names); text != "" {
		r.send(ctx, s, ev.ChatID, text)
	}
}

// HandleGroupLeave says goodbye to members who left. When the session itself
// left or was removed, the group is only marked as removed.
func (r *Router) HandleGroupLeave(ctx context.Context, s repo.Session, ev *domain.MembershipEvent) {
	info := s.Info()
	log := r.log.With().Str("session", info.ID).Str("chat_id", ev.ChatID).Logger()

	for _, m := range ev.Members {
		if isSelf(info, m.ID) {
			by := ev.ActorID
			if by == "" {
				by = info.ID
			}
			if err := r.uc.Groups.MarkRemoved(ctx, ev.ChatID, by); err != nil {
				log.Error().Err(err).Msg("Failed to mark group as removed")
			}
			log.Info().Str("removed_by", by).Msg("Left group")
			return
		}
	}

	g := r.uc.Groups.GetOrCreate(ctx, ev.ChatID, ev.ChatName)
	if g.Paused {
		return
	}
	for _, m := range ev.Members {
		if info.IsPeer(m.ID) {
			continue
		}
		name := m.Name
		if name == "" {
			name = "Usuário"
		}
		if text := usecase.RenderFarewell(g, name); text != "" {
			r.send(ctx, s, ev.ChatID, text)
		}
	}
}

// Wait blocks until every spawned handler has finished
func (r *Router) Wait() {
	r.uc.Tasks.Wait()
}

func (r *Router) send(ctx context.Context, s repo.Session, chatID, text string) {
	if text == "" {
		return
	}
	if _, err := s.SendMessage(ctx, chatID, domain.TextContent(text), domain.SendOptions{}); err != nil {
		r.log.Error().Err(err).Str("chat_id", chatID).Msg("Failed to send message")
	}
}

// isUnpause reports whether the text is the unpause command under prefix,
// as a whole token
func isUnpause(text, prefix string) bool {
	if !strings.HasPrefix(text, prefix) {
		return false
	}
	rest, ok := strings.CutPrefix(text[len(prefix):], UnpauseCommand)
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return unicode.IsSpace(r)
}

// isMuted reports whether the text starts with any muted string, ignoring case
func isMuted(text string, muted []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, m := range muted {
		if m != "" && strings.HasPrefix(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// isIgnored applies the group's ignore lists. Entries shorter than
// minIgnoreMatchLen never match.
func isIgnored(authorID string, g *domain.GroupConfig) bool {
	for _, list := range [][]string{g.IgnoredNumbers, g.IgnoredUsers} {
		for _, entry := range list {
			if len(entry) >= minIgnoreMatchLen && strings.Contains(authorID, entry) {
				return true
			}
		}
	}
	return false
}

func isSelf(info domain.SessionInfo, id string) bool {
	return info.PhoneNumber != "" && strings.Contains(id, info.PhoneNumber)
}
