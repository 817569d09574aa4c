package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
	"github.com/ravenabot/ravena/internal/biz/usecase"
)

const (
	// ManagementMarker starts every group management command
	ManagementMarker = "g-"

	// UnpauseCommand is the only command accepted while a group is paused
	UnpauseCommand = "g-pausar"

	autoStickerCommand = "sticker"
)

// IsManagementCommand reports whether a command name belongs to the g- family
func IsManagementCommand(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), ManagementMarker)
}

// Dispatcher runs commands recognized by the router
type Dispatcher struct {
	registry      *Registry
	management    *Management
	groups        *usecase.GroupConfigUsecase
	admins        *usecase.AdminUsecase
	cooldowns     *domain.CooldownTracker
	pinLimiter    *rate.Limiter
	texts         Texts
	notifyUnknown bool
	intn          func(n int) int
	log           zerolog.Logger
}

// DispatcherConfig configures a dispatcher
type DispatcherConfig struct {
	Texts         Texts
	NotifyUnknown bool
	PinsPerSecond float64
	PinBurst      int
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(
	registry *Registry,
	management *Management,
	groups *usecase.GroupConfigUsecase,
	admins *usecase.AdminUsecase,
	config DispatcherConfig,
	log zerolog.Logger,
) *Dispatcher {
	if config.PinsPerSecond <= 0 {
		config.PinsPerSecond = 1
	}
	if config.PinBurst <= 0 {
		config.PinBurst = 5
	}
	return &Dispatcher{
		registry:      registry,
		management:    management,
		groups:        groups,
		admins:        admins,
		cooldowns:     domain.NewCooldownTracker(),
		pinLimiter:    rate.NewLimiter(rate.Limit(config.PinsPerSecond), config.PinBurst),
		texts:         config.Texts,
		notifyUnknown: config.NotifyUnknown,
		intn:          rand.Intn,
		log:           log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch runs the command named by the first token of commandText.
// g is nil for direct messages.
func (d *Dispatcher) Dispatch(ctx context.Context, s repo.Session, e *domain.Event, origin domain.Origin, commandText string, g *domain.GroupConfig) {
	fields := strings.Fields(commandText)
	if len(fields) == 0 {
		return
	}
	name, args := fields[0], fields[1:]

	if d.management != nil && IsManagementCommand(name) {
		d.management.Handle(ctx, s, e, origin, name, args, g)
		return
	}

	if cmd := d.registry.Lookup(name); cmd != nil {
		d.run(ctx, s, e, origin, cmd, args, g)
		return
	}

	if g != nil {
		for i := range g.CustomCommands {
			if g.CustomCommands[i].MatchesCommand(commandText) {
				d.runCustom(ctx, s, e, g, g.CustomCommands[i])
				return
			}
		}
	}

	d.log.Debug().Str("command", name).Str("chat_id", e.ChatID()).Msg("Unknown command")
	if d.notifyUnknown {
		d.reply(ctx, s, e, fmt.Sprintf(d.texts.UnknownCommand, name))
	}
}

// HandleNonCommand runs the first auto-triggered custom command matching the
// text. Images sent in private chats are turned into stickers.
func (d *Dispatcher) HandleNonCommand(ctx context.Context, s repo.Session, e *domain.Event, origin domain.Origin, g *domain.GroupConfig) {
	if g == nil {
		if e.HasMedia && e.Type == domain.MessageTypeImage {
			if cmd := d.registry.Lookup(autoStickerCommand); cmd != nil {
				d.run(ctx, s, e, origin, cmd, nil, nil)
			}
		}
		return
	}
	if e.Text == "" {
		return
	}
	for i := range g.CustomCommands {
		if g.CustomCommands[i].MatchesAuto(e.Text) {
			d.runCustom(ctx, s, e, g, g.CustomCommands[i])
			return
		}
	}
}

// DispatchReaction runs the command bound to emoji against the reacted message.
// Returns false when no command uses that trigger.
func (d *Dispatcher) DispatchReaction(ctx context.Context, s repo.Session, target *domain.Event, origin domain.Origin, emoji, reactorID string, g *domain.GroupConfig) bool {
	cmd := d.registry.LookupTrigger(emoji)
	if cmd == nil {
		return false
	}
	e := *target
	e.AuthorID = reactorID
	e.AuthorName = ""
	d.run(ctx, s, &e, origin, cmd, strings.Fields(target.Text), g)
	return true
}

func (d *Dispatcher) run(ctx context.Context, s repo.Session, e *domain.Event, origin domain.Origin, cmd *domain.Command, args []string, g *domain.GroupConfig) {
	log := d.log.With().
		Str("command", cmd.Name).
		Str("chat_id", e.ChatID()).
		Str("author", e.AuthorID).
		Logger()

	cc := &domain.CommandContext{
		Event:   e,
		Origin:  origin,
		Args:    args,
		Group:   g,
		Session: s.Info(),
	}

	if cmd.NeedsMedia || cmd.NeedsQuotedMsg {
		quoted, err := origin.QuotedMessage(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load quoted message")
		}
		cc.Quoted = quoted
	}
	if cmd.NeedsMedia && !e.HasMedia && (cc.Quoted == nil || !cc.Quoted.HasMedia) {
		d.reply(ctx, s, e, d.texts.NeedsMedia)
		return
	}
	if cmd.NeedsQuotedMsg && cc.Quoted == nil {
		d.reply(ctx, s, e, d.texts.NeedsQuoted)
		return
	}
	if cmd.AdminOnly && !d.admins.IsAdmin(ctx, e.AuthorID, g, origin) {
		d.reply(ctx, s, e, d.texts.NotAdmin)
		return
	}
	if remaining, ok := d.cooldowns.Check(e.ChatID()+"|"+cmd.Name, cmd.Cooldown); !ok {
		d.reply(ctx, s, e, fmt.Sprintf(d.texts.Cooldown, remaining))
		return
	}

	reactions := cmd.EffectiveReactions()
	d.react(ctx, origin, reactions.Before, log)

	out, err := invoke(ctx, cmd, cc)
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
		d.reply(ctx, s, e, fmt.Sprintf(d.texts.CommandError, cmd.Name))
		d.react(ctx, origin, reactions.Error, log)
		return
	}

	d.send(ctx, s, origin, out, log)
	d.react(ctx, origin, reactions.After, log)
}

// invoke runs the handler, turning a panic into an error
func invoke(ctx context.Context, cmd *domain.Command, cc *domain.CommandContext) (out []domain.OutboundMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", cmd.Name, r)
		}
	}()
	return cmd.Handler(ctx, cc)
}

// send delivers handler output in order
func (d *Dispatcher) send(ctx context.Context, s repo.Session, origin domain.Origin, out []domain.OutboundMessage, log zerolog.Logger) {
	for _, m := range out {
		if !m.IsValid() {
			log.Warn().Str("to", m.ChatID).Msg("Skipping invalid outbound message")
			continue
		}
		if m.Delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.Delay):
			}
		}

		id, err := s.SendMessage(ctx, m.ChatID, m.Content, m.Options)
		if err != nil {
			log.Error().Err(err).Str("to", m.ChatID).Msg("Failed to send message")
			continue
		}
		if m.Options.PinDuration > 0 && id != "" {
			d.pin(ctx, s, m.ChatID, id, m.Options.PinDuration, log)
		}
		if m.Reactions != nil {
			d.react(ctx, origin, m.Reactions.After, log)
		}
	}
}

func (d *Dispatcher) pin(ctx context.Context, s repo.Session, chatID, msgID string, dur time.Duration, log zerolog.Logger) {
	if !d.pinLimiter.Allow() {
		log.Warn().Str("message_id", msgID).Msg("Pin rate limited, skipping")
		return
	}
	if err := s.Pin(ctx, chatID, msgID, dur); err != nil {
		log.Warn().Err(err).Str("message_id", msgID).Msg("Failed to pin message")
	}
}

// react is best effort; failures are only logged
func (d *Dispatcher) react(ctx context.Context, origin domain.Origin, emoji string, log zerolog.Logger) {
	if emoji == "" || origin == nil {
		return
	}
	if err := origin.React(ctx, emoji); err != nil {
		log.Debug().Err(err).Str("emoji", emoji).Msg("Failed to react")
	}
}

func (d *Dispatcher) reply(ctx context.Context, s repo.Session, e *domain.Event, text string) {
	if text == "" {
		return
	}
	_, err := s.SendMessage(ctx, e.ChatID(), domain.TextContent(text), domain.SendOptions{QuotedMessageID: e.ID})
	if err != nil {
		d.log.Error().Err(err).Str("chat_id", e.ChatID()).Msg("Failed to send reply")
	}
}

func (d *Dispatcher) runCustom(ctx context.Context, s repo.Session, e *domain.Event, g *domain.GroupConfig, cmd domain.CustomCommand) {
	log := d.log.With().Str("custom_command", cmd.StartsWith).Str("chat_id", g.ID).Logger()

	key := g.ID + "|custom|" + strings.ToLower(cmd.StartsWith)
	if _, ok := d.cooldowns.Check(key, time.Duration(cmd.Cooldown)*time.Second); !ok {
		log.Debug().Msg("Custom command cooling down")
		return
	}
	if len(cmd.Responses) == 0 {
		return
	}

	responses := cmd.Responses
	if !cmd.SendAllResponses {
		responses = []string{responses[d.intn(len(responses))]}
	}
	for _, text := range responses {
		text = strings.ReplaceAll(text, "{pessoa}", e.AuthorName)
		d.reply(ctx, s, e, text)
	}

	// counters are last-write-wins like every other group field
	fresh := d.groups.GetOrCreate(ctx, g.ID, g.Name)
	commands := fresh.CustomCommands
	for i := range commands {
		if strings.EqualFold(commands[i].StartsWith, cmd.StartsWith) {
			commands[i].Count++
			commands[i].LastUsed = time.Now()
			break
		}
	}
	if _, err := d.groups.Update(ctx, g.ID, domain.GroupPatch{CustomCommands: &commands}); err != nil {
		log.Warn().Err(err).Msg("Failed to persist custom command usage")
	}
}
