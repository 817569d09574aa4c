package domain

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
)

// Reactions are the emojis applied around a command run.
// An empty value disables that reaction point.
type Reactions struct {
	Trigger string
	Before  string
	After   string
	Error   string
}

// DefaultReactions is used when a command declares none
var DefaultReactions = Reactions{
	Before: "⏳",
	After:  "✅",
	Error:  "❌",
}

// CommandContext is what a handler receives
type CommandContext struct {
	Event   *Event
	Origin  Origin
	Args    []string
	Group   *GroupConfig // nil in direct messages
	Session SessionInfo
	Quoted  *QuotedMessage
}

// CommandHandler runs a command and returns the messages to send
type CommandHandler func(ctx context.Context, cc *CommandContext) ([]OutboundMessage, error)

// Command is a static registry entry
type Command struct {
	Name           string
	Aliases        []string
	Category       string
	Description    string
	NeedsMedia     bool
	NeedsQuotedMsg bool
	AdminOnly      bool
	CaseSensitive  bool
	Cooldown       time.Duration
	Reactions      *Reactions // nil means DefaultReactions
	Hidden         bool
	Handler        CommandHandler
}

// EffectiveReactions returns the reactions to apply
func (c *Command) EffectiveReactions() Reactions {
	if c.Reactions == nil {
		return DefaultReactions
	}
	return *c.Reactions
}

// Matches reports whether name invokes this command
func (c *Command) Matches(name string) bool {
	names := append([]string{c.Name}, c.Aliases...)
	for _, n := range names {
		if c.CaseSensitive {
			if n == name {
				return true
			}
		} else if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// CustomCommand is a per-group command defined by admins
type CustomCommand struct {
	StartsWith       string    `json:"startsWith"`
	Responses        []string  `json:"responses"`
	SendAllResponses bool      `json:"sendAllResponses"`
	Cooldown         int       `json:"cooldown"` // seconds
	IgnorePrefix     bool      `json:"ignorePrefix"`
	Active           bool      `json:"active"`
	Count            int       `json:"count"`
	LastUsed         time.Time `json:"lastUsed"`
}

// MatchesCommand reports whether a prefixed command line invokes it
func (c *CustomCommand) MatchesCommand(commandText string) bool {
	return c.Active && c.StartsWith != "" &&
		strings.HasPrefix(strings.ToLower(commandText), strings.ToLower(c.StartsWith))
}

// MatchesAuto reports whether free text auto-triggers it
func (c *CustomCommand) MatchesAuto(text string) bool {
	return c.Active && c.IgnorePrefix && c.StartsWith != "" &&
		strings.Contains(strings.ToLower(text), strings.ToLower(c.StartsWith))
}

// CooldownTracker remembers the last use per key
type CooldownTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewCooldownTracker creates a tracker
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{last: make(map[string]time.Time), now: time.Now}
}

// Check records a use of key unless it is still cooling down.
// It returns the remaining whole seconds when blocked.
func (t *CooldownTracker) Check(key string, cooldown time.Duration) (int, bool) {
	if cooldown <= 0 {
		return 0, true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.last[key]; ok {
		if elapsed := now.Sub(last); elapsed < cooldown {
			return int(math.Ceil((cooldown - elapsed).Seconds())), false
		}
	}
	t.last[key] = now
	return 0, true
}
