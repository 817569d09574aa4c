package domain

import (
	"strings"
	"time"
	"unicode"
)

// DefaultPrefix is the command prefix of a freshly created group
const DefaultPrefix = "!"

// maxDerivedNameLen bounds the fallback name derived from a group id
const maxDerivedNameLen = 16

// Filters holds the content filters of a group
type Filters struct {
	Words  []string `json:"words"`
	Links  bool     `json:"links"`
	People []string `json:"people"`
	NSFW   bool     `json:"nsfw"`
}

// Template is a greeting/farewell message template
type Template struct {
	Text    string `json:"text,omitempty"`
	Sticker string `json:"sticker,omitempty"`
	Audio   string `json:"audio,omitempty"`
}

// IsEmpty reports whether the template has nothing to send
func (t Template) IsEmpty() bool {
	return t.Text == "" && t.Sticker == "" && t.Audio == ""
}

// Interact holds the auto-interaction cooldown state
type Interact struct {
	Enabled         bool  `json:"enabled"`
	LastInteraction int64 `json:"lastInteraction"`
	Cooldown        int   `json:"cooldown"` // seconds
	Chance          int   `json:"chance"`   // percent
}

// Nick maps a sender number to a display alias
type Nick struct {
	Number string `json:"numero"`
	Alias  string `json:"apelido"`
}

// GroupConfig is the per-conversation configuration aggregate
type GroupConfig struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Prefix           string          `json:"prefix"`
	Paused           bool            `json:"paused"`
	AdditionalAdmins []string        `json:"additionalAdmins"`
	Filters          Filters         `json:"filters"`
	IgnoredNumbers   []string        `json:"ignoredNumbers"`
	IgnoredUsers     []string        `json:"ignoredUsers"`
	MutedStrings     []string        `json:"mutedStrings"`
	Nicks            []Nick          `json:"nicks"`
	Greetings        Template        `json:"greetings"`
	Farewells        Template        `json:"farewells"`
	Interact         Interact        `json:"interact"`
	AutoStt          bool            `json:"autoStt"`
	AddedBy          string          `json:"addedBy,omitempty"`
	RemovedBy        string          `json:"removedBy,omitempty"`
	InviteCode       string          `json:"inviteCode,omitempty"`
	CustomCommands   []CustomCommand `json:"customCommands"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// NewGroupConfig creates a group with default settings.
// An empty name is derived from the id.
func NewGroupConfig(id, name string) *GroupConfig {
	if name == "" {
		name = DeriveGroupName(id)
	}
	now := time.Now()
	return &GroupConfig{
		ID:     id,
		Name:   name,
		Prefix: DefaultPrefix,
		Filters: Filters{
			Words:  []string{},
			People: []string{},
		},
		Interact: Interact{
			Enabled:  true,
			Cooldown: 30,
			Chance:   100,
		},
		AdditionalAdmins: []string{},
		IgnoredNumbers:   []string{},
		IgnoredUsers:     []string{},
		MutedStrings:     []string{},
		Nicks:            []Nick{},
		CustomCommands:   []CustomCommand{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// DeriveGroupName builds the fallback name from a group id: the part before '@',
// lowercased, without whitespace, at most 16 characters.
func DeriveGroupName(id string) string {
	base, _, _ := strings.Cut(id, "@")
	var b strings.Builder
	n := 0
	for _, r := range strings.ToLower(base) {
		if unicode.IsSpace(r) {
			continue
		}
		if n == maxDerivedNameLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// FiltersPatch is a partial update of Filters
type FiltersPatch struct {
	Words  *[]string
	Links  *bool
	People *[]string
	NSFW   *bool
}

// TemplatePatch is a partial update of a Template
type TemplatePatch struct {
	Text    *string
	Sticker *string
	Audio   *string
}

// InteractPatch is a partial update of Interact
type InteractPatch struct {
	Enabled         *bool
	LastInteraction *int64
	Cooldown        *int
	Chance          *int
}

// GroupPatch is a partial update of a GroupConfig.
// Nil fields keep the current value.
type GroupPatch struct {
	Name             *string
	Prefix           *string
	Paused           *bool
	AdditionalAdmins *[]string
	Filters          *FiltersPatch
	IgnoredNumbers   *[]string
	IgnoredUsers     *[]string
	MutedStrings     *[]string
	Nicks            *[]Nick
	Greetings        *TemplatePatch
	Farewells        *TemplatePatch
	Interact         *InteractPatch
	AutoStt          *bool
	InviteCode       *string
	AddedBy          *string
	CustomCommands   *[]CustomCommand
}

// Update merges the patch into the group and advances UpdatedAt
func (g *GroupConfig) Update(p GroupPatch) {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.Prefix != nil {
		g.Prefix = *p.Prefix
	}
	if p.Paused != nil {
		g.Paused = *p.Paused
	}
	if p.AdditionalAdmins != nil {
		g.AdditionalAdmins = *p.AdditionalAdmins
	}
	if f := p.Filters; f != nil {
		if f.Words != nil {
			g.Filters.Words = *f.Words
		}
		if f.Links != nil {
			g.Filters.Links = *f.Links
		}
		if f.People != nil {
			g.Filters.People = *f.People
		}
		if f.NSFW != nil {
			g.Filters.NSFW = *f.NSFW
		}
	}
	if p.IgnoredNumbers != nil {
		g.IgnoredNumbers = *p.IgnoredNumbers
	}
	if p.IgnoredUsers != nil {
		g.IgnoredUsers = *p.IgnoredUsers
	}
	if p.MutedStrings != nil {
		g.MutedStrings = *p.MutedStrings
	}
	if p.Nicks != nil {
		g.Nicks = *p.Nicks
	}
	if p.Greetings != nil {
		p.Greetings.apply(&g.Greetings)
	}
	if p.Farewells != nil {
		p.Farewells.apply(&g.Farewells)
	}
	if i := p.Interact; i != nil {
		if i.Enabled != nil {
			g.Interact.Enabled = *i.Enabled
		}
		if i.LastInteraction != nil {
			g.Interact.LastInteraction = *i.LastInteraction
		}
		if i.Cooldown != nil {
			g.Interact.Cooldown = *i.Cooldown
		}
		if i.Chance != nil {
			g.Interact.Chance = *i.Chance
		}
	}
	if p.AutoStt != nil {
		g.AutoStt = *p.AutoStt
	}
	if p.InviteCode != nil {
		g.InviteCode = *p.InviteCode
	}
	if p.AddedBy != nil {
		g.AddedBy = *p.AddedBy
	}
	if p.CustomCommands != nil {
		g.CustomCommands = *p.CustomCommands
	}
	g.touch()
}

func (p *TemplatePatch) apply(t *Template) {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Sticker != nil {
		t.Sticker = *p.Sticker
	}
	if p.Audio != nil {
		t.Audio = *p.Audio
	}
}

// SetRemoved marks the group as left/removed; the record is kept
func (g *GroupConfig) SetRemoved(by string) {
	g.RemovedBy = by
	g.touch()
}

// IsRemoved reports whether the bot was removed from the group
func (g *GroupConfig) IsRemoved() bool {
	return g.RemovedBy != ""
}

// touch advances UpdatedAt strictly, even when the clock has not moved
func (g *GroupConfig) touch() {
	now := time.Now()
	if !now.After(g.UpdatedAt) {
		now = g.UpdatedAt.Add(time.Nanosecond)
	}
	g.UpdatedAt = now
}

// AliasFor returns the configured alias of a sender number
func (g *GroupConfig) AliasFor(authorID string) (string, bool) {
	for _, n := range g.Nicks {
		if n.Number == authorID {
			return n.Alias, true
		}
	}
	return "", false
}

// IsAdditionalAdmin reports whether the author was granted admin on this group
func (g *GroupConfig) IsAdditionalAdmin(authorID string) bool {
	for _, a := range g.AdditionalAdmins {
		if a == authorID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the group
func (g *GroupConfig) Clone() *GroupConfig {
	c := *g
	c.AdditionalAdmins = append([]string(nil), g.AdditionalAdmins...)
	c.Filters.Words = append([]string(nil), g.Filters.Words...)
	c.Filters.People = append([]string(nil), g.Filters.People...)
	c.IgnoredNumbers = append([]string(nil), g.IgnoredNumbers...)
	c.IgnoredUsers = append([]string(nil), g.IgnoredUsers...)
	c.MutedStrings = append([]string(nil), g.MutedStrings...)
	c.Nicks = append([]Nick(nil), g.Nicks...)
	c.CustomCommands = make([]CustomCommand, len(g.CustomCommands))
	for i, cmd := range g.CustomCommands {
		c.CustomCommands[i] = cmd
		c.CustomCommands[i].Responses = append([]string(nil), cmd.Responses...)
	}
	return &c
}
