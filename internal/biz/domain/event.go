package domain

import (
	"context"
	"strings"
	"time"
)

// MessageType is the normalized kind of an inbound message
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeImage   MessageType = "image"
	MessageTypeVideo   MessageType = "video"
	MessageTypeAudio   MessageType = "audio"
	MessageTypeVoice   MessageType = "voice"
	MessageTypeSticker MessageType = "sticker"
	MessageTypeOther   MessageType = "other"
)

// IsMedia reports whether the type carries a media payload
func (t MessageType) IsMedia() bool {
	return t != MessageTypeText && t != MessageTypeOther
}

// Event is a normalized inbound message.
// It lives only for the duration of one routing pass.
type Event struct {
	ID             string
	AuthorID       string
	AuthorName     string // may be overlaid by a group alias
	ConversationID string // empty for direct messages
	Type           MessageType
	Text           string // body for text messages, caption otherwise
	HasMedia       bool
	Timestamp      time.Time
}

// IsGroup reports whether the event came from a group conversation
func (e *Event) IsGroup() bool {
	return e.ConversationID != ""
}

// ChatID is where replies to this event go
func (e *Event) ChatID() string {
	if e.ConversationID != "" {
		return e.ConversationID
	}
	return e.AuthorID
}

// IsGroupChatID reports whether a raw chat id denotes a group.
// WhatsApp group ids end in @g.us; Lark chat ids start with oc_ (direct
// messages are addressed by the user's open id instead).
func IsGroupChatID(id string) bool {
	return strings.Contains(id, "@g") || strings.HasPrefix(id, "oc_")
}

// Participant is a member of a chat
type Participant struct {
	ID      string
	Name    string
	IsAdmin bool
}

// Chat describes the conversation an event belongs to
type Chat struct {
	ID           string
	Name         string
	Description  string
	IsGroup      bool
	Participants []Participant
}

// IsAdmin reports whether the participant is a chat admin
func (c *Chat) IsAdmin(id string) bool {
	for _, p := range c.Participants {
		if p.ID == id {
			return p.IsAdmin
		}
	}
	return false
}

// Contact describes an event author
type Contact struct {
	ID       string
	Name     string
	PushName string
}

// DisplayName returns the best known name of the contact
func (c *Contact) DisplayName() string {
	if c.PushName != "" {
		return c.PushName
	}
	if c.Name != "" {
		return c.Name
	}
	return "Usuário"
}

// MembershipEvent reports members joining or leaving a group
type MembershipEvent struct {
	ChatID     string
	ChatName   string
	ActorID    string // who added or removed them; empty when self-initiated
	InviteCode string // set when the join came through an invite link
	Members    []Participant
}

// Media is downloaded message content
type Media struct {
	MimeType string
	Filename string
	Data     []byte
}

// QuotedMessage is the message an event replies to
type QuotedMessage struct {
	ID       string
	AuthorID string
	Type     MessageType
	Text     string
	HasMedia bool
	Origin   Origin
}

// Origin is the capability handle of an inbound event.
// Transports adapt their native message objects to it.
type Origin interface {
	Chat(ctx context.Context) (*Chat, error)
	Contact(ctx context.Context) (*Contact, error)
	QuotedMessage(ctx context.Context) (*QuotedMessage, error) // nil when not a reply
	React(ctx context.Context, emoji string) error
	Delete(ctx context.Context, forEveryone bool) error
	DownloadMedia(ctx context.Context) (*Media, error)
}
