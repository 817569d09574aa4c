package domain

import "time"

// SendOptions controls how a message is delivered
type SendOptions struct {
	AsSticker       bool
	AsVoice         bool
	Caption         string
	QuotedMessageID string
	Mentions        []string
	PinDuration     time.Duration
}

// Content is either text or media
type Content struct {
	Text  string
	Media *Media
}

// TextContent wraps plain text
func TextContent(text string) Content {
	return Content{Text: text}
}

// IsEmpty reports whether there is nothing to send
func (c Content) IsEmpty() bool {
	return c.Text == "" && c.Media == nil
}

// OutboundMessage is one message a handler asks the session to send
type OutboundMessage struct {
	ChatID    string
	Content   Content
	Options   SendOptions
	Reactions *Reactions // applied to the triggering message after sending
	Delay     time.Duration
}

// IsValid reports whether the message has a destination and a body
func (m *OutboundMessage) IsValid() bool {
	return m.ChatID != "" && !m.Content.IsEmpty()
}

// Reply builds a text message to the event's chat
func Reply(e *Event, text string) OutboundMessage {
	return OutboundMessage{ChatID: e.ChatID(), Content: TextContent(text)}
}
