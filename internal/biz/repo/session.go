package repo

import (
	"context"
	"time"

	"github.com/ravenabot/ravena/internal/biz/domain"
)

// Session is one bot identity connected through some transport.
// The router and dispatcher are shared across all sessions.
type Session interface {
	Info() domain.SessionInfo
	IsConnected() bool
	LastMessageReceivedAt() time.Time

	// SendMessage sends content to a chat or user and returns the sent message id
	SendMessage(ctx context.Context, to string, content domain.Content, opts domain.SendOptions) (string, error)

	// Pin pins a sent message for the given duration
	Pin(ctx context.Context, chatID, msgID string, d time.Duration) error

	// Restart reconnects the underlying client
	Restart(ctx context.Context, reason string) error

	// Shutdown disconnects and releases the client
	Shutdown(ctx context.Context) error
}
