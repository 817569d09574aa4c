package domain

import (
	"strings"
	"time"
)

// SessionInfo is the identity of one bot session (value object)
type SessionInfo struct {
	ID                 string
	PhoneNumber        string
	Aliases            []string // other ids this bot is seen under, e.g. per-app Lark open ids
	Prefix             string   // default command prefix
	IgnoredPeerNumbers []string // sibling bots whose messages are dropped
}

// Identities returns every id this session's bot may appear as
func (s SessionInfo) Identities() []string {
	var ids []string
	for _, id := range append([]string{s.PhoneNumber}, s.Aliases...) {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsAuthor reports whether the author is this session's bot
func (s SessionInfo) IsAuthor(authorID string) bool {
	return containsAny(authorID, s.Identities())
}

// IsPeer reports whether the author is a sibling bot of this session
func (s SessionInfo) IsPeer(authorID string) bool {
	return containsAny(authorID, s.IgnoredPeerNumbers)
}

func containsAny(authorID string, ids []string) bool {
	if authorID == "" {
		return false
	}
	for _, id := range ids {
		if id != "" && strings.Contains(authorID, id) {
			return true
		}
	}
	return false
}

// SessionStatus is a snapshot of a session for status reporting
type SessionStatus struct {
	ID                    string    `json:"id"`
	PhoneNumber           string    `json:"phone_number"`
	Connected             bool      `json:"connected"`
	LastMessageReceivedAt time.Time `json:"last_message_received_at"`
}

// RankEntry is a per-chat message counter of one sender
type RankEntry struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"numero"`
	Name     string `json:"nome"`
	Messages int    `json:"qtdMsgs"`
}

// HistoryEntry is one stored message of a conversation
type HistoryEntry struct {
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// PendingJoin is an invite waiting for approval
type PendingJoin struct {
	Code       string
	AuthorID   string
	AuthorName string
	CreatedAt  time.Time
}
