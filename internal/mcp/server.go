package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ravenabot/ravena/internal/api"
	"github.com/ravenabot/ravena/internal/biz/domain"
)

// Backend is what the tools operate on; Client is the production one
type Backend interface {
	Fleet(ctx context.Context) ([]domain.SessionStatus, error)
	Groups(ctx context.Context) ([]api.GroupSummary, error)
	Group(ctx context.Context, id string) (*domain.GroupConfig, error)
	SetPaused(ctx context.Context, id string, paused bool) (*api.GroupSummary, error)
	History(ctx context.Context, id string, limit int) ([]domain.HistoryEntry, error)
}

// Server exposes the fleet and its groups as MCP tools
type Server struct {
	server  *mcp.Server
	backend Backend
}

const defaultHistoryLimit = 20

// NewServer creates a new MCP server over the backend
func NewServer(backend Backend, version string) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "ravena-tools",
			Version: version,
		}, nil),
		backend: backend,
	}
	s.registerTools()
	return s
}

// Run serves the tools over stdio until the client disconnects
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "fleet_status",
		Description: "List the bot sessions of this process with their connection state and the time of the last received message.",
	}, s.fleetStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_groups",
		Description: "List the known groups with their name, command prefix and pause state.",
	}, s.listGroups)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_group",
		Description: "Get the full configuration of a group: filters, admins, nicks, custom commands.",
	}, s.getGroup)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "set_paused",
		Description: "Pause or resume a group. A paused group only answers the unpause command.",
	}, s.setPaused)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "history",
		Description: "Get the most recent messages of a chat, oldest first.",
	}, s.history)
}

// FleetStatusInput is empty
type FleetStatusInput struct{}

// SessionView is a session snapshot with a textual timestamp
type SessionView struct {
	ID            string `json:"id"`
	PhoneNumber   string `json:"phone_number"`
	Connected     bool   `json:"connected"`
	LastMessageAt string `json:"last_message_at,omitempty"`
}

// FleetStatusOutput contains the session snapshots
type FleetStatusOutput struct {
	Sessions []SessionView `json:"sessions"`
}

func (s *Server) fleetStatus(ctx context.Context, req *mcp.CallToolRequest, input FleetStatusInput) (*mcp.CallToolResult, FleetStatusOutput, error) {
	sessions, err := s.backend.Fleet(ctx)
	if err != nil {
		return nil, FleetStatusOutput{}, fmt.Errorf("failed to get fleet status: %w", err)
	}
	out := FleetStatusOutput{Sessions: make([]SessionView, 0, len(sessions))}
	for _, st := range sessions {
		out.Sessions = append(out.Sessions, SessionView{
			ID:            st.ID,
			PhoneNumber:   st.PhoneNumber,
			Connected:     st.Connected,
			LastMessageAt: formatTime(st.LastMessageReceivedAt),
		})
	}
	return nil, out, nil
}

// ListGroupsInput is empty
type ListGroupsInput struct{}

// GroupView is the summary of a group
type GroupView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Prefix    string `json:"prefix"`
	Paused    bool   `json:"paused"`
	Removed   bool   `json:"removed"`
	UpdatedAt string `json:"updated_at"`
}

// ListGroupsOutput contains the group summaries
type ListGroupsOutput struct {
	Groups []GroupView `json:"groups"`
}

func (s *Server) listGroups(ctx context.Context, req *mcp.CallToolRequest, input ListGroupsInput) (*mcp.CallToolResult, ListGroupsOutput, error) {
	groups, err := s.backend.Groups(ctx)
	if err != nil {
		return nil, ListGroupsOutput{}, fmt.Errorf("failed to list groups: %w", err)
	}
	out := ListGroupsOutput{Groups: make([]GroupView, 0, len(groups))}
	for _, g := range groups {
		out.Groups = append(out.Groups, groupView(g))
	}
	return nil, out, nil
}

// GroupInput selects a group
type GroupInput struct {
	GroupID string `json:"group_id" jsonschema:"The chat id of the group, as returned by list_groups"`
}

// GetGroupOutput contains the group configuration as JSON
type GetGroupOutput struct {
	Group string `json:"group"`
}

func (s *Server) getGroup(ctx context.Context, req *mcp.CallToolRequest, input GroupInput) (*mcp.CallToolResult, GetGroupOutput, error) {
	if input.GroupID == "" {
		return nil, GetGroupOutput{}, fmt.Errorf("group_id is required")
	}
	g, err := s.backend.Group(ctx, input.GroupID)
	if err != nil {
		return nil, GetGroupOutput{}, fmt.Errorf("failed to get group: %w", err)
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, GetGroupOutput{}, fmt.Errorf("failed to encode group: %w", err)
	}
	return nil, GetGroupOutput{Group: string(data)}, nil
}

// SetPausedInput is the input for set_paused
type SetPausedInput struct {
	GroupID string `json:"group_id" jsonschema:"The chat id of the group"`
	Paused  bool   `json:"paused" jsonschema:"true to pause the group, false to resume it"`
}

// SetPausedOutput contains the updated group
type SetPausedOutput struct {
	Group GroupView `json:"group"`
}

func (s *Server) setPaused(ctx context.Context, req *mcp.CallToolRequest, input SetPausedInput) (*mcp.CallToolResult, SetPausedOutput, error) {
	if input.GroupID == "" {
		return nil, SetPausedOutput{}, fmt.Errorf("group_id is required")
	}
	g, err := s.backend.SetPaused(ctx, input.GroupID, input.Paused)
	if err != nil {
		return nil, SetPausedOutput{}, fmt.Errorf("failed to update group: %w", err)
	}
	return nil, SetPausedOutput{Group: groupView(*g)}, nil
}

// HistoryInput is the input for history
type HistoryInput struct {
	ChatID string `json:"chat_id" jsonschema:"The chat id, a group id or a user id for direct messages"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of messages, default 20"`
}

// MessageView is one stored message
type MessageView struct {
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	Timestamp  string `json:"timestamp"`
}

// HistoryOutput contains the messages
type HistoryOutput struct {
	Messages []MessageView `json:"messages"`
}

func (s *Server) history(ctx context.Context, req *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	if input.ChatID == "" {
		return nil, HistoryOutput{}, fmt.Errorf("chat_id is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	messages, err := s.backend.History(ctx, input.ChatID, limit)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("failed to get history: %w", err)
	}
	out := HistoryOutput{Messages: make([]MessageView, 0, len(messages))}
	for _, m := range messages {
		out.Messages = append(out.Messages, MessageView{
			AuthorID:   m.AuthorID,
			AuthorName: m.AuthorName,
			Text:       m.Text,
			Timestamp:  formatTime(m.Timestamp),
		})
	}
	return nil, out, nil
}

func groupView(g api.GroupSummary) GroupView {
	return GroupView{
		ID:        g.ID,
		Name:      g.Name,
		Prefix:    g.Prefix,
		Paused:    g.Paused,
		Removed:   g.Removed,
		UpdatedAt: formatTime(g.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
