package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/usecase"
)

// FleetStatus reports the sessions of this process
type FleetStatus interface {
	Status() []domain.SessionStatus
}

// Server provides the status and management HTTP API
type Server struct {
	fleet   FleetStatus
	groups  *usecase.GroupConfigUsecase
	history *usecase.HistoryUsecase
	log     zerolog.Logger

	server *http.Server
	port   int
}

// GroupSummary is the list view of a group
type GroupSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Prefix    string    `json:"prefix"`
	Paused    bool      `json:"paused"`
	Removed   bool      `json:"removed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FleetResponse is returned by /api/fleet
type FleetResponse struct {
	Sessions []domain.SessionStatus `json:"sessions"`
}

// HistoryResponse is returned by /api/groups/{id}/history
type HistoryResponse struct {
	Messages []domain.HistoryEntry `json:"messages"`
}

// PauseRequest is the body of POST /api/groups/{id}/pause
type PauseRequest struct {
	Paused bool `json:"paused"`
}

var errNotFound = errors.New("group not found")

// NewServer creates a new API server
func NewServer(fleet FleetStatus, groups *usecase.GroupConfigUsecase, history *usecase.HistoryUsecase, port int, log zerolog.Logger) *Server {
	return &Server{
		fleet:   fleet,
		groups:  groups,
		history: history,
		port:    port,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// Handler returns the routes of the API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/fleet", s.handleFleet)
	mux.HandleFunc("/api/groups", s.handleGroups)
	mux.HandleFunc("/api/groups/", s.handleGroupItem)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// GetPort returns the server port
func (s *Server) GetPort() int {
	return s.port
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, FleetResponse{Sessions: s.fleet.Status()})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	groups := s.groups.List()
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, summarize(g))
	}
	s.writeJSON(w, out)
}

// handleGroupItem serves /api/groups/{id}[/pause|/history]
func (s *Server) handleGroupItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/groups/")
	id, action, _ := strings.Cut(rest, "/")
	id, err := url.PathUnescape(id)
	if err != nil || id == "" {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return
	}

	switch action {
	case "":
		s.handleGroup(w, r, id)
	case "pause":
		s.handlePause(w, r, id)
	case "history":
		s.handleHistory(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g, err := s.group(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, g)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := s.group(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	g, err := s.groups.Update(r.Context(), id, domain.GroupPatch{Paused: &req.Paused})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info().Str("group_id", id).Bool("paused", req.Paused).Msg("Group pause changed through API")
	s.writeJSON(w, summarize(g))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	s.writeJSON(w, HistoryResponse{Messages: s.history.Recent(id, limit)})
}

func (s *Server) group(ctx context.Context, id string) (*domain.GroupConfig, error) {
	g, err := s.groups.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errNotFound
	}
	return g, nil
}

func summarize(g *domain.GroupConfig) GroupSummary {
	return GroupSummary{
		ID:        g.ID,
		Name:      g.Name,
		Prefix:    g.Prefix,
		Paused:    g.Paused,
		Removed:   g.IsRemoved(),
		UpdatedAt: g.UpdatedAt,
	}
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, errNotFound) {
		status = http.StatusNotFound
	} else {
		s.log.Error().Err(err).Msg("API request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
