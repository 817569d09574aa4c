package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
)

type loadCounts struct {
	receivedPrivate int
	receivedGroup   int
	sentPrivate     int
	sentGroup       int
}

// LoadReporter counts traffic per session and periodically reports it
type LoadReporter struct {
	fleet      *Fleet
	logsChatID string
	interval   time.Duration
	title      string
	log        zerolog.Logger

	mu     sync.Mutex
	counts map[string]*loadCounts
	since  time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLoadReporter creates a reporter. An empty logsChatID only logs the report.
func NewLoadReporter(fleet *Fleet, logsChatID string, interval time.Duration, title string, log zerolog.Logger) *LoadReporter {
	return &LoadReporter{
		fleet:      fleet,
		logsChatID: logsChatID,
		interval:   interval,
		title:      title,
		log:        log.With().Str("component", "load").Logger(),
		counts:     make(map[string]*loadCounts),
		since:      time.Now(),
	}
}

func (r *LoadReporter) entry(sessionID string) *loadCounts {
	c, ok := r.counts[sessionID]
	if !ok {
		c = &loadCounts{}
		r.counts[sessionID] = c
	}
	return c
}

// Received counts one inbound message
func (r *LoadReporter) Received(sessionID string, group bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if group {
		r.entry(sessionID).receivedGroup++
	} else {
		r.entry(sessionID).receivedPrivate++
	}
}

// Sent counts one outbound message
func (r *LoadReporter) Sent(sessionID, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if domain.IsGroupChatID(to) {
		r.entry(sessionID).sentGroup++
	} else {
		r.entry(sessionID).sentPrivate++
	}
}

// Wrap returns a session whose sends are counted
func (r *LoadReporter) Wrap(s repo.Session) repo.Session {
	return &countingSession{Session: s, reporter: r}
}

type countingSession struct {
	repo.Session
	reporter *LoadReporter
}

func (s *countingSession) SendMessage(ctx context.Context, to string, content domain.Content, opts domain.SendOptions) (string, error) {
	id, err := s.Session.SendMessage(ctx, to, content, opts)
	if err == nil {
		s.reporter.Sent(s.Info().ID, to)
	}
	return id, err
}

// Snapshot renders the counters and resets them
func (r *LoadReporter) Snapshot(now time.Time) string {
	r.mu.Lock()
	counts := r.counts
	since := r.since
	r.counts = make(map[string]*loadCounts)
	r.since = now
	r.mu.Unlock()

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s - %s\n", r.title, since.Format("15:04"), now.Format("15:04"))
	if len(ids) == 0 {
		b.WriteString("\nNenhuma mensagem no período.")
		return b.String()
	}
	for _, id := range ids {
		c := counts[id]
		fmt.Fprintf(&b, "\n*%s*\n", id)
		fmt.Fprintf(&b, "📥 Recebidas: %d (privado %d, grupos %d)\n", c.receivedPrivate+c.receivedGroup, c.receivedPrivate, c.receivedGroup)
		fmt.Fprintf(&b, "📤 Enviadas: %d (privado %d, grupos %d)\n", c.sentPrivate+c.sentGroup, c.sentPrivate, c.sentGroup)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Report logs a snapshot and posts it to the logs chat
func (r *LoadReporter) Report(ctx context.Context) {
	text := r.Snapshot(time.Now())
	r.log.Info().Str("report", text).Msg("Load report")
	if r.logsChatID == "" {
		return
	}
	for _, s := range r.fleet.Sessions() {
		if !s.IsConnected() {
			continue
		}
		if _, err := s.SendMessage(ctx, r.logsChatID, domain.TextContent(text), domain.SendOptions{}); err != nil {
			r.log.Error().Err(err).Str("session", s.Info().ID).Msg("Failed to post load report")
			continue
		}
		return
	}
}

// Start reports periodically until Stop or ctx cancellation
func (r *LoadReporter) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Report(ctx)
			}
		}
	}()
}

// Stop stops the periodic report
func (r *LoadReporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
