package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
	"github.com/ravenabot/ravena/internal/biz/usecase"
)

const (
	DefaultSilenceThreshold = 660 * time.Second
	DefaultSweepInterval    = 5 * time.Minute

	// restartBackoff pushes the liveness record forward after a restart
	restartBackoff = 5 * time.Minute
)

// StabilityMonitor restarts sessions that stopped receiving their own group
// traffic. Every session is expected to see messages sent by its siblings in
// shared groups, so silence means the connection is stale.
type StabilityMonitor struct {
	sessions  func() []repo.Session
	threshold time.Duration
	interval  time.Duration
	tasks     *usecase.Tasks
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time // session id -> last liveness evidence
	relay    func(e *domain.Event)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStabilityMonitor creates a monitor over the sessions returned by sessions
func NewStabilityMonitor(sessions func() []repo.Session, threshold, interval time.Duration, tasks *usecase.Tasks, log zerolog.Logger) *StabilityMonitor {
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &StabilityMonitor{
		sessions:  sessions,
		threshold: threshold,
		interval:  interval,
		tasks:     tasks,
		log:       log.With().Str("component", "monitor").Logger(),
		now:       time.Now,
		lastSeen:  make(map[string]time.Time),
	}
}

// SetRelay forwards every local observation, e.g. to other processes
func (m *StabilityMonitor) SetRelay(relay func(e *domain.Event)) {
	m.mu.Lock()
	m.relay = relay
	m.mu.Unlock()
}

// Observe records liveness when a group message was sent by one of the
// monitored sessions' own numbers
func (m *StabilityMonitor) Observe(e *domain.Event) {
	if e == nil || !e.IsGroup() {
		return
	}
	m.record(e.AuthorID, m.now())

	m.mu.Lock()
	relay := m.relay
	m.mu.Unlock()
	if relay != nil {
		relay(e)
	}
}

// ObserveRemote records liveness of a group message reported by another process
func (m *StabilityMonitor) ObserveRemote(chatID, authorID string, at time.Time) {
	if chatID == "" {
		return
	}
	m.record(authorID, at)
}

func (m *StabilityMonitor) record(authorID string, at time.Time) {
	if authorID == "" {
		return
	}
	for _, s := range m.sessions() {
		if !s.Info().IsAuthor(authorID) {
			continue
		}
		m.mu.Lock()
		if at.After(m.lastSeen[s.Info().ID]) {
			m.lastSeen[s.Info().ID] = at
		}
		m.mu.Unlock()
	}
}

// LastSeen returns the liveness record of a session
func (m *StabilityMonitor) LastSeen(sessionID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lastSeen[sessionID]
	return t, ok
}

// Sweep restarts every session silent for longer than the threshold.
// Sessions that were never observed are left alone.
func (m *StabilityMonitor) Sweep(now time.Time) int {
	restarted := 0
	for _, s := range m.sessions() {
		id := s.Info().ID

		m.mu.Lock()
		last, ok := m.lastSeen[id]
		if !ok {
			m.mu.Unlock()
			continue
		}
		elapsed := now.Sub(last)
		if elapsed <= m.threshold {
			m.mu.Unlock()
			continue
		}
		m.lastSeen[id] = now.Add(restartBackoff)
		m.mu.Unlock()

		reason := fmt.Sprintf("sem mensagens há %ds (limite %ds)", int(elapsed.Seconds()), int(m.threshold.Seconds()))
		m.log.Warn().
			Str("session", id).
			Dur("elapsed", elapsed).
			Msg("Session silent, restarting")

		session := s
		m.tasks.Go("session-restart", func() error {
			if err := session.Restart(context.Background(), reason); err != nil {
				return fmt.Errorf("failed to restart session %s: %w", id, err)
			}
			return nil
		})
		restarted++
	}
	return restarted
}

// Start runs the sweep periodically until Stop or ctx cancellation
func (m *StabilityMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(m.now())
			}
		}
	}()
	m.log.Info().Dur("interval", m.interval).Dur("threshold", m.threshold).Msg("Stability monitor started")
}

// Stop stops the periodic sweep
func (m *StabilityMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
