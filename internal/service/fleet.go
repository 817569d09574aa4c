package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/repo"
)

// DefaultShutdownTimeout bounds how long one session may take to close
const DefaultShutdownTimeout = 10 * time.Second

// Fleet is the set of sessions hosted by this process
type Fleet struct {
	mu       sync.RWMutex
	sessions []repo.Session

	shutdownTimeout time.Duration
	log             zerolog.Logger
}

// NewFleet creates an empty fleet
func NewFleet(shutdownTimeout time.Duration, log zerolog.Logger) *Fleet {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Fleet{
		shutdownTimeout: shutdownTimeout,
		log:             log.With().Str("component", "fleet").Logger(),
	}
}

// Add adds a session; ids must be unique
func (f *Fleet) Add(s repo.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.Info().ID == s.Info().ID {
			return fmt.Errorf("session %s already in fleet", s.Info().ID)
		}
	}
	f.sessions = append(f.sessions, s)
	return nil
}

// Get returns the session with the given id, nil if unknown
func (f *Fleet) Get(id string) repo.Session {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.sessions {
		if s.Info().ID == id {
			return s
		}
	}
	return nil
}

// Sessions returns the sessions in insertion order
func (f *Fleet) Sessions() []repo.Session {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]repo.Session(nil), f.sessions...)
}

// PeerNumbers returns every identity of every session, aliases included
func (f *Fleet) PeerNumbers() []string {
	var numbers []string
	for _, s := range f.Sessions() {
		numbers = append(numbers, s.Info().Identities()...)
	}
	return numbers
}

// Status returns a snapshot of every session
func (f *Fleet) Status() []domain.SessionStatus {
	sessions := f.Sessions()
	out := make([]domain.SessionStatus, 0, len(sessions))
	for _, s := range sessions {
		info := s.Info()
		out = append(out, domain.SessionStatus{
			ID:                    info.ID,
			PhoneNumber:           info.PhoneNumber,
			Connected:             s.IsConnected(),
			LastMessageReceivedAt: s.LastMessageReceivedAt(),
		})
	}
	return out
}

// Shutdown closes every session concurrently. A session that does not finish
// within the timeout is abandoned; shutdown still completes.
func (f *Fleet) Shutdown(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range f.Sessions() {
		wg.Add(1)
		go func(s repo.Session) {
			defer wg.Done()
			f.shutdownOne(ctx, s)
		}(s)
	}
	wg.Wait()
}

func (f *Fleet) shutdownOne(ctx context.Context, s repo.Session) {
	id := s.Info().ID
	ctx, cancel := context.WithTimeout(ctx, f.shutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Shutdown(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			f.log.Error().Err(err).Str("session", id).Msg("Session shutdown failed")
			return
		}
		f.log.Info().Str("session", id).Msg("Session shut down")
	case <-ctx.Done():
		f.log.Warn().Str("session", id).Dur("timeout", f.shutdownTimeout).Msg("Session shutdown timed out, proceeding")
	}
}
