package usecase

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Tasks spawns fire-and-forget work. Errors and panics of every task end up
// in the same logger instead of escaping to the caller.
type Tasks struct {
	wg  sync.WaitGroup
	log zerolog.Logger
}

// NewTasks creates a task spawner logging to log
func NewTasks(log zerolog.Logger) *Tasks {
	return &Tasks{log: log.With().Str("component", "tasks").Logger()}
}

// Go runs fn in its own goroutine
func (t *Tasks) Go(name string, fn func() error) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.log.Error().Str("task", name).Err(fmt.Errorf("panic: %v", r)).Msg("Task panicked")
			}
		}()
		if err := fn(); err != nil {
			t.log.Error().Str("task", name).Err(err).Msg("Task failed")
		}
	}()
}

// Wait blocks until every spawned task has returned
func (t *Tasks) Wait() {
	t.wg.Wait()
}
