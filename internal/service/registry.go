package service

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ravenabot/ravena/internal/biz/domain"
)

// Registry holds the fixed commands shared by every session
type Registry struct {
	mu       sync.RWMutex
	commands []*domain.Command
}

// NewRegistry creates a registry with the given commands
func NewRegistry(commands ...*domain.Command) (*Registry, error) {
	r := &Registry{}
	for _, c := range commands {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a command; names and aliases must be unique
func (r *Registry) Register(c *domain.Command) error {
	if c == nil || c.Name == "" || c.Handler == nil {
		return fmt.Errorf("invalid command")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range append([]string{c.Name}, c.Aliases...) {
		for _, existing := range r.commands {
			if existing.Matches(name) {
				return fmt.Errorf("command %q already registered", name)
			}
		}
	}
	r.commands = append(r.commands, c)
	return nil
}

// Lookup finds the command invoked by name, nil on a miss
func (r *Registry) Lookup(name string) *domain.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.commands {
		if c.Matches(name) {
			return c
		}
	}
	return nil
}

// LookupTrigger finds the command bound to a reaction emoji
func (r *Registry) LookupTrigger(emoji string) *domain.Command {
	if emoji == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.commands {
		if c.Reactions != nil && c.Reactions.Trigger == emoji {
			return c
		}
	}
	return nil
}

// List returns the visible commands ordered by category and name
func (r *Registry) List() []*domain.Command {
	r.mu.RLock()
	out := make([]*domain.Command, 0, len(r.commands))
	for _, c := range r.commands {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}
