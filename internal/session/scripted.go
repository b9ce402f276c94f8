package session

import (
	"context"
	"sync"
)

// Scripted replays a fixed sequence of decisions. Once exhausted it declines.
type Scripted struct {
	mu        sync.Mutex
	decisions []Decision
	confirm   bool
	prompts   []Prompt
}

// NewScripted creates a Scripted decider; confirm answers every yes/no question.
func NewScripted(confirm bool, decisions ...Decision) *Scripted {
	return &Scripted{decisions: decisions, confirm: confirm}
}

// Decide returns the next scripted decision
func (s *Scripted) Decide(_ context.Context, p Prompt) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, p)
	if len(s.decisions) == 0 {
		return Decline, nil
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, nil
}

// Confirm returns the configured answer
func (s *Scripted) Confirm(context.Context, string) (bool, error) {
	return s.confirm, nil
}

// Prompts returns every prompt shown so far
func (s *Scripted) Prompts() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.prompts...)
}
