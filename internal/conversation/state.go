package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// State is the dialogue of one call: a fixed system prompt and the
// append-only history of successful turns.
type State struct {
	generator    Generator
	systemPrompt string

	mu      sync.Mutex
	history []Turn
}

// New creates an empty conversation. An empty systemPrompt selects
// DefaultSystemPrompt.
func New(generator Generator, systemPrompt string) *State {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &State{
		generator:    generator,
		systemPrompt: systemPrompt,
	}
}

// Respond generates the reply to utterance. The user and assistant turns are
// appended together, and only when generation succeeds, so a failed turn
// leaves the history as it was.
//
// Calls are serialized; each one sees the history left by the previous one.
func (s *State) Respond(ctx context.Context, utterance string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]Turn, len(s.history), len(s.history)+1)
	copy(pending, s.history)
	pending = append(pending, Turn{Role: RoleUser, Text: utterance})

	reply, err := s.generator.Generate(ctx, s.systemPrompt, pending)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyReply
	}

	s.history = append(pending, Turn{Role: RoleAssistant, Text: reply})
	return reply, nil
}

// History returns a copy of the turns so far, oldest first
func (s *State) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// SystemPrompt returns the persona seeding this conversation
func (s *State) SystemPrompt() string {
	return s.systemPrompt
}
