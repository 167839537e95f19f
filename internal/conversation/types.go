package conversation

import (
	"context"
	"errors"
)

// ErrEmptyReply is returned when the generator produced no usable text.
var ErrEmptyReply = errors.New("generator returned an empty reply")

// Role identifies who spoke a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the dialogue history
type Turn struct {
	Role Role
	Text string
}

// Generator produces the next assistant reply. history ends with the user
// utterance being answered.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []Turn) (string, error)
}

// DefaultSystemPrompt is the persona used when no prompt is configured
const DefaultSystemPrompt = `ROLE: You are a compassionate, empathetic AI Therapist named 'Alex'.
CONTEXT: The user is calling you to talk about their anxiety, stress, or job fears.

YOUR RULES:
1. FIRST, listen and understand. Validate their feelings (e.g., "That sounds incredibly stressful," "I can see why you feel that way").
2. Do NOT give advice immediately. Let them vent.
3. Once they feel understood, offer gentle, grounding perspectives.
4. Keep answers SHORT (1-2 sentences) and conversational.
5. Tone: Warm, calm, safe, and non-judgmental.`
