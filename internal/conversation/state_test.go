package conversation

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type scriptedGenerator struct {
	replies []string
	errs    []error
	calls   [][]Turn
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, systemPrompt string, history []Turn) (string, error) {
	i := len(g.calls)
	g.calls = append(g.calls, history)
	g.prompts = append(g.prompts, systemPrompt)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return "ok", nil
}

func TestNew_DefaultPrompt(t *testing.T) {
	s := New(&scriptedGenerator{}, "  ")
	if s.SystemPrompt() != DefaultSystemPrompt {
		t.Error("Expected blank prompt to select DefaultSystemPrompt")
	}
	if len(s.History()) != 0 {
		t.Errorf("Expected empty history, got %d turns", len(s.History()))
	}
}

func TestRespond_AppendsTurns(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"That sounds stressful.", " I hear you. "}}
	s := New(gen, "be kind")

	reply, err := s.Respond(context.Background(), "I feel anxious")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if reply != "That sounds stressful." {
		t.Errorf("Unexpected reply %q", reply)
	}

	reply, err = s.Respond(context.Background(), "Work is hard")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if reply != "I hear you." {
		t.Errorf("Expected trimmed reply, got %q", reply)
	}

	want := []Turn{
		{RoleUser, "I feel anxious"},
		{RoleAssistant, "That sounds stressful."},
		{RoleUser, "Work is hard"},
		{RoleAssistant, "I hear you."},
	}
	got := s.History()
	if len(got) != len(want) {
		t.Fatalf("Expected %d turns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Turn %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	if len(gen.calls[1]) != 3 || gen.calls[1][2].Text != "Work is hard" {
		t.Errorf("Second call should see prior turns plus the new utterance, got %+v", gen.calls[1])
	}
	if gen.prompts[0] != "be kind" {
		t.Errorf("Expected system prompt to be passed through, got %q", gen.prompts[0])
	}
}

func TestRespond_FailureLeavesHistory(t *testing.T) {
	gen := &scriptedGenerator{
		replies: []string{"first", "", "", "third"},
		errs:    []error{nil, errors.New("quota exceeded")},
	}
	s := New(gen, "")

	if _, err := s.Respond(context.Background(), "one"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if _, err := s.Respond(context.Background(), "two"); err == nil {
		t.Error("Expected generation error")
	}
	if _, err := s.Respond(context.Background(), "blank"); !errors.Is(err, ErrEmptyReply) {
		t.Errorf("Expected ErrEmptyReply, got %v", err)
	}
	if len(s.History()) != 2 {
		t.Fatalf("Failed turns must not extend history, got %d turns", len(s.History()))
	}

	if _, err := s.Respond(context.Background(), "three"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if n := len(gen.calls[3]); n != 3 {
		t.Errorf("Expected the next turn to build on the last good state (3 turns), got %d", n)
	}
	if len(s.History()) != 4 {
		t.Errorf("Expected 4 turns, got %d", len(s.History()))
	}
}

func TestHistory_IsCopy(t *testing.T) {
	s := New(&scriptedGenerator{}, "")
	if _, err := s.Respond(context.Background(), "hello"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	h := s.History()
	h[0].Text = "changed"
	if s.History()[0].Text != "hello" {
		t.Error("History must not expose internal storage")
	}
}

func TestToContents(t *testing.T) {
	contents := toContents([]Turn{
		{RoleUser, "a"},
		{RoleAssistant, "b"},
		{RoleUser, "c"},
		{RoleUser, "d"},
	})
	if len(contents) != 3 {
		t.Fatalf("Expected 3 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" || contents[2].Role != "user" {
		t.Errorf("Unexpected roles %s %s %s", contents[0].Role, contents[1].Role, contents[2].Role)
	}
	if len(contents[2].Parts) != 2 {
		t.Errorf("Expected consecutive user turns to merge, got %d parts", len(contents[2].Parts))
	}
}

func TestCandidateText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "Take a "}, {Text: "breath."}}},
		}},
	}
	text, err := candidateText(resp)
	if err != nil {
		t.Fatalf("candidateText failed: %v", err)
	}
	if text != "Take a breath." {
		t.Errorf("Unexpected text %q", text)
	}

	if _, err := candidateText(&genai.GenerateContentResponse{}); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("Expected ErrNoCandidates, got %v", err)
	}
	if _, err := candidateText(nil); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("Expected ErrNoCandidates for nil response, got %v", err)
	}
}

func TestGeminiGenerator_EmptyHistory(t *testing.T) {
	// an empty history fails before the client is used
	g := &GeminiGenerator{Model: "gemini-1.5-flash"}
	if _, err := g.Generate(context.Background(), DefaultSystemPrompt, nil); !errors.Is(err, ErrNoContents) {
		t.Errorf("Expected ErrNoContents, got %v", err)
	}
}
