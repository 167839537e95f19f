package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/lexiqai/voice-agent/internal/config"
)

var _ Generator = (*GeminiGenerator)(nil)

var (
	// ErrNoContents is returned when there is no history to send
	ErrNoContents = errors.New("gemini: no contents")

	// ErrNoCandidates is returned when Gemini answers without a candidate
	ErrNoCandidates = errors.New("gemini: no candidates")
)

// GeminiGenerator implements Generator using the Gemini API.
type GeminiGenerator struct {
	Client *genai.Client

	// Model should not start with "models/"
	Model string
}

// NewGeminiGenerator creates a Gemini client from the configured API key
func NewGeminiGenerator(ctx context.Context, cfg *config.Config) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GeminiGenerator{Client: client, Model: cfg.GeminiModel}, nil
}

// Generate sends the whole history with the persona as system instruction
// and returns the text of the first candidate.
func (g *GeminiGenerator) Generate(ctx context.Context, systemPrompt string, history []Turn) (string, error) {
	contents := toContents(history)
	if len(contents) == 0 {
		return "", ErrNoContents
	}

	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(systemPrompt)},
		}
	}

	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return candidateText(resp)
}

// toContents maps turns onto Gemini roles, merging consecutive turns of the
// same role into one content.
func toContents(history []Turn) []*genai.Content {
	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for _, turn := range history {
		role := "user"
		if turn.Role == RoleAssistant {
			role = "model"
		}
		part := genai.NewPartFromText(turn.Text)
		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, part)
			continue
		}
		last = &genai.Content{Role: role, Parts: []*genai.Part{part}}
		contents = append(contents, last)
	}
	return contents
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return "", fmt.Errorf("candidate has no content (finish reason %s)", resp.Candidates[0].FinishReason)
	}

	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
