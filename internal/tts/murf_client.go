package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lexiqai/voice-agent/internal/config"
)

const maxErrorBody = 512

// MurfClient implements Synthesizer using Murf's speech generation API
type MurfClient struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

type murfResponse struct {
	EncodedAudio         string  `json:"encodedAudio"`
	AudioLengthInSeconds float64 `json:"audioLengthInSeconds"`
}

// NewMurfClient creates a new Murf TTS client
func NewMurfClient(cfg *config.Config) *MurfClient {
	return &MurfClient{
		apiKey:     cfg.MurfAPIKey,
		apiURL:     cfg.MurfAPIURL,
		httpClient: &http.Client{Timeout: cfg.MurfTimeout()},
	}
}

// Synthesize requests base64 mu-law audio for text in the given voice
func (c *MurfClient) Synthesize(ctx context.Context, text, voiceID string) (*AudioPayload, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	body, err := json.Marshal(SynthesisRequest{
		VoiceID:        voiceID,
		Text:           text,
		Format:         OutputFormat,
		SampleRate:     OutputSampleRate,
		EncodeAsBase64: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out murfResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.EncodedAudio == "" {
		return nil, ErrEmptyAudio
	}

	return &AudioPayload{
		Encoded:    out.EncodedAudio,
		Format:     OutputFormat,
		SampleRate: OutputSampleRate,
		Seconds:    out.AudioLengthInSeconds,
	}, nil
}
