package tts

import (
	"context"
	"errors"
	"fmt"
)

// Output contract with Twilio Media Streams: mu-law, 8kHz, base64.
const (
	OutputFormat     = "ULAW"
	OutputSampleRate = 8000
)

var (
	// ErrEmptyText is returned for blank input. Callers filter blank text
	// before synthesizing, so this is a guard rather than a normal outcome.
	ErrEmptyText = errors.New("synthesis text is empty")

	// ErrEmptyAudio is returned when a successful response carries no audio.
	ErrEmptyAudio = errors.New("synthesis returned no audio")
)

// StatusError is a non-2xx response from the synthesis service
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("synthesis API returned status %d: %s", e.StatusCode, e.Body)
}

// SynthesisRequest is the body sent to the synthesis service
type SynthesisRequest struct {
	VoiceID        string `json:"voiceId"`
	Text           string `json:"text"`
	Format         string `json:"format"`
	SampleRate     int    `json:"sampleRate"`
	EncodeAsBase64 bool   `json:"encodeAsBase64"`
}

// AudioPayload is synthesized speech ready for the telephony channel
type AudioPayload struct {
	// Encoded is base64 mu-law audio, usable as a Twilio media payload as is
	Encoded    string
	Format     string
	SampleRate int
	Seconds    float64
}

// Synthesizer converts text to telephony audio. Implementations hold no
// state across calls.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*AudioPayload, error)
}
