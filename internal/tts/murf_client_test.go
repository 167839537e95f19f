package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/lexiqai/voice-agent/internal/config"
)

func newTestClient(url string) *MurfClient {
	return NewMurfClient(&config.Config{
		MurfAPIKey:         "murf-key",
		MurfAPIURL:         url,
		MurfTimeoutSeconds: 5,
	})
}

func TestMurfClient_Synthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("api-key"); got != "murf-key" {
			t.Errorf("Expected api-key header 'murf-key', got %q", got)
		}

		var req SynthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Invalid request body: %v", err)
		}
		if req.VoiceID != "en-US-terrell" || req.Text != "Hello there" {
			t.Errorf("Unexpected request %+v", req)
		}
		if req.Format != "ULAW" || req.SampleRate != 8000 || !req.EncodeAsBase64 {
			t.Errorf("Output must be base64 ULAW at 8kHz, got %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"encodedAudio":"//9/fw==","audioLengthInSeconds":0.5}`))
	}))
	defer server.Close()

	payload, err := newTestClient(server.URL).Synthesize(context.Background(), "Hello there", "en-US-terrell")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if payload.Encoded != "//9/fw==" {
		t.Errorf("Unexpected payload %q", payload.Encoded)
	}
	if payload.Format != OutputFormat || payload.SampleRate != OutputSampleRate {
		t.Errorf("Unexpected format %+v", payload)
	}
}

func TestMurfClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Synthesize(context.Background(), "Hello", "en-US-terrell")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected *StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", statusErr.StatusCode)
	}
	if statusErr.Body != "internal error" {
		t.Errorf("Expected body 'internal error', got %q", statusErr.Body)
	}
}

func TestMurfClient_EmptyText(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Synthesize(context.Background(), " \n\t", "en-US-terrell")
	if !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("Blank text must not reach the API")
	}
}

func TestMurfClient_EmptyAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"encodedAudio":""}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Synthesize(context.Background(), "Hello", "en-US-terrell")
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("Expected ErrEmptyAudio, got %v", err)
	}
}
