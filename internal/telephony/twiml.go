package telephony

import (
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/lexiqai/voice-agent/internal/config"
	"github.com/lexiqai/voice-agent/internal/observability"
)

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// BuildStreamTwiML returns the call-setup markup that tells Twilio to open a
// bidirectional media stream to streamURL.
func BuildStreamTwiML(streamURL string) ([]byte, error) {
	body, err := xml.Marshal(twimlResponse{
		Connect: twimlConnect{Stream: twimlStream{URL: streamURL}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TwiML: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// HandleVoice answers Twilio's incoming-call webhook
func HandleVoice(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := observability.GetLogger()

		streamURL, err := cfg.StreamURL()
		if err != nil {
			streamURL = requestStreamURL(r, cfg.StreamPath)
			logger.Error().
				Err(err).
				Str("fallback_url", streamURL).
				Msg("Public base URL unusable, falling back to request host")
		}

		logger.Info().
			Str("call_sid", r.FormValue("CallSid")).
			Str("from", r.FormValue("From")).
			Str("stream_url", streamURL).
			Msg("Incoming call")

		body, err := BuildStreamTwiML(streamURL)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to build TwiML")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(body); err != nil {
			logger.Warn().Err(err).Msg("Failed to write TwiML response")
		}
	}
}

// requestStreamURL derives the stream address from the host the webhook was
// delivered to. Twilio only connects over wss unless a proxy says otherwise.
func requestStreamURL(r *http.Request, streamPath string) string {
	scheme := "wss"
	if r.Header.Get("X-Forwarded-Proto") == "http" {
		scheme = "ws"
	}
	return scheme + "://" + r.Host + streamPath
}
