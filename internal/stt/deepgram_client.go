package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/config"
)

// Write deadlines for frames sent to Deepgram
const (
	writeTimeout      = 5 * time.Second
	closeWriteTimeout = time.Second
)

// Deepgram control messages
var (
	keepAliveMessage   = []byte(`{"type":"KeepAlive"}`)
	closeStreamMessage = []byte(`{"type":"CloseStream"}`)
)

// DeepgramClient opens Deepgram live-listen sessions for telephony audio
// (mu-law, 8kHz, mono).
type DeepgramClient struct {
	endpoint    string
	apiKey      string
	model       string
	language    string
	endpointing int
	smartFormat bool
	punctuate   bool
	keepAlive   time.Duration
	dialer      *websocket.Dialer
}

// NewDeepgramClient creates a new Deepgram streaming client
func NewDeepgramClient(cfg *config.Config) *DeepgramClient {
	return &DeepgramClient{
		endpoint:    cfg.DeepgramURL,
		apiKey:      cfg.DeepgramAPIKey,
		model:       cfg.DeepgramModel,
		language:    cfg.DeepgramLanguage,
		endpointing: cfg.DeepgramEndpointingMs,
		smartFormat: cfg.DeepgramSmartFormat,
		punctuate:   cfg.DeepgramPunctuate,
		keepAlive:   cfg.DeepgramKeepAlive(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// ListenURL returns the live-listen URL with the session's query parameters
func (d *DeepgramClient) ListenURL() (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid deepgram url: %w", err)
	}

	params := u.Query()
	params.Set("encoding", "mulaw")
	params.Set("sample_rate", "8000")
	params.Set("channels", "1")
	params.Set("model", d.model)
	if d.language != "" {
		params.Set("language", d.language)
	}
	params.Set("smart_format", strconv.FormatBool(d.smartFormat))
	params.Set("punctuate", strconv.FormatBool(d.punctuate))
	params.Set("endpointing", strconv.Itoa(d.endpointing))
	params.Set("interim_results", "true")
	u.RawQuery = params.Encode()

	return u.String(), nil
}

// Open dials Deepgram and starts the receive loop. Failures wrap ErrConnect.
func (d *DeepgramClient) Open(ctx context.Context) (Stream, error) {
	listenURL, err := d.ListenURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.apiKey)

	conn, resp, err := d.dialer.DialContext(ctx, listenURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %w (status %d)", ErrConnect, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	s := &DeepgramStream{
		conn:   conn,
		events: make(chan TranscriptEvent, 16),
		done:   make(chan struct{}),
		ended:  make(chan struct{}),
		logger: zerolog.Ctx(ctx).With().Str("component", "deepgram").Logger(),
	}
	go s.receive()
	if d.keepAlive > 0 {
		go s.keepAliveLoop(d.keepAlive)
	}

	s.logger.Info().
		Str("model", d.model).
		Int("endpointing_ms", d.endpointing).
		Msg("Deepgram streaming connection opened")
	return s, nil
}

// DeepgramStream is one open Deepgram live-listen session
type DeepgramStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla allows one concurrent writer
	events  chan TranscriptEvent
	done    chan struct{} // closed by Close
	ended   chan struct{} // closed when the receive loop exits
	once    sync.Once
	logger  zerolog.Logger
}

// SendAudio writes one binary audio frame. It returns ErrClosed once the
// stream is closed or Deepgram has stopped sending results.
func (s *DeepgramStream) SendAudio(audio []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	case <-s.ended:
		return ErrClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writeFrame(websocket.BinaryMessage, audio, writeTimeout); err != nil {
		return fmt.Errorf("failed to send audio to Deepgram: %w", err)
	}
	return nil
}

// Events returns the transcript channel
func (s *DeepgramStream) Events() <-chan TranscriptEvent {
	return s.events
}

// Close asks Deepgram to flush and closes the socket
func (s *DeepgramStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		_ = s.writeFrame(websocket.TextMessage, closeStreamMessage, closeWriteTimeout)
		s.writeMu.Unlock()

		err = s.conn.Close()
		s.logger.Info().Msg("Deepgram streaming connection closed")
	})
	return err
}

// writeFrame sends one frame with a deadline so a stalled peer cannot hold
// writeMu past Close. Callers hold writeMu.
func (s *DeepgramStream) writeFrame(messageType int, data []byte, timeout time.Duration) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *DeepgramStream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// receive decodes Deepgram messages until the socket fails or is closed
func (s *DeepgramStream) receive() {
	defer close(s.events)
	defer close(s.ended)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			switch {
			case s.closed(),
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway),
				errors.Is(err, net.ErrClosed):
				s.logger.Debug().Msg("Deepgram receive loop finished")
			default:
				s.logger.Error().Err(err).Msg("Deepgram receive error, no more transcripts for this call")
			}
			return
		}

		var msg msginterfaces.MessageResponse
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to parse Deepgram message")
			continue
		}

		event, ok := toTranscriptEvent(&msg)
		if !ok {
			s.logger.Debug().Str("type", msg.Type).Msg("Deepgram message ignored")
			continue
		}

		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

func toTranscriptEvent(msg *msginterfaces.MessageResponse) (TranscriptEvent, bool) {
	if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
		return TranscriptEvent{}, false
	}

	alt := msg.Channel.Alternatives[0]
	event := TranscriptEvent{
		Text:       alt.Transcript,
		IsFinal:    msg.IsFinal,
		Confidence: alt.Confidence,
		Start:      msg.Start,
		Duration:   msg.Duration,
	}
	if len(alt.Words) > 0 && event.Duration == 0 {
		event.Start = alt.Words[0].Start
		event.Duration = alt.Words[len(alt.Words)-1].End - event.Start
	}
	return event, true
}

// keepAliveLoop stops Deepgram from timing out while the caller is silent
func (s *DeepgramStream) keepAliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			if s.closed() {
				// CloseStream must be the last frame Deepgram sees
				s.writeMu.Unlock()
				return
			}
			err := s.writeFrame(websocket.TextMessage, keepAliveMessage, writeTimeout)
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Warn().Err(err).Msg("Deepgram keepalive failed")
				return
			}
		}
	}
}
