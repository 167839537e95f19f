package telephony

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lexiqai/voice-agent/internal/config"
	"github.com/lexiqai/voice-agent/internal/conversation"
	"github.com/lexiqai/voice-agent/internal/observability"
	"github.com/lexiqai/voice-agent/internal/stt"
	"github.com/lexiqai/voice-agent/internal/tts"
	"github.com/rs/zerolog"
)

const closeWriteTimeout = time.Second

var errSessionNotActive = errors.New("session is not active")

var upgrader = websocket.Upgrader{
	// Twilio does not send an Origin header
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// State is the lifecycle of a call session
type State int32

const (
	StateAwaitingStart State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting_start"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Dependencies are the external services a call talks to. They are shared
// across calls and must be safe for concurrent use.
type Dependencies struct {
	Transcriber stt.Transcriber
	Generator   conversation.Generator
	Synthesizer tts.Synthesizer
}

// CallSession holds the state of a single phone call
type CallSession struct {
	conn *websocket.Conn

	transcriber  stt.Transcriber
	synthesizer  tts.Synthesizer
	conversation *conversation.State

	// guards state and the stream identifiers
	mu        sync.RWMutex
	state     State
	streamSid string
	callSid   string

	// gorilla allows a single concurrent writer
	writeMu sync.Mutex

	// set by the telephony loop once the transcription stream refuses audio
	transcriptionClosed bool

	config *config.Config

	correlationID string
	metrics       *observability.CallMetrics
	logger        zerolog.Logger
}

// NewCallSession creates a session for an accepted telephony connection
func NewCallSession(conn *websocket.Conn, cfg *config.Config, deps Dependencies) *CallSession {
	correlationID := observability.NewCorrelationID()

	return &CallSession{
		conn:          conn,
		transcriber:   deps.Transcriber,
		synthesizer:   deps.Synthesizer,
		conversation:  conversation.New(deps.Generator, cfg.SystemPrompt),
		state:         StateAwaitingStart,
		config:        cfg,
		correlationID: correlationID,
		metrics:       observability.NewCallMetrics(),
		logger:        observability.WithCorrelationID(correlationID),
	}
}

// HandleTwilioWS is the main entry point for Twilio WebSocket connections
func HandleTwilioWS(cfg *config.Config, deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied to the client
			observability.GetLogger().Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		session := NewCallSession(conn, cfg, deps)
		session.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("New Twilio WebSocket connection established")

		if err := session.Run(r.Context()); err != nil {
			session.logger.Error().Err(err).Msg("Call session error")
		}
	}
}

// Run drives the session until the caller hangs up, the socket drops, or the
// transcription service cannot be reached. It always leaves the session ended
// with the transcript goroutine stopped and the transcription stream closed.
func (s *CallSession) Run(ctx context.Context) error {
	defer s.metrics.RecordCallEnd()

	ctx, cancel := context.WithCancel(s.logger.WithContext(ctx))
	defer cancel()

	stream, err := s.transcriber.Open(ctx)
	if err != nil {
		s.setState(StateEnded)
		s.metrics.RecordError("connect_error", "stt")
		s.closeTelephony(websocket.CloseInternalServerErr, "transcription unavailable")
		return err
	}
	s.logger.Info().Msg("Transcription stream opened")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.processTranscriptions(ctx, stream)
	}()

	err = s.processIncomingMessages(ctx, stream)

	s.setState(StateEnded)
	cancel()
	if cerr := stream.Close(); cerr != nil {
		s.logger.Warn().Err(cerr).Msg("Error closing transcription stream")
	}
	wg.Wait()

	s.closeTelephony(websocket.CloseNormalClosure, "call ended")
	s.logger.Info().Str("stream_sid", s.StreamSid()).Msg("Call session ended")
	return err
}

// processIncomingMessages handles all incoming WebSocket messages from Twilio.
// It returns nil when the call ends normally.
func (s *CallSession) processIncomingMessages(ctx context.Context, stream stt.Stream) error {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return err
			}
			s.logger.Info().Err(err).Msg("Telephony connection closed")
			return nil
		}

		event, err := DecodeInbound(message)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Ignoring undecodable Twilio message")
			s.metrics.RecordError("decode_error", "telephony")
			continue
		}

		switch ev := event.(type) {
		case *ConnectedEvent:
			s.logger.Debug().Str("protocol", ev.Protocol).Msg("Twilio stream connected")

		case *StartEvent:
			s.handleStart(ctx, ev)

		case *MediaEvent:
			s.handleMedia(stream, ev)

		case *StopEvent:
			s.logger.Info().Str("call_sid", ev.CallSid).Msg("Call stopped")
			return nil

		case *MarkEvent:
			s.logger.Debug().Str("mark", ev.Name).Msg("Twilio mark")

		default:
			s.logger.Debug().Str("event", event.EventName()).Msg("Unknown Twilio event")
		}
	}
}

// handleStart binds the stream identity on the first start and greets the
// caller before the next frame is read. Later starts change nothing.
func (s *CallSession) handleStart(ctx context.Context, ev *StartEvent) {
	s.mu.Lock()
	if s.state != StateAwaitingStart {
		current := s.streamSid
		s.mu.Unlock()
		s.logger.Warn().
			Str("stream_sid", current).
			Str("ignored_stream_sid", ev.StreamSid).
			Msg("Duplicate start event ignored")
		return
	}
	s.streamSid = ev.StreamSid
	s.callSid = ev.CallSid
	s.state = StateActive
	s.mu.Unlock()

	s.logger.Info().
		Str("stream_sid", ev.StreamSid).
		Str("call_sid", ev.CallSid).
		Interface("custom_parameters", ev.CustomParameters).
		Msg("Call started")

	if outcome := s.speak(ctx, s.config.Greeting); outcome != observability.TurnReplied {
		s.logger.Warn().Str("outcome", outcome).Msg("Greeting not delivered")
	}
}

func (s *CallSession) handleMedia(stream stt.Stream, ev *MediaEvent) {
	if s.State() != StateActive {
		s.logger.Debug().Int("bytes", len(ev.Audio)).Msg("Dropping media received before start")
		return
	}

	if s.transcriptionClosed {
		return
	}

	s.metrics.RecordAudioBytes("in", len(ev.Audio))
	err := stream.SendAudio(ev.Audio)
	switch {
	case err == nil:
	case errors.Is(err, stt.ErrClosed):
		s.transcriptionClosed = true
		s.logger.Warn().Msg("Transcription stream closed, dropping caller audio for the rest of the call")
		s.metrics.RecordError("stream_closed", "stt")
	default:
		s.logger.Warn().Err(err).Msg("Error sending audio to transcription")
		s.metrics.RecordError("send_error", "stt")
	}
}

// processTranscriptions runs one reply cycle per final transcript, in arrival
// order, until the stream ends or the session is cancelled.
func (s *CallSession) processTranscriptions(ctx context.Context, stream stt.Stream) {
	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.logger.Info().Msg("Transcription stream ended, no further replies this call")
				return
			}
			s.handleTranscript(ctx, ev)
		}
	}
}

func (s *CallSession) handleTranscript(ctx context.Context, ev stt.TranscriptEvent) {
	text := strings.TrimSpace(ev.Text)
	switch {
	case !ev.IsFinal:
		s.metrics.RecordTranscript("interim")
		return
	case text == "":
		s.metrics.RecordTranscript("empty")
		return
	}
	s.metrics.RecordTranscript("final")
	s.logger.Info().Str("text", text).Float64("confidence", ev.Confidence).Msg("Caller said")

	start := time.Now()
	reply, err := s.conversation.Respond(ctx, text)
	s.metrics.RecordGeneration(start, err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Msg("Reply generation failed, skipping turn")
		s.metrics.RecordError("generation_error", "conversation")
		s.metrics.RecordTurn(observability.TurnGenerationFailed)
		return
	}
	s.logger.Info().Str("text", reply).Msg("Agent reply")

	s.metrics.RecordTurn(s.speak(ctx, reply))
}

// speak synthesizes text and plays it to the caller. It returns the turn
// outcome for metrics.
func (s *CallSession) speak(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return observability.TurnUndeliverable
	}

	start := time.Now()
	payload, err := s.synthesizer.Synthesize(ctx, text, s.config.MurfVoiceID)
	s.metrics.RecordSynthesis(start, err == nil)
	if err != nil {
		event := s.logger.Error().Err(err)
		var statusErr *tts.StatusError
		if errors.As(err, &statusErr) {
			event = event.Int("status", statusErr.StatusCode)
		}
		event.Msg("Speech synthesis failed")
		s.metrics.RecordError("synthesis_error", "tts")
		return observability.TurnSynthesisFailed
	}

	streamSid := s.StreamSid()
	if streamSid == "" {
		s.logger.Warn().Msg("No stream sid yet, dropping synthesized audio")
		return observability.TurnUndeliverable
	}

	if err := s.sendMedia(streamSid, payload.Encoded); err != nil {
		if !errors.Is(err, errSessionNotActive) {
			s.logger.Error().Err(err).Msg("Error sending audio to Twilio")
			s.metrics.RecordError("send_error", "telephony")
		}
		return observability.TurnUndeliverable
	}

	s.logger.Debug().Float64("seconds", payload.Seconds).Msg("Sent audio to Twilio")
	s.metrics.RecordAudioBytes("out", base64.StdEncoding.DecodedLen(len(payload.Encoded)))
	return observability.TurnReplied
}

// sendMedia writes one outbound media frame. It is the only writer of data
// frames on the telephony connection.
func (s *CallSession) sendMedia(streamSid, payload string) error {
	data, err := EncodeMedia(streamSid, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.State() != StateActive {
		return errSessionNotActive
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *CallSession) closeTelephony(code int, reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout)); err != nil {
		s.logger.Debug().Err(err).Msg("Could not send close frame")
	}
}

func (s *CallSession) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// State returns the current lifecycle state
func (s *CallSession) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// StreamSid returns the Twilio stream SID, empty until the call starts
func (s *CallSession) StreamSid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamSid
}

// CallSid returns the Twilio call SID
func (s *CallSession) CallSid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.callSid
}

// CorrelationID identifies this call in logs
func (s *CallSession) CorrelationID() string {
	return s.correlationID
}

// History returns the conversation so far
func (s *CallSession) History() []conversation.Turn {
	return s.conversation.History()
}
