package stt

import (
	"context"
	"errors"
)

var (
	// ErrConnect wraps failures to open the transcription connection.
	ErrConnect = errors.New("transcription connect failed")

	// ErrClosed is returned when sending on a stream after Close.
	ErrClosed = errors.New("transcription stream closed")
)

// TranscriptEvent is one transcription result for the audio sent so far
type TranscriptEvent struct {
	// Text is the transcribed text; it may be empty
	Text string

	// IsFinal marks a complete, non-revisable utterance segment.
	// Interim events for the same segment precede it.
	IsFinal bool

	Confidence float64

	// Start and Duration of the segment in seconds
	Start    float64
	Duration float64
}

// Transcriber opens one streaming transcription session per call
type Transcriber interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open duplex transcription session
type Stream interface {
	// SendAudio forwards a chunk of raw call audio. It may block while the
	// connection's send buffer is full.
	SendAudio(audio []byte) error

	// Events delivers transcript events in arrival order. The channel is
	// closed once when the stream ends, whether by Close or by a receive
	// error, and is never reopened.
	Events() <-chan TranscriptEvent

	// Close tears down the connection. It is safe to call more than once.
	Close() error
}
