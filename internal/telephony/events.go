package telephony

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	errMissingStreamSid = errors.New("start event missing streamSid")
	errMissingMedia     = errors.New("media event missing payload")
)

// InboundEvent is one decoded Twilio Media Streams frame. The concrete type
// is one of *ConnectedEvent, *StartEvent, *MediaEvent, *StopEvent,
// *MarkEvent or *UnknownEvent.
type InboundEvent interface {
	EventName() string
}

// ConnectedEvent is the first frame Twilio sends on a new stream
type ConnectedEvent struct {
	Protocol string
	Version  string
}

// StartEvent carries the stream identity and call metadata
type StartEvent struct {
	StreamSid        string
	CallSid          string
	AccountSid       string
	Tracks           []string
	CustomParameters map[string]string
}

// MediaEvent carries one chunk of caller audio (mu-law, 8kHz), already
// base64-decoded.
type MediaEvent struct {
	Track     string
	Timestamp string
	Audio     []byte
}

// StopEvent marks the end of the stream
type StopEvent struct {
	CallSid string
}

// MarkEvent acknowledges playback of a previously sent mark
type MarkEvent struct {
	Name string
}

// UnknownEvent is any frame with an unrecognized event name
type UnknownEvent struct {
	Name string
}

func (*ConnectedEvent) EventName() string { return "connected" }
func (*StartEvent) EventName() string     { return "start" }
func (*MediaEvent) EventName() string     { return "media" }
func (*StopEvent) EventName() string      { return "stop" }
func (*MarkEvent) EventName() string      { return "mark" }
func (e *UnknownEvent) EventName() string { return e.Name }

// Twilio Media Streams wire format
type twilioMessage struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid,omitempty"`
	Protocol  string       `json:"protocol,omitempty"`
	Version   string       `json:"version,omitempty"`
	Start     *twilioStart `json:"start,omitempty"`
	Media     *twilioMedia `json:"media,omitempty"`
	Stop      *twilioStop  `json:"stop,omitempty"`
	Mark      *twilioMark  `json:"mark,omitempty"`
}

type twilioStart struct {
	StreamSid        string            `json:"streamSid"`
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type twilioMedia struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type twilioStop struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

type twilioMark struct {
	Name string `json:"name"`
}

// DecodeInbound parses one text frame from Twilio
func DecodeInbound(data []byte) (InboundEvent, error) {
	var msg twilioMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Twilio message: %w", err)
	}

	switch msg.Event {
	case "connected":
		return &ConnectedEvent{Protocol: msg.Protocol, Version: msg.Version}, nil

	case "start":
		ev := &StartEvent{StreamSid: msg.StreamSid}
		if msg.Start != nil {
			if msg.Start.StreamSid != "" {
				ev.StreamSid = msg.Start.StreamSid
			}
			ev.CallSid = msg.Start.CallSid
			ev.AccountSid = msg.Start.AccountSid
			ev.Tracks = msg.Start.Tracks
			ev.CustomParameters = msg.Start.CustomParameters
		}
		if ev.StreamSid == "" {
			return nil, errMissingStreamSid
		}
		return ev, nil

	case "media":
		if msg.Media == nil || msg.Media.Payload == "" {
			return nil, errMissingMedia
		}
		audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
		}
		return &MediaEvent{Track: msg.Media.Track, Timestamp: msg.Media.Timestamp, Audio: audio}, nil

	case "stop":
		ev := &StopEvent{}
		if msg.Stop != nil {
			ev.CallSid = msg.Stop.CallSid
		}
		return ev, nil

	case "mark":
		ev := &MarkEvent{}
		if msg.Mark != nil {
			ev.Name = msg.Mark.Name
		}
		return ev, nil

	default:
		return &UnknownEvent{Name: msg.Event}, nil
	}
}

// EncodeMedia builds an outbound media frame. payload is base64 mu-law audio.
func EncodeMedia(streamSid, payload string) ([]byte, error) {
	data, err := json.Marshal(twilioMessage{
		Event:     "media",
		StreamSid: streamSid,
		Media:     &twilioMedia{Payload: payload},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Twilio media message: %w", err)
	}
	return data, nil
}
