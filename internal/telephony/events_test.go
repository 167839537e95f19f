package telephony

import (
	"encoding/json"
	"testing"
)

func TestDecodeInbound_Start(t *testing.T) {
	ev, err := DecodeInbound([]byte(`{"event":"start","sequenceNumber":"1","start":{"streamSid":"MZ123","callSid":"CA456","accountSid":"AC789","tracks":["inbound"],"customParameters":{"caller":"+15550100"}},"streamSid":"MZ123"}`))
	if err != nil {
		t.Fatalf("DecodeInbound failed: %v", err)
	}
	start, ok := ev.(*StartEvent)
	if !ok {
		t.Fatalf("Expected *StartEvent, got %T", ev)
	}
	if start.StreamSid != "MZ123" || start.CallSid != "CA456" || start.AccountSid != "AC789" {
		t.Errorf("Unexpected start event %+v", start)
	}
	if start.CustomParameters["caller"] != "+15550100" {
		t.Errorf("Expected custom parameter caller, got %v", start.CustomParameters)
	}
}

func TestDecodeInbound_StartWithoutSid(t *testing.T) {
	if _, err := DecodeInbound([]byte(`{"event":"start","start":{}}`)); err == nil {
		t.Error("Expected error for start without streamSid")
	}
}

func TestDecodeInbound_Media(t *testing.T) {
	ev, err := DecodeInbound([]byte(`{"event":"media","media":{"track":"inbound","timestamp":"5","payload":"//9/fw=="}}`))
	if err != nil {
		t.Fatalf("DecodeInbound failed: %v", err)
	}
	media, ok := ev.(*MediaEvent)
	if !ok {
		t.Fatalf("Expected *MediaEvent, got %T", ev)
	}
	want := []byte{0xff, 0xff, 0x7f, 0x7f}
	if string(media.Audio) != string(want) {
		t.Errorf("Expected audio %v, got %v", want, media.Audio)
	}
	if media.Track != "inbound" {
		t.Errorf("Expected track 'inbound', got %q", media.Track)
	}
}

func TestDecodeInbound_MediaErrors(t *testing.T) {
	for _, frame := range []string{
		`{"event":"media"}`,
		`{"event":"media","media":{"payload":""}}`,
		`{"event":"media","media":{"payload":"not base64!"}}`,
	} {
		if _, err := DecodeInbound([]byte(frame)); err == nil {
			t.Errorf("Expected error for %s", frame)
		}
	}
}

func TestDecodeInbound_Others(t *testing.T) {
	tests := []struct {
		frame string
		name  string
	}{
		{`{"event":"connected","protocol":"Call","version":"1.0.0"}`, "connected"},
		{`{"event":"stop","stop":{"callSid":"CA456"}}`, "stop"},
		{`{"event":"stop"}`, "stop"},
		{`{"event":"mark","mark":{"name":"greeting"}}`, "mark"},
		{`{"event":"dtmf"}`, "dtmf"},
	}
	for _, tt := range tests {
		ev, err := DecodeInbound([]byte(tt.frame))
		if err != nil {
			t.Errorf("DecodeInbound(%s) failed: %v", tt.frame, err)
			continue
		}
		if ev.EventName() != tt.name {
			t.Errorf("Expected event %q, got %q", tt.name, ev.EventName())
		}
	}

	if _, err := DecodeInbound([]byte(`not json`)); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestEncodeMedia(t *testing.T) {
	data, err := EncodeMedia("MZ123", "//9/fw==")
	if err != nil {
		t.Fatalf("EncodeMedia failed: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if out["event"] != "media" || out["streamSid"] != "MZ123" {
		t.Errorf("Unexpected frame %s", data)
	}
	media, _ := out["media"].(map[string]any)
	if media["payload"] != "//9/fw==" {
		t.Errorf("Unexpected payload in %s", data)
	}
	if len(media) != 1 {
		t.Errorf("Outbound media should only carry payload, got %s", data)
	}
}
