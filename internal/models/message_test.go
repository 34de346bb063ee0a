package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusSending, StatusSent, true},
		{StatusSending, StatusError, true},
		{StatusSent, StatusError, false},
		{StatusError, StatusSent, false},
		{StatusNone, StatusSent, false},
		{StatusSending, StatusSending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%v -> %v: want %v got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestChatMessageTimestampIsText(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 30, 0, 123000000, time.UTC)
	msg := ChatMessage{ID: "1714559400123", Text: "hi", Sender: SenderUser, Timestamp: ts, Status: StatusSending}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if raw["timestamp"] != "2024-05-01T10:30:00.123Z" {
		t.Fatalf("unexpected timestamp text %v", raw["timestamp"])
	}
	if raw["status"] != "sending" {
		t.Fatalf("unexpected status %v", raw["status"])
	}

	var back ChatMessage
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Timestamp.Equal(ts) || back.Status != StatusSending || back.Sender != SenderUser {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestChatMessageOmitsEmptyStatus(t *testing.T) {
	data, err := json.Marshal(ChatMessage{ID: "2", Sender: SenderAssistant, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if _, ok := raw["status"]; ok {
		t.Fatalf("status should be omitted: %s", data)
	}
}

func TestChatMessageRejectsMalformed(t *testing.T) {
	inputs := []string{
		`{"id":"1","text":"x","sender":"bot","timestamp":"2024-01-01T00:00:00Z"}`,
		`{"id":"1","text":"x","sender":"user","timestamp":"yesterday"}`,
		`{"text":"x","sender":"user","timestamp":"2024-01-01T00:00:00Z"}`,
		`{"id":"1","text":"x","sender":"user","timestamp":"2024-01-01T00:00:00Z","status":"lost"}`,
	}
	for _, in := range inputs {
		var m ChatMessage
		if err := json.Unmarshal([]byte(in), &m); err == nil {
			t.Fatalf("expected error for %s", in)
		}
	}
}

func TestThemeToggle(t *testing.T) {
	if ThemeLight.Toggle() != ThemeDark || ThemeDark.Toggle() != ThemeLight {
		t.Fatalf("toggle mismatch")
	}
	if Theme("sepia").Valid() {
		t.Fatalf("sepia should be invalid")
	}
}
