package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// Status is the delivery state of a message. The zero value means the
// message carries no status (assistant replies, legacy snapshots).
type Status int

const (
	StatusNone Status = iota
	StatusSending
	StatusSent
	StatusError
)

var statusNames = map[Status]string{
	StatusSending: "sending",
	StatusSent:    "sent",
	StatusError:   "error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return ""
}

// CanTransition reports whether a message in state s may move to next.
// Only sending -> sent and sending -> error are legal.
func (s Status) CanTransition(next Status) bool {
	return s == StatusSending && (next == StatusSent || next == StatusError)
}

// ParseStatus maps the wire name back to a Status.
func ParseStatus(raw string) (Status, error) {
	if raw == "" {
		return StatusNone, nil
	}
	for st, name := range statusNames {
		if name == raw {
			return st, nil
		}
	}
	return StatusNone, fmt.Errorf("unknown message status %q", raw)
}

// ChatMessage is one entry of a chat session.
type ChatMessage struct {
	ID        string
	Text      string
	Sender    Sender
	Timestamp time.Time
	Status    Status
}

type chatMessageJSON struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    Sender `json:"sender"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status,omitempty"`
}

// MarshalJSON writes the timestamp as RFC3339 text, the same shape the
// browser stored with JSON.stringify.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(chatMessageJSON{
		ID:        m.ID,
		Text:      m.Text,
		Sender:    m.Sender,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		Status:    m.Status.String(),
	})
}

// UnmarshalJSON re-parses the textual timestamp back into a time.Time.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw chatMessageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == "" {
		return fmt.Errorf("chat message missing id")
	}
	if !raw.Sender.Valid() {
		return fmt.Errorf("chat message %s: invalid sender %q", raw.ID, raw.Sender)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("chat message %s: parse timestamp: %w", raw.ID, err)
	}
	status, err := ParseStatus(raw.Status)
	if err != nil {
		return err
	}
	*m = ChatMessage{
		ID:        raw.ID,
		Text:      raw.Text,
		Sender:    raw.Sender,
		Timestamp: ts,
		Status:    status,
	}
	return nil
}
