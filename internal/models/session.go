package models

// ChatHistoryKey is the client storage key holding the serialized session.
const ChatHistoryKey = "chatHistory"

// SessionEventType names a change applied to a session.
type SessionEventType string

const (
	EventAppended SessionEventType = "appended"
	EventUpdated  SessionEventType = "updated"
	EventCleared  SessionEventType = "cleared"
)

// SessionEvent is published to subscribers after every session mutation.
type SessionEvent struct {
	Type    SessionEventType `json:"type"`
	Message *ChatMessage     `json:"message,omitempty"`
}
