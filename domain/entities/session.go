package entities

import "time"

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAgent     MessageRole = "agent"
	MessageRoleAssistant MessageRole = "assistant"
)

// NormalizeRole maps client-side roles onto the roles stored by the backend.
// Anything that is not an agent role is treated as the user.
func NormalizeRole(role string) MessageRole {
	switch MessageRole(role) {
	case MessageRoleAgent, MessageRoleAssistant:
		return MessageRoleAssistant
	default:
		return MessageRoleUser
	}
}

// Message is one entry of a live conversation transcript
type Message struct {
	Role      MessageRole `json:"role"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
}

// MessageLog is the ordered transcript of a live session.
// It is not safe for concurrent use; the owner serialises access.
type MessageLog struct {
	messages []Message
}

// NewMessageLog creates an empty transcript
func NewMessageLog() *MessageLog {
	return &MessageLog{messages: make([]Message, 0)}
}

// Append adds a message to the end of the log
func (l *MessageLog) Append(role MessageRole, text string, at time.Time) Message {
	message := Message{
		Role:      role,
		Text:      text,
		Timestamp: at,
	}
	l.messages = append(l.messages, message)
	return message
}

// CorrectLastAgent overwrites the text of the most recent agent message.
// It reports false and leaves the log untouched when there is none.
func (l *MessageLog) CorrectLastAgent(text string) bool {
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].Role == MessageRoleAgent {
			l.messages[i].Text = text
			return true
		}
	}
	return false
}

// Len returns the number of messages in the log
func (l *MessageLog) Len() int {
	return len(l.messages)
}

// Snapshot returns a copy of the messages
func (l *MessageLog) Snapshot() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}
