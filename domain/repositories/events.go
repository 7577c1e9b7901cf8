package repositories

import (
	"context"
	"time"
)

// Conversation lifecycle event types
const (
	EventConversationStarted = "conversation.started"
	EventMessageSaved        = "message.saved"
	EventConversationEnded   = "conversation.ended"
	EventAgentCloned         = "agent.cloned"
)

// ConversationEvent is published for dashboard monitoring
type ConversationEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	AgentID        string    `json:"agent_id,omitempty"`
	Role           string    `json:"role,omitempty"`
	Text           string    `json:"text,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventPublisher publishes conversation lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, event ConversationEvent) error
}
