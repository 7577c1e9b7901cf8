package entities

import (
	"errors"
	"strings"
	"time"
)

// Channel identifies how a conversation is being held
type Channel string

const (
	ChannelWeb   Channel = "web"
	ChannelVoice Channel = "voice"
	ChannelText  Channel = "text"
)

// Agent represents a cloned conversational agent tracked by the backend
type Agent struct {
	ID                string    `json:"id" bson:"_id"`
	ElevenLabsAgentID string    `json:"elevenlabs_agent_id" bson:"elevenlabs_agent_id"`
	BaseAgentID       string    `json:"base_agent_id" bson:"base_agent_id"`
	Name              string    `json:"name" bson:"name"`
	ExtraPrompts      string    `json:"extra_prompts" bson:"extra_prompts"`
	VoiceID           *string   `json:"voice_id" bson:"voice_id,omitempty"`
	CreatedByUserID   *string   `json:"created_by_user_id" bson:"created_by_user_id,omitempty"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}

// Validate validates the agent data
func (a *Agent) Validate() error {
	if a.ElevenLabsAgentID == "" {
		return errors.New("elevenlabs_agent_id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

// UserProfile represents a (possibly anonymous) caller
type UserProfile struct {
	ID          string                 `json:"id" bson:"_id"`
	DisplayName string                 `json:"display_name" bson:"display_name"`
	Metadata    map[string]interface{} `json:"metadata" bson:"metadata"`
	CreatedAt   time.Time              `json:"created_at" bson:"created_at"`
}

// NewAnonymousUserProfile creates the placeholder profile used when a
// conversation is started without a user id
func NewAnonymousUserProfile() *UserProfile {
	return &UserProfile{
		DisplayName: "Anonymous User",
		Metadata:    map[string]interface{}{"type": "anonymous"},
		CreatedAt:   time.Now(),
	}
}

// Conversation represents one conversation between a user and an agent
type Conversation struct {
	ID                string     `json:"id" bson:"_id"`
	UserID            string     `json:"user_id" bson:"user_id"`
	AgentID           string     `json:"agent_id" bson:"agent_id"`
	ElevenLabsAgentID string     `json:"elevenlabs_agent_id" bson:"elevenlabs_agent_id"`
	Channel           Channel    `json:"channel" bson:"channel"`
	CreatedAt         time.Time  `json:"created_at" bson:"created_at"`
	EndedAt           *time.Time `json:"ended_at" bson:"ended_at,omitempty"`
}

// End marks the conversation as ended
func (c *Conversation) End(at time.Time) {
	c.EndedAt = &at
}

// IsEnded reports whether the conversation has been ended
func (c *Conversation) IsEnded() bool {
	return c.EndedAt != nil
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	if c.UserID == "" {
		return errors.New("user_id is required")
	}
	if c.AgentID == "" {
		return errors.New("agent_id is required")
	}
	switch c.Channel {
	case ChannelWeb, ChannelVoice, ChannelText:
	default:
		return errors.New("invalid channel")
	}
	return nil
}

// ConversationMessage represents a persisted message of a conversation
type ConversationMessage struct {
	ID             string      `json:"id" bson:"_id"`
	ConversationID string      `json:"conversation_id" bson:"conversation_id"`
	Role           MessageRole `json:"role" bson:"role"`
	ContentText    string      `json:"content_text" bson:"content_text"`
	CreatedAt      time.Time   `json:"created_at" bson:"created_at"`
}
