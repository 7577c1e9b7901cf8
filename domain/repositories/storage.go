package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/escal8/voiceagent/domain/entities"
)

// ErrNotFound is returned by repositories when a record does not exist
var ErrNotFound = errors.New("not found")

// AgentRepository defines data access methods for cloned agents
type AgentRepository interface {
	Create(ctx context.Context, agent *entities.Agent) error
	GetByElevenLabsID(ctx context.Context, elevenLabsAgentID string) (*entities.Agent, error)
	List(ctx context.Context) ([]*entities.Agent, error)
}

// UserProfileRepository defines data access methods for user profiles
type UserProfileRepository interface {
	Create(ctx context.Context, profile *entities.UserProfile) error
}

// ConversationRepository defines data access methods for conversations
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entities.Conversation) error
	GetByID(ctx context.Context, id string) (*entities.Conversation, error)
	MarkEnded(ctx context.Context, id string, endedAt time.Time) error
}

// MessageRepository defines data access methods for conversation messages
type MessageRepository interface {
	Create(ctx context.Context, message *entities.ConversationMessage) error
	// ListByConversation returns messages ordered by creation time
	ListByConversation(ctx context.Context, conversationID string) ([]*entities.ConversationMessage, error)
}
