package repositories

import (
	"context"

	"github.com/escal8/voiceagent/domain/entities"
)

// ConversationBackend is the REST backend a live voice session reports to
type ConversationBackend interface {
	StartConversation(ctx context.Context, agentID string, channel entities.Channel) (string, error)
	SignedURL(ctx context.Context, agentID string) (string, error)
	SaveMessage(ctx context.Context, conversationID string, role entities.MessageRole, text string) error
	EndConversation(ctx context.Context, conversationID string) error
}

// CloneResult is returned when an agent is cloned from the base agent
type CloneResult struct {
	AgentID string `json:"agent_id"`
	DBID    string `json:"db_id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// AgentDirectory lists and creates agents through the backend
type AgentDirectory interface {
	ListAgents(ctx context.Context) ([]entities.Agent, error)
	CloneAgent(ctx context.Context, name, extraPrompts string) (*CloneResult, error)
}
