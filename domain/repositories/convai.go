package repositories

import "context"

// AgentInfo is the provider-side view of a conversational agent
type AgentInfo struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

// ConversationalAI abstracts the hosted conversational agent provider
type ConversationalAI interface {
	// SignedURL returns a short-lived streaming URL for the agent
	SignedURL(ctx context.Context, agentID string) (string, error)
	GetAgent(ctx context.Context, agentID string) (*AgentInfo, error)
	// DuplicateAgent copies an agent under a new name and returns the new id
	DuplicateAgent(ctx context.Context, agentID, name string) (string, error)
}
