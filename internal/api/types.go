package api

// CloneAgentRequest represents the request payload for cloning the base agent
type CloneAgentRequest struct {
	AgentName    string `json:"agent_name"`
	ExtraPrompts string `json:"extra_prompts"`
	UserID       string `json:"user_id,omitempty"`
}

// StartConversationRequest represents the request payload for opening a conversation
type StartConversationRequest struct {
	AgentID string `json:"agent_id"`
	UserID  string `json:"user_id,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// SendMessageRequest represents the request payload for storing a message.
// Role is optional and defaults to the user.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Role           string `json:"role,omitempty"`
}

// BaseAgentResponse represents the base agent summary
type BaseAgentResponse struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

// SignedURLResponse carries a signed streaming URL
type SignedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// StatusResponse is returned by the health endpoints
type StatusResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse acknowledges an operation without a body
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
