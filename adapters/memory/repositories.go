// Package memory provides in-memory repositories for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/escal8/voiceagent/domain/entities"
	"github.com/escal8/voiceagent/domain/repositories"
)

// AgentRepository is an in-memory implementation of repositories.AgentRepository
type AgentRepository struct {
	mu           sync.RWMutex
	agents       []*entities.Agent
	byElevenLabs map[string]*entities.Agent
}

var _ repositories.AgentRepository = (*AgentRepository)(nil)

// NewAgentRepository creates a new in-memory agent repository
func NewAgentRepository() *AgentRepository {
	return &AgentRepository{byElevenLabs: make(map[string]*entities.Agent)}
}

// Create implements repositories.AgentRepository
func (r *AgentRepository) Create(ctx context.Context, agent *entities.Agent) error {
	if agent == nil {
		return errors.New("agent cannot be nil")
	}
	if err := agent.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byElevenLabs[agent.ElevenLabsAgentID]; exists {
		return errors.New("agent with this elevenlabs_agent_id already exists")
	}

	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now()
	}

	stored := *agent
	r.agents = append(r.agents, &stored)
	r.byElevenLabs[agent.ElevenLabsAgentID] = &stored
	return nil
}

// GetByElevenLabsID implements repositories.AgentRepository
func (r *AgentRepository) GetByElevenLabsID(ctx context.Context, elevenLabsAgentID string) (*entities.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, exists := r.byElevenLabs[elevenLabsAgentID]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	copied := *agent
	return &copied, nil
}

// List implements repositories.AgentRepository
func (r *AgentRepository) List(ctx context.Context) ([]*entities.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*entities.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		copied := *agent
		agents = append(agents, &copied)
	}
	return agents, nil
}

// UserProfileRepository is an in-memory implementation of repositories.UserProfileRepository
type UserProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*entities.UserProfile
}

var _ repositories.UserProfileRepository = (*UserProfileRepository)(nil)

// NewUserProfileRepository creates a new in-memory user profile repository
func NewUserProfileRepository() *UserProfileRepository {
	return &UserProfileRepository{profiles: make(map[string]*entities.UserProfile)}
}

// Create implements repositories.UserProfileRepository
func (r *UserProfileRepository) Create(ctx context.Context, profile *entities.UserProfile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}

	stored := *profile
	r.profiles[profile.ID] = &stored
	return nil
}

// Count returns the number of stored profiles
func (r *UserProfileRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// ConversationRepository is an in-memory implementation of repositories.ConversationRepository
type ConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*entities.Conversation
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new in-memory conversation repository
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{conversations: make(map[string]*entities.Conversation)}
}

// Create implements repositories.ConversationRepository
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now()
	}

	stored := *conversation
	r.conversations[conversation.ID] = &stored
	return nil
}

// GetByID implements repositories.ConversationRepository
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversation, exists := r.conversations[id]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	copied := *conversation
	return &copied, nil
}

// MarkEnded implements repositories.ConversationRepository
func (r *ConversationRepository) MarkEnded(ctx context.Context, id string, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, exists := r.conversations[id]
	if !exists {
		return repositories.ErrNotFound
	}
	conversation.End(endedAt)
	return nil
}

// MessageRepository is an in-memory implementation of repositories.MessageRepository
type MessageRepository struct {
	mu             sync.RWMutex
	byConversation map[string][]*entities.ConversationMessage
}

var _ repositories.MessageRepository = (*MessageRepository)(nil)

// NewMessageRepository creates a new in-memory message repository
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{byConversation: make(map[string][]*entities.ConversationMessage)}
}

// Create implements repositories.MessageRepository
func (r *MessageRepository) Create(ctx context.Context, message *entities.ConversationMessage) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	stored := *message
	r.byConversation[message.ConversationID] = append(r.byConversation[message.ConversationID], &stored)
	return nil
}

// ListByConversation implements repositories.MessageRepository
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entities.ConversationMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.byConversation[conversationID]
	messages := make([]*entities.ConversationMessage, 0, len(stored))
	for _, message := range stored {
		copied := *message
		messages = append(messages, &copied)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}
