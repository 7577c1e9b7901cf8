package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/escal8/voiceagent/domain/entities"
	"github.com/escal8/voiceagent/domain/repositories"
)

// AgentRepository stores cloned agents
type AgentRepository struct {
	collection *mongo.Collection
}

var _ repositories.AgentRepository = (*AgentRepository)(nil)

// NewAgentRepository creates a new MongoDB agent repository
func NewAgentRepository(db *mongo.Database) *AgentRepository {
	return &AgentRepository{collection: db.Collection(agentsCollection)}
}

// Create implements repositories.AgentRepository
func (r *AgentRepository) Create(ctx context.Context, agent *entities.Agent) error {
	if agent == nil {
		return errors.New("agent cannot be nil")
	}
	if err := agent.Validate(); err != nil {
		return err
	}

	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, agent); err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// GetByElevenLabsID implements repositories.AgentRepository
func (r *AgentRepository) GetByElevenLabsID(ctx context.Context, elevenLabsAgentID string) (*entities.Agent, error) {
	var agent entities.Agent
	err := r.collection.FindOne(ctx, bson.M{"elevenlabs_agent_id": elevenLabsAgentID}).Decode(&agent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent %s: %w", elevenLabsAgentID, err)
	}
	return &agent, nil
}

// List implements repositories.AgentRepository
func (r *AgentRepository) List(ctx context.Context) ([]*entities.Agent, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer cursor.Close(ctx)

	agents := []*entities.Agent{}
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, fmt.Errorf("failed to decode agents: %w", err)
	}
	return agents, nil
}

// UserProfileRepository stores user profiles
type UserProfileRepository struct {
	collection *mongo.Collection
}

var _ repositories.UserProfileRepository = (*UserProfileRepository)(nil)

// NewUserProfileRepository creates a new MongoDB user profile repository
func NewUserProfileRepository(db *mongo.Database) *UserProfileRepository {
	return &UserProfileRepository{collection: db.Collection(userProfilesCollection)}
}

// Create implements repositories.UserProfileRepository
func (r *UserProfileRepository) Create(ctx context.Context, profile *entities.UserProfile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, profile); err != nil {
		return fmt.Errorf("failed to create user profile: %w", err)
	}
	return nil
}

// ConversationRepository stores conversations
type ConversationRepository struct {
	collection *mongo.Collection
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new MongoDB conversation repository
func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{collection: db.Collection(conversationsCollection)}
}

// Create implements repositories.ConversationRepository
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, conversation); err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetByID implements repositories.ConversationRepository
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	var conversation entities.Conversation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	return &conversation, nil
}

// MarkEnded implements repositories.ConversationRepository
func (r *ConversationRepository) MarkEnded(ctx context.Context, id string, endedAt time.Time) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"ended_at": endedAt}},
	)
	if err != nil {
		return fmt.Errorf("failed to end conversation %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// MessageRepository stores conversation messages
type MessageRepository struct {
	collection *mongo.Collection
}

var _ repositories.MessageRepository = (*MessageRepository)(nil)

// NewMessageRepository creates a new MongoDB message repository
func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{collection: db.Collection(messagesCollection)}
}

// Create implements repositories.MessageRepository
func (r *MessageRepository) Create(ctx context.Context, message *entities.ConversationMessage) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, message); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByConversation implements repositories.MessageRepository
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entities.ConversationMessage, error) {
	cursor, err := r.collection.Find(ctx,
		bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := []*entities.ConversationMessage{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}
