package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/escal8/voiceagent/domain/entities"
	"github.com/escal8/voiceagent/domain/repositories"
)

const (
	// DefaultBaseAgentID is the agent every clone is duplicated from
	DefaultBaseAgentID = "agent_4301kak9z54ye2xt7apdc1encesz"

	clonedAgentPrefix   = "Custom Agent - "
	defaultInstructions = "Be helpful and professional."
	historyLimit        = 20
	publishTimeout      = 5 * time.Second

	CloneNotice = "Agent cloned successfully. Note: Extra prompts are stored but not yet applied to the agent behavior. See implementation notes for details."

	STTFallbackText  = "[Voice message received - please configure GOOGLE_APPLICATION_CREDENTIALS for speech-to-text]"
	STTFallbackError = "STT requires Google Cloud credentials"
)

// ErrInvalidInput is returned for requests that fail validation
var ErrInvalidInput = errors.New("invalid input")

// Stores groups the repositories the service persists to
type Stores struct {
	Agents        repositories.AgentRepository
	Profiles      repositories.UserProfileRepository
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
}

// ConversationService implements the backend operations behind the REST API.
// llm, tts and stt are optional.
type ConversationService struct {
	stores      Stores
	convai      repositories.ConversationalAI
	llm         repositories.LargeLanguageModel
	tts         repositories.TextToSpeech
	stt         repositories.SpeechToText
	events      repositories.EventPublisher
	baseAgentID string
	logger      *zap.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(
	stores Stores,
	convai repositories.ConversationalAI,
	llm repositories.LargeLanguageModel,
	tts repositories.TextToSpeech,
	stt repositories.SpeechToText,
	events repositories.EventPublisher,
	baseAgentID string,
	logger *zap.Logger,
) *ConversationService {
	if baseAgentID == "" {
		baseAgentID = DefaultBaseAgentID
		logger.Info("Using default base agent", zap.String("baseAgentID", baseAgentID))
	}

	return &ConversationService{
		stores:      stores,
		convai:      convai,
		llm:         llm,
		tts:         tts,
		stt:         stt,
		events:      events,
		baseAgentID: baseAgentID,
		logger:      logger,
	}
}

// BaseAgent returns the provider view of the base agent
func (s *ConversationService) BaseAgent(ctx context.Context) (*repositories.AgentInfo, error) {
	return s.convai.GetAgent(ctx, s.baseAgentID)
}

// SignedURL returns a signed streaming URL for the agent
func (s *ConversationService) SignedURL(ctx context.Context, agentID string) (string, error) {
	if strings.TrimSpace(agentID) == "" {
		return "", fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	return s.convai.SignedURL(ctx, agentID)
}

// CloneAgentInput describes a new agent
type CloneAgentInput struct {
	Name         string
	ExtraPrompts string
	UserID       string
}

// CloneAgent duplicates the base agent and records the clone
func (s *ConversationService) CloneAgent(ctx context.Context, input CloneAgentInput) (*repositories.CloneResult, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: agent_name is required", ErrInvalidInput)
	}

	newAgentID, err := s.convai.DuplicateAgent(ctx, s.baseAgentID, clonedAgentPrefix+name)
	if err != nil {
		return nil, err
	}

	agent := &entities.Agent{
		ElevenLabsAgentID: newAgentID,
		BaseAgentID:       s.baseAgentID,
		Name:              name,
		ExtraPrompts:      input.ExtraPrompts,
	}
	if input.UserID != "" {
		userID := input.UserID
		agent.CreatedByUserID = &userID
	}

	if err := s.stores.Agents.Create(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to store agent: %w", err)
	}

	s.logger.Info("Agent cloned",
		zap.String("agentID", newAgentID),
		zap.String("name", name))
	s.publish(repositories.ConversationEvent{
		Type:    repositories.EventAgentCloned,
		AgentID: newAgentID,
	})

	return &repositories.CloneResult{
		AgentID: newAgentID,
		DBID:    agent.ID,
		Name:    name,
		Message: CloneNotice,
	}, nil
}

// ListAgents returns every cloned agent
func (s *ConversationService) ListAgents(ctx context.Context) ([]*entities.Agent, error) {
	return s.stores.Agents.List(ctx)
}

// StartConversationInput describes a conversation to open
type StartConversationInput struct {
	AgentID string
	UserID  string
	Channel entities.Channel
}

// StartConversationResult identifies the new conversation
type StartConversationResult struct {
	ConversationID string `json:"conversation_id"`
	AgentName      string `json:"agent_name"`
}

// StartConversation records a new conversation with a known agent. An
// anonymous profile is created when no user is given.
func (s *ConversationService) StartConversation(ctx context.Context, input StartConversationInput) (*StartConversationResult, error) {
	if strings.TrimSpace(input.AgentID) == "" {
		return nil, fmt.Errorf("%w: agent_id is required", ErrInvalidInput)
	}

	channel := input.Channel
	if channel == "" {
		channel = entities.ChannelWeb
	}

	agent, err := s.stores.Agents.GetByElevenLabsID(ctx, input.AgentID)
	if err != nil {
		return nil, err
	}

	userID := input.UserID
	if userID == "" {
		profile := entities.NewAnonymousUserProfile()
		if err := s.stores.Profiles.Create(ctx, profile); err != nil {
			return nil, fmt.Errorf("failed to create anonymous user: %w", err)
		}
		userID = profile.ID
	}

	conversation := &entities.Conversation{
		UserID:            userID,
		AgentID:           agent.ID,
		ElevenLabsAgentID: input.AgentID,
		Channel:           channel,
	}
	if err := conversation.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.stores.Conversations.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.logger.Info("Conversation started",
		zap.String("conversationID", conversation.ID),
		zap.String("agentID", input.AgentID),
		zap.String("channel", string(channel)))
	s.publish(repositories.ConversationEvent{
		Type:           repositories.EventConversationStarted,
		ConversationID: conversation.ID,
		AgentID:        input.AgentID,
	})

	return &StartConversationResult{
		ConversationID: conversation.ID,
		AgentName:      agent.Name,
	}, nil
}

// SendMessageInput is one message to store
type SendMessageInput struct {
	ConversationID string
	Role           string
	Text           string
}

// SendMessageResult holds the stored message and, for text chats, the reply
type SendMessageResult struct {
	UserMessage      *entities.ConversationMessage `json:"user_message,omitempty"`
	AssistantMessage *entities.ConversationMessage `json:"assistant_message,omitempty"`
}

// SendMessage stores a message. User messages on conversations that are not
// held by voice also get an assistant reply.
func (s *ConversationService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	conversation, err := s.stores.Conversations.GetByID(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}

	role := entities.NormalizeRole(input.Role)
	stored, err := s.storeMessage(ctx, conversation.ID, role, input.Text)
	if err != nil {
		return nil, err
	}

	if role == entities.MessageRoleAssistant {
		return &SendMessageResult{AssistantMessage: stored}, nil
	}

	result := &SendMessageResult{UserMessage: stored}
	if conversation.Channel == entities.ChannelVoice {
		return result, nil
	}

	reply := s.generateReply(ctx, conversation, input.Text)
	result.AssistantMessage, err = s.storeMessage(ctx, conversation.ID, entities.MessageRoleAssistant, reply)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Messages returns the messages of a conversation in creation order
func (s *ConversationService) Messages(ctx context.Context, conversationID string) ([]*entities.ConversationMessage, error) {
	return s.stores.Messages.ListByConversation(ctx, conversationID)
}

// EndConversation marks the conversation ended
func (s *ConversationService) EndConversation(ctx context.Context, conversationID string) error {
	if err := s.stores.Conversations.MarkEnded(ctx, conversationID, time.Now().UTC()); err != nil {
		return err
	}

	s.logger.Info("Conversation ended", zap.String("conversationID", conversationID))
	s.publish(repositories.ConversationEvent{
		Type:           repositories.EventConversationEnded,
		ConversationID: conversationID,
	})
	return nil
}

// TextToSpeech synthesizes text and returns the encoded audio
func (s *ConversationService) TextToSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	if s.tts == nil {
		return nil, errors.New("text-to-speech is not configured")
	}

	audioChan, err := s.tts.ConvertTextToSpeech(ctx, text, repositories.SpeechOptions{VoiceID: voiceID})
	if err != nil {
		return nil, fmt.Errorf("failed to convert text to speech: %w", err)
	}

	var audio []byte
	for chunk := range audioChan {
		audio = append(audio, chunk...)
	}
	if len(audio) == 0 {
		return nil, errors.New("text-to-speech returned no audio")
	}
	return audio, nil
}

// SpeechToTextResult mirrors the upload response
type SpeechToTextResult struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SpeechToText transcribes an uploaded recording. Without a configured
// recognizer, or when recognition fails, it returns the fallback text.
func (s *ConversationService) SpeechToText(ctx context.Context, audio []byte, config repositories.AudioConfig) SpeechToTextResult {
	fallback := SpeechToTextResult{
		Text:    STTFallbackText,
		Success: false,
		Error:   STTFallbackError,
	}
	if s.stt == nil {
		return fallback
	}

	text, err := s.stt.TranscribeAudio(ctx, audio, config)
	if err != nil {
		s.logger.Warn("Failed to transcribe upload", zap.Error(err))
		return fallback
	}
	return SpeechToTextResult{Text: text, Success: true}
}

func (s *ConversationService) storeMessage(ctx context.Context, conversationID string, role entities.MessageRole, text string) (*entities.ConversationMessage, error) {
	message := &entities.ConversationMessage{
		ConversationID: conversationID,
		Role:           role,
		ContentText:    text,
	}
	if err := s.stores.Messages.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	s.publish(repositories.ConversationEvent{
		Type:           repositories.EventMessageSaved,
		ConversationID: conversationID,
		Role:           string(role),
		Text:           text,
	})
	return message, nil
}

func (s *ConversationService) generateReply(ctx context.Context, conversation *entities.Conversation, text string) string {
	agent, err := s.stores.Agents.GetByElevenLabsID(ctx, conversation.ElevenLabsAgentID)
	if err != nil || s.llm == nil {
		return noLLMFallback(text)
	}

	history, err := s.chatHistory(ctx, conversation.ID)
	if err != nil {
		s.logger.Warn("Failed to load chat history", zap.Error(err))
	}

	session, err := s.llm.GenerateChat(ctx, SystemPrompt(agent), history)
	if err != nil {
		s.logger.Error("Failed to create chat session", zap.Error(err))
		return llmErrorFallback(text)
	}

	reply, err := session.SendMessage(ctx, repositories.ChatMessage{Role: repositories.UserRole, Content: text})
	if err != nil {
		s.logger.Error("Failed to generate reply",
			zap.String("conversationID", conversation.ID),
			zap.Error(err))
		return llmErrorFallback(text)
	}
	return reply.Content
}

// chatHistory returns the recent messages before the one just stored
func (s *ConversationService) chatHistory(ctx context.Context, conversationID string) ([]repositories.ChatMessage, error) {
	stored, err := s.stores.Messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		stored = stored[:len(stored)-1]
	}
	if len(stored) > historyLimit {
		stored = stored[len(stored)-historyLimit:]
	}

	history := make([]repositories.ChatMessage, 0, len(stored))
	for _, m := range stored {
		role := repositories.UserRole
		if m.Role == entities.MessageRoleAssistant {
			role = repositories.AssistantRole
		}
		history = append(history, repositories.ChatMessage{Role: role, Content: m.ContentText})
	}
	return history, nil
}

func (s *ConversationService) publish(event repositories.ConversationEvent) {
	if s.events == nil {
		return
	}
	event.Timestamp = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish conversation event",
			zap.String("type", event.Type),
			zap.Error(err))
	}
}

// SystemPrompt builds the text-chat persona of an agent
func SystemPrompt(agent *entities.Agent) string {
	instructions := strings.TrimSpace(agent.ExtraPrompts)
	if instructions == "" {
		instructions = defaultInstructions
	}

	return fmt.Sprintf("You are a customer service agent with the following characteristics:\n\n"+
		"Agent Name: %s\n"+
		"Additional Instructions: %s\n\n"+
		"You are engaging in a text-based chat with a customer. Respond naturally and stay in character.",
		agent.Name, instructions)
}

func noLLMFallback(text string) string {
	return fmt.Sprintf("I received your message: '%s'. I'm here to help! (Note: For the best experience, try using the voice interface)", text)
}

func llmErrorFallback(text string) string {
	return fmt.Sprintf("I received your message: '%s'. I'm here to help! (Note: Full conversational AI features work best with voice)", text)
}
