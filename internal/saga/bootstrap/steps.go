// Package bootstrap defines the saga that brings up a live voice session:
// create the conversation record, fetch a signed URL, open the stream.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/escal8/voiceagent/domain/entities"
	"github.com/escal8/voiceagent/domain/repositories"
	"github.com/escal8/voiceagent/internal/saga"
	"github.com/escal8/voiceagent/internal/websocket"
)

// DefinitionID identifies the session bootstrap saga
const DefinitionID = "session_bootstrap"

// Data keys for the bootstrap saga
const (
	DataKeyAgentID        = "agent_id"
	DataKeyChannel        = "channel"
	DataKeyConversationID = "conversation_id"
	DataKeySignedURL      = "signed_url"
	DataKeyConn           = "conn"
)

// Definition is the session bootstrap saga
type Definition struct {
	backend repositories.ConversationBackend
	dialer  repositories.StreamDialer
	timeout time.Duration
	logger  *zap.Logger
}

// NewDefinition creates the bootstrap saga definition
func NewDefinition(backend repositories.ConversationBackend, dialer repositories.StreamDialer, timeout time.Duration, logger *zap.Logger) *Definition {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Definition{
		backend: backend,
		dialer:  dialer,
		timeout: timeout,
		logger:  logger,
	}
}

func (d *Definition) ID() string {
	return DefinitionID
}

func (d *Definition) Timeout() time.Duration {
	return d.timeout
}

func (d *Definition) Steps() []saga.Step {
	return []saga.Step{
		&CreateConversationStep{backend: d.backend, logger: d.logger},
		&SignedURLStep{backend: d.backend, logger: d.logger},
		&DialStep{dialer: d.dialer, logger: d.logger},
	}
}

// NewData prepares the input of a bootstrap run
func NewData(agentID string, channel entities.Channel) saga.SagaData {
	return saga.SagaData{
		DataKeyAgentID: agentID,
		DataKeyChannel: channel,
	}
}

// ConversationID extracts the conversation id written by the saga
func ConversationID(data saga.SagaData) string {
	id, _ := data[DataKeyConversationID].(string)
	return id
}

// Conn extracts the connection written by the saga
func Conn(data saga.SagaData) repositories.StreamConn {
	conn, _ := data[DataKeyConn].(repositories.StreamConn)
	return conn
}

// CreateConversationStep asks the backend for a persisted conversation record
type CreateConversationStep struct {
	backend repositories.ConversationBackend
	logger  *zap.Logger
}

func (s *CreateConversationStep) ID() saga.StepID {
	return "create_conversation"
}

func (s *CreateConversationStep) Execute(ctx context.Context, data saga.SagaData) error {
	agentID, _ := data[DataKeyAgentID].(string)
	channel, _ := data[DataKeyChannel].(entities.Channel)

	conversationID, err := s.backend.StartConversation(ctx, agentID, channel)
	if err != nil {
		return fmt.Errorf("failed to start conversation: %w", err)
	}

	data[DataKeyConversationID] = conversationID
	s.logger.Info("Conversation created",
		zap.String("agentID", agentID),
		zap.String("conversationID", conversationID))
	return nil
}

// Compensate ends the conversation record so it is not left open
func (s *CreateConversationStep) Compensate(ctx context.Context, data saga.SagaData) error {
	conversationID := ConversationID(data)
	if conversationID == "" {
		return nil
	}
	if err := s.backend.EndConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to end conversation %s: %w", conversationID, err)
	}
	return nil
}

// SignedURLStep fetches the signed stream URL for the agent
type SignedURLStep struct {
	backend repositories.ConversationBackend
	logger  *zap.Logger
}

func (s *SignedURLStep) ID() saga.StepID {
	return "signed_url"
}

func (s *SignedURLStep) Execute(ctx context.Context, data saga.SagaData) error {
	agentID, _ := data[DataKeyAgentID].(string)

	signedURL, err := s.backend.SignedURL(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to get signed URL: %w", err)
	}
	if err := websocket.ValidateStreamURL(signedURL); err != nil {
		return err
	}

	data[DataKeySignedURL] = signedURL
	return nil
}

// Compensate is a no-op; signed URLs expire on their own
func (s *SignedURLStep) Compensate(ctx context.Context, data saga.SagaData) error {
	return nil
}

// DialStep opens the streaming connection
type DialStep struct {
	dialer repositories.StreamDialer
	logger *zap.Logger
}

func (s *DialStep) ID() saga.StepID {
	return "dial"
}

func (s *DialStep) Execute(ctx context.Context, data saga.SagaData) error {
	signedURL, _ := data[DataKeySignedURL].(string)

	conn, err := s.dialer.Dial(ctx, signedURL)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	data[DataKeyConn] = conn
	return nil
}

// Compensate closes the connection
func (s *DialStep) Compensate(ctx context.Context, data saga.SagaData) error {
	if conn := Conn(data); conn != nil {
		return conn.Close()
	}
	return nil
}
