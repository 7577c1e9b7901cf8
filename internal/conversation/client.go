// Package conversation implements the realtime voice conversation client:
// it bootstraps a session, dispatches inbound agent events, streams the
// microphone and plays agent speech.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/escal8/voiceagent/domain/entities"
	"github.com/escal8/voiceagent/domain/repositories"
	"github.com/escal8/voiceagent/internal/audio"
	"github.com/escal8/voiceagent/internal/capture"
	"github.com/escal8/voiceagent/internal/playback"
	"github.com/escal8/voiceagent/internal/saga"
	"github.com/escal8/voiceagent/internal/saga/bootstrap"
	"github.com/escal8/voiceagent/internal/websocket"
)

var (
	ErrSessionActive = errors.New("conversation already active")
	ErrAgentRequired = errors.New("agent id is required")
	ErrSessionClosed = errors.New("conversation closed during startup")
)

// User-facing alerts
const (
	AlertStartFailed = "Failed to start conversation. Please try again."
	AlertMicrophone  = "Could not access microphone. Please check permissions."
)

const (
	persistTimeout = 10 * time.Second
	saveBacklog    = 64
)

// Alerter surfaces user-facing failures
type Alerter interface {
	Alert(message string)
}

// AlertFunc adapts a function to Alerter
type AlertFunc func(message string)

// Alert implements Alerter
func (f AlertFunc) Alert(message string) {
	f(message)
}

// Config configures a Client
type Config struct {
	AgentID          string
	Channel          entities.Channel
	BootstrapTimeout time.Duration
	Capture          capture.Config
}

// State is an observable snapshot of the client
type State struct {
	Connected             bool
	Streaming             bool
	Messages              []entities.Message
	CurrentUserTranscript string
	CurrentAgentResponse  string
	ConversationID        string
	AudioFormat           string
}

type session struct {
	conversationID string
	conn           repositories.StreamConn
	capture        *capture.Pipeline
	queue          *playback.Queue
	saves          chan saveRequest

	// guarded by Client.mu
	stopped bool
	pings   map[uint64]*time.Timer
	pingSeq uint64
}

type saveRequest struct {
	role entities.MessageRole
	text string
}

// Client owns at most one live session at a time
type Client struct {
	config  Config
	backend repositories.ConversationBackend
	mic     repositories.Microphone
	player  repositories.AudioPlayer
	alerter Alerter
	sagas   *saga.Manager
	logger  *zap.Logger

	mu             sync.Mutex
	active         *session
	starting       bool
	log            *entities.MessageLog
	userTranscript string
	agentResponse  string
	conversationID string
	audioFormat    string
	listener       func(State)

	// background backend calls
	pending sync.WaitGroup
}

// NewClient creates a new conversation client
func NewClient(
	config Config,
	backend repositories.ConversationBackend,
	dialer repositories.StreamDialer,
	mic repositories.Microphone,
	player repositories.AudioPlayer,
	alerter Alerter,
	logger *zap.Logger,
) *Client {
	if config.Channel == "" {
		config.Channel = entities.ChannelVoice
	}

	sagas := saga.NewManager(logger)
	sagas.RegisterDefinition(bootstrap.NewDefinition(backend, dialer, config.BootstrapTimeout, logger))
	sagas.OnEvent(func(e saga.SagaEvent) {
		logger.Debug("Bootstrap saga event",
			zap.String("sagaID", string(e.SagaID)),
			zap.String("stepID", string(e.StepID)),
			zap.String("type", string(e.Type)),
			zap.String("error", e.Error))
	})

	return &Client{
		config:      config,
		backend:     backend,
		mic:         mic,
		player:      player,
		alerter:     alerter,
		sagas:       sagas,
		logger:      logger,
		log:         entities.NewMessageLog(),
		audioFormat: audio.DefaultFormat.Name,
	}
}

// OnStateChange registers a listener called after every state change
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = fn
}

// State returns a snapshot of the client state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Client) stateLocked() State {
	state := State{
		Messages:              c.log.Snapshot(),
		CurrentUserTranscript: c.userTranscript,
		CurrentAgentResponse:  c.agentResponse,
		ConversationID:        c.conversationID,
		AudioFormat:           c.audioFormat,
	}
	if c.active != nil {
		state.Connected = c.active.conn.IsOpen()
		state.Streaming = c.active.capture.Streaming()
	}
	return state
}

// StartConversation creates a conversation, opens the agent stream, sends
// the initiation message and starts the microphone. On failure nothing is
// left open and the user is alerted.
func (c *Client) StartConversation(ctx context.Context) error {
	c.mu.Lock()
	if c.active != nil || c.starting {
		c.mu.Unlock()
		return ErrSessionActive
	}
	if c.config.AgentID == "" {
		c.mu.Unlock()
		return ErrAgentRequired
	}
	c.starting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	data := bootstrap.NewData(c.config.AgentID, c.config.Channel)
	if _, err := c.sagas.Run(ctx, bootstrap.DefinitionID, data); err != nil {
		c.logger.Error("Failed to start conversation",
			zap.String("agentID", c.config.AgentID),
			zap.Error(err))
		c.alert(AlertStartFailed)
		return err
	}

	s := &session{
		conversationID: bootstrap.ConversationID(data),
		conn:           bootstrap.Conn(data),
		capture:        capture.NewPipeline(c.mic, c.config.Capture, c.logger),
		queue:          playback.NewQueue(c.player, c.logger),
		saves:          make(chan saveRequest, saveBacklog),
		pings:          make(map[uint64]*time.Timer),
	}

	c.pending.Add(1)
	go c.persist(s)

	c.mu.Lock()
	c.active = s
	c.log = entities.NewMessageLog()
	c.userTranscript = ""
	c.agentResponse = ""
	c.conversationID = s.conversationID
	c.audioFormat = audio.DefaultFormat.Name
	c.mu.Unlock()

	go c.dispatch(s)

	if err := s.conn.Send(websocket.CreateClientInitiationMessage()); err != nil {
		c.logger.Error("Failed to send conversation initiation", zap.Error(err))
		c.abort(s)
		c.alert(AlertStartFailed)
		return fmt.Errorf("failed to send initiation: %w", err)
	}

	if err := s.capture.Start(ctx, s.conn); err != nil {
		c.logger.Error("Failed to access microphone", zap.Error(err))
		c.abort(s)
		c.alert(AlertMicrophone)
		return err
	}

	c.mu.Lock()
	stale := c.active != s
	c.mu.Unlock()
	if stale {
		s.capture.Stop()
		return ErrSessionClosed
	}

	c.logger.Info("Conversation started",
		zap.String("agentID", c.config.AgentID),
		zap.String("conversationID", s.conversationID))
	c.notify()
	return nil
}

// StopConversation tears down the active session. It is a no-op when
// there is none.
func (c *Client) StopConversation() {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()

	if s == nil {
		return
	}
	c.abort(s)
	c.logger.Info("Conversation stopped", zap.String("conversationID", s.conversationID))
}

// Shutdown stops the active session and waits for pending backend calls
func (c *Client) Shutdown(ctx context.Context) error {
	c.StopConversation()

	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abort releases every resource of the session exactly once. The
// conversation is reported as ended after queued messages are saved.
func (c *Client) abort(s *session) {
	c.mu.Lock()
	if s.stopped {
		c.mu.Unlock()
		return
	}
	s.stopped = true
	if c.active == s {
		c.active = nil
	}
	for _, timer := range s.pings {
		timer.Stop()
	}
	s.pings = nil
	close(s.saves)
	c.mu.Unlock()

	s.capture.Stop()
	s.queue.StopAll()
	s.queue.Close()
	if err := s.conn.Close(); err != nil {
		c.logger.Warn("Failed to close stream connection", zap.Error(err))
	}

	c.notify()
}

// persist saves the session's messages one at a time in arrival order
func (c *Client) persist(s *session) {
	defer c.pending.Done()

	for req := range s.saves {
		c.saveMessage(s.conversationID, req)
	}
	c.endConversation(s.conversationID)
}

func (c *Client) saveMessage(conversationID string, req saveRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := c.backend.SaveMessage(ctx, conversationID, req.role, req.text); err != nil {
		c.logger.Error("Failed to save message",
			zap.String("conversationID", conversationID),
			zap.String("role", string(req.role)),
			zap.Error(err))
	}
}

func (c *Client) endConversation(conversationID string) {
	if conversationID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := c.backend.EndConversation(ctx, conversationID); err != nil {
		c.logger.Error("Failed to end conversation",
			zap.String("conversationID", conversationID),
			zap.Error(err))
	}
}

// persistMessage queues a message for saving without blocking dispatch.
// Callers hold c.mu.
func (c *Client) persistMessage(s *session, role entities.MessageRole, text string) {
	if s.stopped || s.conversationID == "" {
		return
	}

	select {
	case s.saves <- saveRequest{role: role, text: text}:
	default:
		c.logger.Warn("Message save backlog full, dropping message",
			zap.String("conversationID", s.conversationID),
			zap.String("role", string(role)))
	}
}

func (c *Client) alert(message string) {
	if c.alerter != nil {
		c.alerter.Alert(message)
	}
}

func (c *Client) notify() {
	c.mu.Lock()
	listener := c.listener
	var state State
	if listener != nil {
		state = c.stateLocked()
	}
	c.mu.Unlock()

	if listener != nil {
		listener(state)
	}
}
