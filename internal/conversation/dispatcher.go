package conversation

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/escal8/voiceagent/domain/entities"
	"github.com/escal8/voiceagent/internal/audio"
	"github.com/escal8/voiceagent/internal/playback"
	"github.com/escal8/voiceagent/internal/websocket"
)

const unknownCloseReason = "Unknown error"

// dispatch handles inbound frames in arrival order until the connection ends
func (c *Client) dispatch(s *session) {
	for data := range s.conn.Messages() {
		event, err := websocket.ParseEvent(data)
		if err != nil {
			c.logger.Warn("Failed to parse inbound event",
				zap.String("conversationID", s.conversationID),
				zap.Error(err))
			continue
		}
		if c.handleEvent(s, event) {
			c.notify()
		}
	}

	c.handleClose(s)
}

// handleEvent applies one event to the session. It reports whether the
// observable state changed. Events for a torn down session are ignored.
func (c *Client) handleEvent(s *session, event websocket.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.stopped {
		return false
	}

	switch e := event.(type) {
	case *websocket.ConversationInitiationMetadataEvent:
		format := e.Metadata.AgentOutputAudioFormat
		if format == "" {
			format = audio.DefaultFormat.Name
		}
		c.audioFormat = format
		if err := s.queue.SetFormat(format); err != nil {
			c.logger.Warn("Unsupported agent output format, playing at default rate",
				zap.String("format", format),
				zap.Int("sampleRate", audio.DefaultFormat.SampleRate),
				zap.Error(err))
		}
		c.logger.Info("Conversation initiated",
			zap.String("agentConversationID", e.Metadata.ConversationID),
			zap.String("format", format))
		return true

	case *websocket.PingEvent:
		c.schedulePong(s, e.Ping)
		return false

	case *websocket.UserTranscriptEvent:
		text := e.Transcription.UserTranscript
		c.userTranscript = text
		c.log.Append(entities.MessageRoleUser, text, time.Now())
		c.persistMessage(s, entities.MessageRoleUser, text)
		return true

	case *websocket.AgentResponseEvent:
		text := e.Response.AgentResponse
		c.agentResponse = text
		c.log.Append(entities.MessageRoleAgent, text, time.Now())
		c.persistMessage(s, entities.MessageRoleAgent, text)
		return true

	case *websocket.AgentResponseCorrectionEvent:
		text := e.Correction.CorrectedAgentResponse
		c.agentResponse = text
		if !c.log.CorrectLastAgent(text) {
			c.logger.Debug("Correction without a prior agent message")
		}
		return true

	case *websocket.AudioEvent:
		s.queue.Enqueue(playback.Item{
			AudioBase64: e.Audio.AudioBase64,
			EventID:     e.Audio.EventID,
		})
		return false

	case *websocket.InterruptionEvent:
		s.queue.StopAll()
		return false

	default:
		c.logger.Debug("Ignoring inbound event", zap.String("type", string(event.EventType())))
		return false
	}
}

// schedulePong answers a ping after its requested delay without blocking
// dispatch. Called with c.mu held.
func (c *Client) schedulePong(s *session, ping websocket.PingPayload) {
	s.pingSeq++
	key := s.pingSeq
	delay := time.Duration(ping.PingMs) * time.Millisecond

	s.pings[key] = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if s.stopped {
			c.mu.Unlock()
			return
		}
		delete(s.pings, key)
		conn := s.conn
		c.mu.Unlock()

		if err := conn.Send(websocket.CreatePongMessage(ping.EventID)); err != nil {
			c.logger.Warn("Failed to send pong",
				zap.Int("eventID", ping.EventID),
				zap.Error(err))
		}
	})
}

// handleClose runs once the connection has ended
func (c *Client) handleClose(s *session) {
	c.mu.Lock()
	stopped := s.stopped
	c.mu.Unlock()

	if stopped {
		return
	}

	event := s.conn.CloseEvent()
	c.logger.Warn("Connection closed by peer",
		zap.String("conversationID", s.conversationID),
		zap.Int("code", event.Code),
		zap.String("reason", event.Reason),
		zap.Bool("wasClean", event.WasClean))

	c.abort(s)

	if !event.WasClean {
		reason := event.Reason
		if reason == "" {
			reason = unknownCloseReason
		}
		c.alert(fmt.Sprintf("Connection lost: %s (Code: %d)", reason, event.Code))
	}
}
