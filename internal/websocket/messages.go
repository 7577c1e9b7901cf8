package websocket

import (
	"encoding/json"
	"fmt"
)

// EventType is the "type" discriminator of an inbound stream event
type EventType string

// Inbound event types
const (
	EventTypeConversationInitiationMetadata EventType = "conversation_initiation_metadata"
	EventTypePing                           EventType = "ping"
	EventTypeUserTranscript                 EventType = "user_transcript"
	EventTypeAgentResponse                  EventType = "agent_response"
	EventTypeAgentResponseCorrection        EventType = "agent_response_correction"
	EventTypeAudio                          EventType = "audio"
	EventTypeInterruption                   EventType = "interruption"
)

// Outbound message types
const (
	MessageTypeConversationInitiationClientData = "conversation_initiation_client_data"
	MessageTypePong                             = "pong"
)

// Event is a parsed inbound stream event
type Event interface {
	EventType() EventType
}

// BaseEvent defines the common structure for all inbound events
type BaseEvent struct {
	Type EventType `json:"type"`
}

// EventType implements Event
func (b BaseEvent) EventType() EventType {
	return b.Type
}

// InitiationMetadata describes the negotiated session parameters
type InitiationMetadata struct {
	ConversationID         string `json:"conversation_id"`
	AgentOutputAudioFormat string `json:"agent_output_audio_format"`
	UserInputAudioFormat   string `json:"user_input_audio_format,omitempty"`
}

// ConversationInitiationMetadataEvent is sent once the agent session is ready
type ConversationInitiationMetadataEvent struct {
	BaseEvent
	Metadata InitiationMetadata `json:"conversation_initiation_metadata_event"`
}

// PingPayload carries the server ping id and requested reply delay
type PingPayload struct {
	EventID int `json:"event_id"`
	PingMs  int `json:"ping_ms"`
}

// PingEvent asks the client to answer with a pong after PingMs
type PingEvent struct {
	BaseEvent
	Ping PingPayload `json:"ping_event"`
}

// UserTranscriptEvent carries a finalized transcript of the user's speech
type UserTranscriptEvent struct {
	BaseEvent
	Transcription struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`
}

// AgentResponseEvent carries the agent's reply text
type AgentResponseEvent struct {
	BaseEvent
	Response struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`
}

// AgentResponseCorrectionEvent replaces the last agent reply after a barge-in
type AgentResponseCorrectionEvent struct {
	BaseEvent
	Correction struct {
		OriginalAgentResponse  string `json:"original_agent_response,omitempty"`
		CorrectedAgentResponse string `json:"corrected_agent_response"`
	} `json:"agent_response_correction_event"`
}

// AudioPayload is one base64 PCM fragment of agent speech
type AudioPayload struct {
	AudioBase64 string `json:"audio_base_64"`
	EventID     int    `json:"event_id"`
}

// AudioEvent carries agent speech
type AudioEvent struct {
	BaseEvent
	Audio AudioPayload `json:"audio_event"`
}

// InterruptionEvent signals that the user started speaking over the agent
type InterruptionEvent struct {
	BaseEvent
	Interruption struct {
		EventID int `json:"event_id"`
	} `json:"interruption_event"`
}

// UnknownEvent is returned for event types this client does not handle
type UnknownEvent struct {
	BaseEvent
}

// ParseEvent decodes one inbound frame into its typed event
func ParseEvent(data []byte) (Event, error) {
	var base BaseEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case EventTypeConversationInitiationMetadata:
		var event ConversationInitiationMetadataEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("invalid conversation initiation metadata event: %w", err)
		}
		return &event, nil

	case EventTypePing:
		var event PingEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("invalid ping event: %w", err)
		}
		if event.Ping.PingMs < 0 {
			event.Ping.PingMs = 0
		}
		return &event, nil

	case EventTypeUserTranscript:
		var event UserTranscriptEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("invalid user transcript event: %w", err)
		}
		return &event, nil

	case EventTypeAgentResponse:
		var event AgentResponseEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("invalid agent response event: %w", err)
		}
		return &event, nil

	case EventTypeAgentResponseCorrection:
		var event AgentResponseCorrectionEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("invalid agent response correction event: %w", err)
		}
		return &event, nil

	case EventTypeAudio:
		var event AudioEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("invalid audio event: %w", err)
		}
		if event.Audio.AudioBase64 == "" {
			return nil, fmt.Errorf("audio_base_64 is required")
		}
		return &event, nil

	case EventTypeInterruption:
		var event InterruptionEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("invalid interruption event: %w", err)
		}
		return &event, nil

	default:
		return &UnknownEvent{BaseEvent: base}, nil
	}
}

// ClientInitiationMessage opens the agent conversation
type ClientInitiationMessage struct {
	Type string `json:"type"`
}

// UserAudioChunkMessage carries one captured microphone frame
type UserAudioChunkMessage struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

// PongMessage answers a server ping
type PongMessage struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

// CreateClientInitiationMessage creates the handshake sent right after connecting
func CreateClientInitiationMessage() *ClientInitiationMessage {
	return &ClientInitiationMessage{Type: MessageTypeConversationInitiationClientData}
}

// CreateUserAudioChunkMessage wraps a base64 PCM16LE frame
func CreateUserAudioChunkMessage(audioBase64 string) *UserAudioChunkMessage {
	return &UserAudioChunkMessage{UserAudioChunk: audioBase64}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(eventID int) *PongMessage {
	return &PongMessage{
		Type:    MessageTypePong,
		EventID: eventID,
	}
}
