package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/escal8/voiceagent/adapters/elevenlabs"
	"github.com/escal8/voiceagent/adapters/stt"
	"github.com/escal8/voiceagent/domain/entities"
	"github.com/escal8/voiceagent/domain/repositories"
	"github.com/escal8/voiceagent/usecase"
)

const (
	defaultVoiceID = "SOYHLrjzK2X1ezoPC6cr"
	maxUploadSize  = 25 << 20
)

type handler struct {
	service *usecase.ConversationService
	logger  *zap.Logger
}

func (h *handler) getBaseAgent(c echo.Context) error {
	agent, err := h.service.BaseAgent(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "Failed to fetch base agent", "")
	}
	return c.JSON(http.StatusOK, BaseAgentResponse{AgentID: agent.AgentID, Name: agent.Name})
}

func (h *handler) getSignedURL(c echo.Context) error {
	signedURL, err := h.service.SignedURL(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err, "Failed to get signed URL", "")
	}
	return c.JSON(http.StatusOK, SignedURLResponse{SignedURL: signedURL})
}

func (h *handler) cloneAgent(c echo.Context) error {
	var req CloneAgentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}

	result, err := h.service.CloneAgent(c.Request().Context(), usecase.CloneAgentInput{
		Name:         req.AgentName,
		ExtraPrompts: req.ExtraPrompts,
		UserID:       req.UserID,
	})
	if err != nil {
		return h.fail(c, err, "Failed to clone agent", "")
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) listAgents(c echo.Context) error {
	agents, err := h.service.ListAgents(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "Failed to list agents", "")
	}
	return c.JSON(http.StatusOK, map[string][]*entities.Agent{"agents": agents})
}

func (h *handler) startConversation(c echo.Context) error {
	var req StartConversationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}

	result, err := h.service.StartConversation(c.Request().Context(), usecase.StartConversationInput{
		AgentID: req.AgentID,
		UserID:  req.UserID,
		Channel: entities.Channel(req.Channel),
	})
	if err != nil {
		return h.fail(c, err, "Failed to start conversation", "Agent not found")
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) sendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}

	result, err := h.service.SendMessage(c.Request().Context(), usecase.SendMessageInput{
		ConversationID: c.Param("id"),
		Role:           req.Role,
		Text:           req.Message,
	})
	if err != nil {
		return h.fail(c, err, "Failed to send message", "Conversation not found")
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) getMessages(c echo.Context) error {
	messages, err := h.service.Messages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err, "Failed to load messages", "Conversation not found")
	}
	return c.JSON(http.StatusOK, map[string][]*entities.ConversationMessage{"messages": messages})
}

func (h *handler) endConversation(c echo.Context) error {
	if err := h.service.EndConversation(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, err, "Failed to end conversation", "Conversation not found")
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *handler) textToSpeech(c echo.Context) error {
	voiceID := c.QueryParam("voice_id")
	if voiceID == "" {
		voiceID = defaultVoiceID
	}

	audio, err := h.service.TextToSpeech(c.Request().Context(), c.QueryParam("text"), voiceID)
	if err != nil {
		return h.fail(c, err, "TTS Error", "")
	}

	c.Response().Header().Set("Content-Disposition", "inline; filename=speech.mp3")
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

func (h *handler) speechToText(c echo.Context) error {
	header, err := c.FormFile("audio_file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "audio_file is required",
		})
	}

	file, err := header.Open()
	if err != nil {
		return h.fail(c, err, "STT Error", "")
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		return h.fail(c, err, "STT Error", "")
	}

	result := h.service.SpeechToText(c.Request().Context(), audio, repositories.AudioConfig{
		Encoding: stt.EncodingForFilename(header.Filename),
	})
	return c.JSON(http.StatusOK, result)
}

// fail maps a service error onto an ErrorResponse. notFound is the message
// used for missing records.
func (h *handler) fail(c echo.Context, err error, message, notFound string) error {
	var apiErr *elevenlabs.APIError
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		if notFound == "" {
			notFound = "Not found"
		}
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: notFound})
	case errors.Is(err, usecase.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
	case errors.As(err, &apiErr):
		h.logger.Warn(message, zap.Int("statusCode", apiErr.StatusCode), zap.Error(err))
		return c.JSON(apiErr.StatusCode, ErrorResponse{Error: "upstream_error", Message: message})
	}

	h.logger.Error(message, zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: message + ": " + err.Error(),
	})
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: "Invalid request format",
	})
}
