package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/escal8/voiceagent/usecase"
)

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, service *usecase.ConversationService, logger *zap.Logger) {
	h := &handler{service: service, logger: logger}

	// Health check
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, StatusResponse{Message: "Escal8 - Backend API"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, StatusResponse{Status: "healthy"})
	})

	v1 := e.Group("/api")

	// Agent APIs
	v1.GET("/agents/base", h.getBaseAgent)
	v1.GET("/agents/:id/websocket-url", h.getSignedURL)
	v1.POST("/agents/clone", h.cloneAgent)
	v1.GET("/agents", h.listAgents)

	// Conversation APIs
	v1.POST("/conversations/start", h.startConversation)
	v1.POST("/conversations/:id/messages", h.sendMessage)
	v1.GET("/conversations/:id/messages", h.getMessages)
	v1.POST("/conversations/:id/end", h.endConversation)

	// Speech APIs
	v1.POST("/text-to-speech", h.textToSpeech)
	v1.POST("/speech-to-text", h.speechToText)
}
