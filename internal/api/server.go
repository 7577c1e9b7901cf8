package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/escal8/voiceagent/usecase"
)

// DefaultCORSOrigins are the local frontends allowed when none are configured
var DefaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// NewServer creates the echo instance with middleware and all routes
func NewServer(service *usecase.ConversationService, corsOrigins []string, logger *zap.Logger) *echo.Echo {
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("Request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     corsOrigins,
		AllowCredentials: true,
		AllowHeaders:     []string{"*"},
	}))

	InitRoutes(e, service, logger)
	return e
}
