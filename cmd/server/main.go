package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/escal8/voiceagent/adapters/elevenlabs"
	"github.com/escal8/voiceagent/adapters/llm"
	"github.com/escal8/voiceagent/adapters/memory"
	"github.com/escal8/voiceagent/adapters/mongo"
	"github.com/escal8/voiceagent/adapters/mqtt"
	"github.com/escal8/voiceagent/adapters/stt"
	"github.com/escal8/voiceagent/adapters/tts"
	"github.com/escal8/voiceagent/domain/repositories"
	"github.com/escal8/voiceagent/internal/api"
	"github.com/escal8/voiceagent/internal/config"
	"github.com/escal8/voiceagent/internal/logging"
	"github.com/escal8/voiceagent/usecase"
)

func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	development := flag.Bool("dev", false, "human-readable logs")
	flag.Parse()

	cfg, err := config.LoadServer(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.LogLevel, *development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Initialize storage
	stores, closeStores, err := newStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer closeStores()

	// Initialize adapters
	convai, err := elevenlabs.NewConvAI(elevenlabs.Config{
		APIKey:     cfg.ElevenLabsAPIKey,
		APIBaseURL: cfg.ElevenLabsAPIBaseURL,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create ElevenLabs client", zap.Error(err))
	}

	textToSpeech, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
		APIKey:     cfg.ElevenLabsAPIKey,
		APIBaseURL: cfg.ElevenLabsAPIBaseURL,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create text-to-speech", zap.Error(err))
	}

	var chatModel repositories.LargeLanguageModel
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiLLM(ctx, llm.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create Gemini client", zap.Error(err))
		}
		chatModel = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, text chat uses fallback replies")
	}

	var speechToText repositories.SpeechToText
	if cfg.GoogleSpeech {
		google, err := stt.NewGoogleSpeechToText(ctx, logger)
		if err != nil {
			logger.Fatal("Failed to create speech-to-text", zap.Error(err))
		}
		defer google.Close()
		speechToText = google
	} else {
		logger.Warn("GOOGLE_APPLICATION_CREDENTIALS not set, speech-to-text is disabled")
	}

	var events repositories.EventPublisher = mqtt.NoopPublisher{}
	if cfg.MQTTBroker != "" {
		publisher, err := mqtt.NewPublisher(mqtt.Config{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create MQTT publisher", zap.Error(err))
		}
		defer publisher.Close()
		events = publisher
	}

	// Initialize usecase services
	conversationService := usecase.NewConversationService(
		stores, convai, chatModel, textToSpeech, speechToText, events,
		cfg.ElevenLabsBaseAgentID, logger)

	// Initialize API routes
	e := api.NewServer(conversationService, cfg.CORSOrigins, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.Storage))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newStores(ctx context.Context, cfg *config.Server, logger *zap.Logger) (usecase.Stores, func(), error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return usecase.Stores{
			Agents:        memory.NewAgentRepository(),
			Profiles:      memory.NewUserProfileRepository(),
			Conversations: memory.NewConversationRepository(),
			Messages:      memory.NewMessageRepository(),
		}, func() {}, nil
	}

	client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		return usecase.Stores{}, nil, err
	}
	if err := client.EnsureIndexes(ctx); err != nil {
		client.Close(context.Background())
		return usecase.Stores{}, nil, err
	}

	stores := usecase.Stores{
		Agents:        mongo.NewAgentRepository(client.Database),
		Profiles:      mongo.NewUserProfileRepository(client.Database),
		Conversations: mongo.NewConversationRepository(client.Database),
		Messages:      mongo.NewMessageRepository(client.Database),
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(ctx); err != nil {
			logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		}
	}
	return stores, closeFn, nil
}
