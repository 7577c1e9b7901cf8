// Package elevenlabs talks to the ElevenLabs conversational AI API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/escal8/voiceagent/domain/repositories"
)

const (
	defaultAPIBaseURL = "https://api.elevenlabs.io/v1"
	defaultTimeout    = 15 * time.Second
	baseAgentName     = "Base Agent"
)

// Config holds configuration for the ConvAI adapter
type Config struct {
	APIKey     string
	APIBaseURL string
	Timeout    time.Duration
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	return nil
}

// ConvAI implements ConversationalAI over the ElevenLabs REST API
type ConvAI struct {
	apiKey     string
	apiBaseURL string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.ConversationalAI = (*ConvAI)(nil)

// NewConvAI creates a new ElevenLabs conversational AI client
func NewConvAI(config Config, logger *zap.Logger) (*ConvAI, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
		logger.Info("Using default API base URL", zap.String("apiBaseURL", apiBaseURL))
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &ConvAI{
		apiKey:     config.APIKey,
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// APIError is a non-2xx response from ElevenLabs
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eleven labs API returned %d: %s", e.StatusCode, e.Body)
}

// SignedURL returns a signed streaming URL for the agent
func (c *ConvAI) SignedURL(ctx context.Context, agentID string) (string, error) {
	if agentID == "" {
		return "", fmt.Errorf("agent id is required")
	}

	var response struct {
		SignedURL string `json:"signed_url"`
	}
	path := "/convai/conversation/get-signed-url?agent_id=" + url.QueryEscape(agentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return "", fmt.Errorf("failed to get signed URL: %w", err)
	}
	if response.SignedURL == "" {
		return "", fmt.Errorf("failed to get signed URL: empty signed_url in response")
	}

	c.logger.Debug("Obtained signed URL", zap.String("agentID", agentID))
	return response.SignedURL, nil
}

// GetAgent fetches the agent configuration
func (c *ConvAI) GetAgent(ctx context.Context, agentID string) (*repositories.AgentInfo, error) {
	var info repositories.AgentInfo
	if err := c.do(ctx, http.MethodGet, "/convai/agents/"+url.PathEscape(agentID), nil, &info); err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if info.AgentID == "" {
		info.AgentID = agentID
	}
	if info.Name == "" {
		info.Name = baseAgentName
	}
	return &info, nil
}

// DuplicateAgent copies agentID under name and returns the new agent id
func (c *ConvAI) DuplicateAgent(ctx context.Context, agentID, name string) (string, error) {
	request := map[string]string{"name": name}

	var response struct {
		AgentID string `json:"agent_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/convai/agents/"+url.PathEscape(agentID)+"/duplicate", request, &response); err != nil {
		return "", fmt.Errorf("failed to duplicate agent: %w", err)
	}
	if response.AgentID == "" {
		return "", fmt.Errorf("failed to duplicate agent: empty agent_id in response")
	}

	c.logger.Info("Duplicated agent",
		zap.String("sourceAgentID", agentID),
		zap.String("agentID", response.AgentID),
		zap.String("name", name))
	return response.AgentID, nil
}

func (c *ConvAI) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(errorBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
