// Package backend is the HTTP client of the conversation REST API.
package backend

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

	"github.com/escal8/voiceagent/domain/entities"
	"github.com/escal8/voiceagent/domain/repositories"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4096
)

// Config holds configuration for the backend client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements ConversationBackend and AgentDirectory over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var (
	_ repositories.ConversationBackend = (*Client)(nil)
	_ repositories.AgentDirectory      = (*Client)(nil)
)

// StatusError is a non-2xx response from the backend
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a new backend client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// StartConversation opens a conversation record and returns its id
func (c *Client) StartConversation(ctx context.Context, agentID string, channel entities.Channel) (string, error) {
	request := map[string]string{
		"agent_id": agentID,
		"channel":  string(channel),
	}
	var response struct {
		ConversationID string `json:"conversation_id"`
		AgentName      string `json:"agent_name"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/conversations/start", request, &response); err != nil {
		return "", fmt.Errorf("failed to start conversation: %w", err)
	}
	if response.ConversationID == "" {
		return "", fmt.Errorf("failed to start conversation: empty conversation id")
	}

	c.logger.Debug("Conversation record created",
		zap.String("conversationID", response.ConversationID),
		zap.String("agentName", response.AgentName))
	return response.ConversationID, nil
}

// SignedURL fetches the signed stream URL for the agent
func (c *Client) SignedURL(ctx context.Context, agentID string) (string, error) {
	var response struct {
		SignedURL string `json:"signed_url"`
	}
	path := "/api/agents/" + url.PathEscape(agentID) + "/websocket-url"
	if err := c.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return "", fmt.Errorf("failed to get signed URL: %w", err)
	}
	return response.SignedURL, nil
}

// SaveMessage stores one finalized transcript line
func (c *Client) SaveMessage(ctx context.Context, conversationID string, role entities.MessageRole, text string) error {
	request := map[string]string{
		"conversation_id": conversationID,
		"message":         text,
		"role":            string(role),
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, request, nil); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// EndConversation marks the conversation ended
func (c *Client) EndConversation(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/end"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("failed to end conversation: %w", err)
	}
	return nil
}

// ListAgents returns the cloned agents known to the backend
func (c *Client) ListAgents(ctx context.Context) ([]entities.Agent, error) {
	var response struct {
		Agents []entities.Agent `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &response); err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return response.Agents, nil
}

// CloneAgent clones the base agent under a new name
func (c *Client) CloneAgent(ctx context.Context, name, extraPrompts string) (*repositories.CloneResult, error) {
	request := map[string]string{
		"agent_name":    name,
		"extra_prompts": extraPrompts,
	}
	var result repositories.CloneResult
	if err := c.do(ctx, http.MethodPost, "/api/agents/clone", request, &result); err != nil {
		return nil, fmt.Errorf("failed to clone agent: %w", err)
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
