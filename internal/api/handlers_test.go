package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/escal8/voiceagent/adapters/elevenlabs"
	"github.com/escal8/voiceagent/adapters/memory"
	"github.com/escal8/voiceagent/domain/entities"
	"github.com/escal8/voiceagent/domain/repositories"
	"github.com/escal8/voiceagent/usecase"
)

type fakeConvAI struct {
	signedErr error
}

func (f *fakeConvAI) SignedURL(ctx context.Context, agentID string) (string, error) {
	if f.signedErr != nil {
		return "", f.signedErr
	}
	return "wss://stream.example/convai?token=abc&agent_id=" + agentID, nil
}

func (f *fakeConvAI) GetAgent(ctx context.Context, agentID string) (*repositories.AgentInfo, error) {
	return &repositories.AgentInfo{AgentID: agentID, Name: "Base Agent"}, nil
}

func (f *fakeConvAI) DuplicateAgent(ctx context.Context, agentID, name string) (string, error) {
	return "el-new", nil
}

type fakeTTS struct{}

func (fakeTTS) ConvertTextToSpeech(ctx context.Context, text string, opts repositories.SpeechOptions) (<-chan []byte, error) {
	ch := make(chan []byte, 1)
	ch <- []byte("mp3:" + opts.VoiceID)
	close(ch)
	return ch, nil
}

type testServer struct {
	t      *testing.T
	handle http.Handler
	convai *fakeConvAI
	agents *memory.AgentRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	agents := memory.NewAgentRepository()
	convai := &fakeConvAI{}
	service := usecase.NewConversationService(usecase.Stores{
		Agents:        agents,
		Profiles:      memory.NewUserProfileRepository(),
		Conversations: memory.NewConversationRepository(),
		Messages:      memory.NewMessageRepository(),
	}, convai, nil, fakeTTS{}, nil, nil, "agent_base", logger)

	return &testServer{
		t:      t,
		handle: NewServer(service, nil, logger),
		convai: convai,
		agents: agents,
	}
}

func (s *testServer) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handle.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
}

func (s *testServer) seedAgent() {
	s.t.Helper()
	err := s.agents.Create(context.Background(), &entities.Agent{ElevenLabsAgentID: "el-1", BaseAgentID: "agent_base", Name: "Ana"})
	if err != nil {
		s.t.Fatalf("seed agent: %v", err)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/", "/health"} {
		rec := s.do(http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s returned %d", path, rec.Code)
		}
	}

	var status StatusResponse
	decode(t, s.do(http.MethodGet, "/health", nil), &status)
	if status.Status != "healthy" {
		t.Errorf("Expected healthy, got %+v", status)
	}
}

func TestAgentRoutes(t *testing.T) {
	s := newTestServer(t)

	var base BaseAgentResponse
	decode(t, s.do(http.MethodGet, "/api/agents/base", nil), &base)
	if base.AgentID != "agent_base" || base.Name != "Base Agent" {
		t.Errorf("Unexpected base agent %+v", base)
	}

	var signed SignedURLResponse
	decode(t, s.do(http.MethodGet, "/api/agents/el-1/websocket-url", nil), &signed)
	if !strings.HasSuffix(signed.SignedURL, "agent_id=el-1") {
		t.Errorf("Unexpected signed url %s", signed.SignedURL)
	}

	rec := s.do(http.MethodPost, "/api/agents/clone", CloneAgentRequest{AgentName: "Ana", ExtraPrompts: "Be brief"})
	if rec.Code != http.StatusOK {
		t.Fatalf("clone returned %d: %s", rec.Code, rec.Body.String())
	}
	var cloned repositories.CloneResult
	decode(t, rec, &cloned)
	if cloned.AgentID != "el-new" || cloned.DBID == "" {
		t.Errorf("Unexpected clone result %+v", cloned)
	}

	var list struct {
		Agents []entities.Agent `json:"agents"`
	}
	decode(t, s.do(http.MethodGet, "/api/agents", nil), &list)
	if len(list.Agents) != 1 || list.Agents[0].ExtraPrompts != "Be brief" {
		t.Errorf("Unexpected agents %+v", list.Agents)
	}

	rec = s.do(http.MethodPost, "/api/agents/clone", CloneAgentRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing name, got %d", rec.Code)
	}
}

func TestSignedURLUpstreamError(t *testing.T) {
	s := newTestServer(t)
	s.convai.signedErr = &elevenlabs.APIError{StatusCode: http.StatusUnauthorized, Body: "invalid key"}

	rec := s.do(http.MethodGet, "/api/agents/el-1/websocket-url", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected upstream status 401, got %d", rec.Code)
	}
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.seedAgent()

	rec := s.do(http.MethodPost, "/api/conversations/start", StartConversationRequest{AgentID: "el-1", Channel: "voice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start returned %d: %s", rec.Code, rec.Body.String())
	}
	var started usecase.StartConversationResult
	decode(t, rec, &started)
	if started.ConversationID == "" || started.AgentName != "Ana" {
		t.Fatalf("Unexpected start result %+v", started)
	}

	base := "/api/conversations/" + started.ConversationID
	for _, m := range []SendMessageRequest{
		{Message: "Hi there", Role: "user"},
		{Message: "Hello! How can I help?", Role: "agent"},
	} {
		m.ConversationID = started.ConversationID
		if rec := s.do(http.MethodPost, base+"/messages", m); rec.Code != http.StatusOK {
			t.Fatalf("send returned %d: %s", rec.Code, rec.Body.String())
		}
	}

	var listed struct {
		Messages []entities.ConversationMessage `json:"messages"`
	}
	decode(t, s.do(http.MethodGet, base+"/messages", nil), &listed)
	if len(listed.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(listed.Messages))
	}
	if listed.Messages[0].Role != entities.MessageRoleUser || listed.Messages[1].Role != entities.MessageRoleAssistant {
		t.Errorf("Unexpected roles %s, %s", listed.Messages[0].Role, listed.Messages[1].Role)
	}

	var ended SuccessResponse
	decode(t, s.do(http.MethodPost, base+"/end", nil), &ended)
	if !ended.Success {
		t.Error("Expected success")
	}
}

func TestTextChatReply(t *testing.T) {
	s := newTestServer(t)
	s.seedAgent()

	var started usecase.StartConversationResult
	decode(t, s.do(http.MethodPost, "/api/conversations/start", StartConversationRequest{AgentID: "el-1"}), &started)

	var sent struct {
		UserMessage      *entities.ConversationMessage `json:"user_message"`
		AssistantMessage *entities.ConversationMessage `json:"assistant_message"`
	}
	decode(t, s.do(http.MethodPost, "/api/conversations/"+started.ConversationID+"/messages",
		SendMessageRequest{ConversationID: started.ConversationID, Message: "refund"}), &sent)

	if sent.UserMessage == nil || sent.UserMessage.ContentText != "refund" {
		t.Errorf("Unexpected user message %+v", sent.UserMessage)
	}
	if sent.AssistantMessage == nil || !strings.Contains(sent.AssistantMessage.ContentText, "'refund'") {
		t.Errorf("Unexpected assistant message %+v", sent.AssistantMessage)
	}
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		method  string
		path    string
		body    interface{}
		message string
	}{
		{"unknown agent", http.MethodPost, "/api/conversations/start", StartConversationRequest{AgentID: "nope"}, "Agent not found"},
		{"send to unknown conversation", http.MethodPost, "/api/conversations/c404/messages", SendMessageRequest{Message: "hi"}, "Conversation not found"},
		{"end unknown conversation", http.MethodPost, "/api/conversations/c404/end", nil, "Conversation not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.body)
			if rec.Code != http.StatusNotFound {
				t.Fatalf("Expected 404, got %d: %s", rec.Code, rec.Body.String())
			}
			var resp ErrorResponse
			decode(t, rec, &resp)
			if resp.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, resp.Message)
			}
		})
	}
}

func TestTextToSpeech(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/text-to-speech?text=hello", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Unexpected content type %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "inline; filename=speech.mp3" {
		t.Errorf("Unexpected disposition %s", cd)
	}
	if rec.Body.String() != "mp3:"+defaultVoiceID {
		t.Errorf("Unexpected body %q", rec.Body.String())
	}

	if rec := s.do(http.MethodPost, "/api/text-to-speech", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without text, got %d", rec.Code)
	}
}

func TestSpeechToTextFallback(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio_file", "clip.webm")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte{0x1a, 0x45, 0xdf, 0xa3})
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/speech-to-text", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.handle.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result usecase.SpeechToTextResult
	decode(t, rec, &result)
	if result.Success || result.Text != usecase.STTFallbackText {
		t.Errorf("Unexpected result %+v", result)
	}

	if rec := s.do(http.MethodPost, "/api/speech-to-text", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a file, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/agents", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.handle.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Expected allowed origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.handle.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no allowed origin, got %q", got)
	}
}
