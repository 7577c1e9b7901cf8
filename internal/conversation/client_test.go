package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/escal8/voiceagent/domain/entities"
	"github.com/escal8/voiceagent/domain/repositories"
	"github.com/escal8/voiceagent/internal/audio"
	"github.com/escal8/voiceagent/internal/websocket"
)

type savedMessage struct {
	conversationID string
	role           entities.MessageRole
	text           string
}

type fakeBackend struct {
	mu             sync.Mutex
	conversationID string
	signedURL      string
	startErr       error
	saveErr        error
	saveDelay      map[string]time.Duration
	started        []string
	saved          []savedMessage
	ended          []string
	savedAtEnd     []int
}

func (b *fakeBackend) StartConversation(ctx context.Context, agentID string, channel entities.Channel) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, agentID)
	return b.conversationID, b.startErr
}

func (b *fakeBackend) SignedURL(ctx context.Context, agentID string) (string, error) {
	return b.signedURL, nil
}

func (b *fakeBackend) SaveMessage(ctx context.Context, conversationID string, role entities.MessageRole, text string) error {
	b.mu.Lock()
	delay := b.saveDelay[text]
	b.mu.Unlock()
	time.Sleep(delay)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, savedMessage{conversationID, role, text})
	return b.saveErr
}

func (b *fakeBackend) EndConversation(ctx context.Context, conversationID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = append(b.ended, conversationID)
	b.savedAtEnd = append(b.savedAtEnd, len(b.saved))
	return nil
}

func (b *fakeBackend) snapshot() ([]savedMessage, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]savedMessage(nil), b.saved...), append([]string(nil), b.ended...)
}

type sentFrame struct {
	at   time.Time
	body map[string]interface{}
}

type fakeConn struct {
	mu         sync.Mutex
	inbound    chan []byte
	done       chan struct{}
	open       bool
	sent       []sentFrame
	closes     int
	closeEvent repositories.CloseEvent
	endOnce    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 64),
		done:    make(chan struct{}),
		open:    true,
	}
}

func (c *fakeConn) Messages() <-chan []byte { return c.inbound }
func (c *fakeConn) Done() <-chan struct{}   { return c.done }

func (c *fakeConn) CloseEvent() repositories.CloseEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeEvent
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return websocket.ErrNotOpen
	}
	c.sent = append(c.sent, sentFrame{at: time.Now(), body: body})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.end(repositories.CloseEvent{Code: 1000, WasClean: true})
	return nil
}

// remoteClose simulates the peer ending the connection
func (c *fakeConn) remoteClose(event repositories.CloseEvent) {
	c.end(event)
}

func (c *fakeConn) end(event repositories.CloseEvent) {
	c.endOnce.Do(func() {
		c.mu.Lock()
		c.open = false
		c.closeEvent = event
		c.mu.Unlock()
		close(c.inbound)
		close(c.done)
	})
}

func (c *fakeConn) push(t *testing.T, event interface{}) {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	c.inbound <- data
}

func (c *fakeConn) frames() []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentFrame(nil), c.sent...)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeDialer struct {
	conn   *fakeConn
	dialed []string
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (repositories.StreamConn, error) {
	d.dialed = append(d.dialed, url)
	return d.conn, nil
}

type fakeStream struct {
	frames    chan []float32
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	closes    int
}

func (s *fakeStream) ReadFrame(frame []float32) (int, error) {
	select {
	case f := <-s.frames:
		return copy(frame, f), nil
	case <-s.closed:
		return 0, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type fakeMic struct {
	stream *fakeStream
	err    error
}

func (m *fakeMic) Open(ctx context.Context, config repositories.CaptureConfig) (repositories.AudioStream, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

type fakePlayer struct {
	mu      sync.Mutex
	started int
	block   bool
}

func (p *fakePlayer) Play(ctx context.Context, samples []float32, sampleRate int) error {
	p.mu.Lock()
	p.started++
	block := p.block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *recordingAlerter) Alert(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, message)
}

func (a *recordingAlerter) messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.alerts...)
}

type harness struct {
	client  *Client
	backend *fakeBackend
	dialer  *fakeDialer
	conn    *fakeConn
	stream  *fakeStream
	mic     *fakeMic
	player  *fakePlayer
	alerter *recordingAlerter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		backend: &fakeBackend{conversationID: "c1", signedURL: "wss://x"},
		conn:    newFakeConn(),
		stream:  &fakeStream{frames: make(chan []float32, 16), closed: make(chan struct{})},
		player:  &fakePlayer{},
		alerter: &recordingAlerter{},
	}
	h.dialer = &fakeDialer{conn: h.conn}
	h.mic = &fakeMic{stream: h.stream}
	h.client = NewClient(
		Config{AgentID: "a1", BootstrapTimeout: time.Second},
		h.backend, h.dialer, h.mic, h.player, h.alerter,
		zaptest.NewLogger(t),
	)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.client.Shutdown(ctx)
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.client.StartConversation(context.Background()); err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func pingEvent(eventID, pingMs int) map[string]interface{} {
	return map[string]interface{}{
		"type":       "ping",
		"ping_event": map[string]interface{}{"event_id": eventID, "ping_ms": pingMs},
	}
}

func userTranscript(text string) map[string]interface{} {
	return map[string]interface{}{
		"type":                     "user_transcript",
		"user_transcription_event": map[string]interface{}{"user_transcript": text},
	}
}

func agentResponse(text string) map[string]interface{} {
	return map[string]interface{}{
		"type":                 "agent_response",
		"agent_response_event": map[string]interface{}{"agent_response": text},
	}
}

func agentCorrection(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "agent_response_correction",
		"agent_response_correction_event": map[string]interface{}{
			"corrected_agent_response": text,
		},
	}
}

func audioEvent(eventID int) map[string]interface{} {
	return map[string]interface{}{
		"type": "audio",
		"audio_event": map[string]interface{}{
			"audio_base_64": audio.EncodeFrame([]float32{0.1, -0.1, 0.2, -0.2}),
			"event_id":      eventID,
		},
	}
}

func TestStartConversationSendsInitiationBeforeAudio(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	if len(h.dialer.dialed) != 1 || h.dialer.dialed[0] != "wss://x" {
		t.Fatalf("dialed %v, want [wss://x]", h.dialer.dialed)
	}

	h.stream.frames <- make([]float32, audio.FrameSize)
	h.stream.frames <- make([]float32, audio.FrameSize)
	waitFor(t, "audio chunks", func() bool { return len(h.conn.frames()) >= 3 })

	frames := h.conn.frames()
	if frames[0].body["type"] != websocket.MessageTypeConversationInitiationClientData {
		t.Fatalf("first frame = %v, want initiation", frames[0].body)
	}
	initiations := 0
	for i, f := range frames {
		if f.body["type"] == websocket.MessageTypeConversationInitiationClientData {
			initiations++
			continue
		}
		if _, ok := f.body["user_audio_chunk"]; !ok {
			t.Errorf("frame %d = %v, want user_audio_chunk", i, f.body)
		}
	}
	if initiations != 1 {
		t.Errorf("initiation sent %d times, want 1", initiations)
	}

	state := h.client.State()
	if !state.Connected || !state.Streaming {
		t.Errorf("state = %+v, want connected and streaming", state)
	}
	if state.ConversationID != "c1" {
		t.Errorf("ConversationID = %q, want c1", state.ConversationID)
	}
}

func TestStartConversationRejectsSecondSession(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	if err := h.client.StartConversation(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second start err = %v, want ErrSessionActive", err)
	}
}

func TestStartConversationRequiresAgent(t *testing.T) {
	h := newHarness(t)
	h.client.config.AgentID = ""

	if err := h.client.StartConversation(context.Background()); !errors.Is(err, ErrAgentRequired) {
		t.Fatalf("err = %v, want ErrAgentRequired", err)
	}
	if len(h.backend.started) != 0 {
		t.Errorf("backend called %d times, want 0", len(h.backend.started))
	}
}

func TestStartConversationFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		wantAlert string
		wantClose int
		wantEnded []string
	}{
		{
			name:      "backend unreachable",
			setup:     func(h *harness) { h.backend.startErr = errors.New("connection refused") },
			wantAlert: AlertStartFailed,
		},
		{
			name:      "microphone denied",
			setup:     func(h *harness) { h.mic.err = errors.New("permission denied") },
			wantAlert: AlertMicrophone,
			wantClose: 1,
			wantEnded: []string{"c1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			if err := h.client.StartConversation(context.Background()); err == nil {
				t.Fatal("expected error")
			}

			alerts := h.alerter.messages()
			if len(alerts) != 1 || alerts[0] != tt.wantAlert {
				t.Errorf("alerts = %v, want [%s]", alerts, tt.wantAlert)
			}
			if got := h.conn.closeCount(); got != tt.wantClose {
				t.Errorf("conn closed %d times, want %d", got, tt.wantClose)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := h.client.Shutdown(ctx); err != nil {
				t.Fatalf("Shutdown failed: %v", err)
			}
			if _, ended := h.backend.snapshot(); len(ended) != len(tt.wantEnded) {
				t.Errorf("ended = %v, want %v", ended, tt.wantEnded)
			}

			state := h.client.State()
			if state.Connected || state.Streaming {
				t.Errorf("state = %+v, want idle", state)
			}
		})
	}
}

func TestPingIsAnsweredAfterDelay(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	pushed := time.Now()
	h.conn.push(t, pingEvent(7, 100))

	time.Sleep(50 * time.Millisecond)
	for _, f := range h.conn.frames() {
		if f.body["type"] == "pong" {
			t.Fatal("pong sent before the requested delay")
		}
	}

	var pongs []sentFrame
	waitFor(t, "pong", func() bool {
		pongs = pongs[:0]
		for _, f := range h.conn.frames() {
			if f.body["type"] == "pong" {
				pongs = append(pongs, f)
			}
		}
		return len(pongs) > 0
	})

	time.Sleep(150 * time.Millisecond)
	count := 0
	for _, f := range h.conn.frames() {
		if f.body["type"] == "pong" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("sent %d pongs, want 1", count)
	}
	if id := pongs[0].body["event_id"]; id != float64(7) {
		t.Errorf("event_id = %v, want 7", id)
	}
	if elapsed := pongs[0].at.Sub(pushed); elapsed < 100*time.Millisecond {
		t.Errorf("pong sent after %v, want at least 100ms", elapsed)
	}
}

func TestPingDoesNotBlockDispatch(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.conn.push(t, pingEvent(1, 1000))
	h.conn.push(t, userTranscript("hello"))

	waitFor(t, "transcript", func() bool {
		return h.client.State().CurrentUserTranscript == "hello"
	})
}

func TestPendingPongIsCancelledOnStop(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.conn.push(t, pingEvent(3, 100))
	h.conn.push(t, userTranscript("sync"))
	waitFor(t, "dispatch", func() bool { return h.client.State().CurrentUserTranscript == "sync" })

	h.client.StopConversation()
	time.Sleep(200 * time.Millisecond)

	for _, f := range h.conn.frames() {
		if f.body["type"] == "pong" {
			t.Fatal("pong sent after stop")
		}
	}
}

func TestTranscriptsAndCorrection(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.conn.push(t, userTranscript("Hi"))
	h.conn.push(t, agentResponse("Hello, how can I help you today?"))
	h.conn.push(t, agentCorrection("Hello"))

	waitFor(t, "correction", func() bool { return h.client.State().CurrentAgentResponse == "Hello" })

	messages := h.client.State().Messages
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Role != entities.MessageRoleUser || messages[0].Text != "Hi" {
		t.Errorf("messages[0] = %+v", messages[0])
	}
	if messages[1].Role != entities.MessageRoleAgent || messages[1].Text != "Hello" {
		t.Errorf("messages[1] = %+v", messages[1])
	}

	waitFor(t, "persistence", func() bool {
		saved, _ := h.backend.snapshot()
		return len(saved) == 2
	})
	saved, _ := h.backend.snapshot()
	want := []savedMessage{
		{"c1", entities.MessageRoleUser, "Hi"},
		{"c1", entities.MessageRoleAgent, "Hello, how can I help you today?"},
	}
	for i := range want {
		if saved[i] != want[i] {
			t.Errorf("saved[%d] = %+v, want %+v", i, saved[i], want[i])
		}
	}
}

func TestMessagesAreSavedInArrivalOrder(t *testing.T) {
	h := newHarness(t)
	h.backend.saveDelay = map[string]time.Duration{
		"first":  60 * time.Millisecond,
		"second": 30 * time.Millisecond,
	}
	h.start(t)

	h.conn.push(t, userTranscript("first"))
	h.conn.push(t, agentResponse("second"))
	h.conn.push(t, userTranscript("third"))
	h.conn.push(t, agentResponse("fourth"))
	waitFor(t, "messages", func() bool { return len(h.client.State().Messages) == 4 })

	h.client.StopConversation()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.client.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	saved, ended := h.backend.snapshot()
	want := []savedMessage{
		{"c1", entities.MessageRoleUser, "first"},
		{"c1", entities.MessageRoleAgent, "second"},
		{"c1", entities.MessageRoleUser, "third"},
		{"c1", entities.MessageRoleAgent, "fourth"},
	}
	if len(saved) != len(want) {
		t.Fatalf("saved %d messages, want %d", len(saved), len(want))
	}
	for i := range want {
		if saved[i] != want[i] {
			t.Errorf("saved[%d] = %+v, want %+v", i, saved[i], want[i])
		}
	}

	if len(ended) != 1 || ended[0] != "c1" {
		t.Fatalf("ended = %v, want [c1]", ended)
	}
	h.backend.mu.Lock()
	savedAtEnd := h.backend.savedAtEnd[0]
	h.backend.mu.Unlock()
	if savedAtEnd != len(want) {
		t.Errorf("conversation ended after %d saves, want %d", savedAtEnd, len(want))
	}
}

func TestCorrectionWithoutAgentMessage(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.conn.push(t, userTranscript("Hi"))
	h.conn.push(t, agentCorrection("nothing to fix"))
	waitFor(t, "correction", func() bool { return h.client.State().CurrentAgentResponse == "nothing to fix" })

	messages := h.client.State().Messages
	if len(messages) != 1 || messages[0].Text != "Hi" {
		t.Fatalf("messages = %+v, want only the user message", messages)
	}
}

func TestPersistenceFailureIsNotSurfaced(t *testing.T) {
	h := newHarness(t)
	h.backend.saveErr = errors.New("backend down")
	h.start(t)

	h.conn.push(t, agentResponse("still here"))
	waitFor(t, "message", func() bool { return len(h.client.State().Messages) == 1 })
	waitFor(t, "save attempt", func() bool {
		saved, _ := h.backend.snapshot()
		return len(saved) == 1
	})

	if alerts := h.alerter.messages(); len(alerts) != 0 {
		t.Errorf("alerts = %v, want none", alerts)
	}
}

func TestInterruptionFlushesPlayback(t *testing.T) {
	h := newHarness(t)
	h.player.block = true
	h.start(t)

	h.conn.push(t, audioEvent(1))
	h.conn.push(t, audioEvent(2))
	h.conn.push(t, audioEvent(3))
	waitFor(t, "playback start", func() bool { return h.player.count() == 1 })

	h.conn.push(t, map[string]interface{}{"type": "interruption"})
	h.conn.push(t, userTranscript("sync"))
	waitFor(t, "dispatch", func() bool { return h.client.State().CurrentUserTranscript == "sync" })

	time.Sleep(50 * time.Millisecond)
	if got := h.player.count(); got != 1 {
		t.Errorf("played %d fragments after interruption, want 1", got)
	}
}

func TestMetadataSetsAudioFormat(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.conn.push(t, map[string]interface{}{
		"type": "conversation_initiation_metadata",
		"conversation_initiation_metadata_event": map[string]interface{}{
			"conversation_id":           "el-1",
			"agent_output_audio_format": "pcm_22050",
		},
	})
	waitFor(t, "format", func() bool { return h.client.State().AudioFormat == "pcm_22050" })
}

func TestStopConversationIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.client.StopConversation()
	h.client.StopConversation()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.client.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if got := h.conn.closeCount(); got != 1 {
		t.Errorf("conn closed %d times, want 1", got)
	}
	if _, ended := h.backend.snapshot(); len(ended) != 1 || ended[0] != "c1" {
		t.Errorf("ended = %v, want [c1]", ended)
	}
	h.stream.mu.Lock()
	closes := h.stream.closes
	h.stream.mu.Unlock()
	if closes != 1 {
		t.Errorf("microphone closed %d times, want 1", closes)
	}

	state := h.client.State()
	if state.Connected || state.Streaming {
		t.Errorf("state = %+v, want idle", state)
	}
}

func TestStopWithoutSession(t *testing.T) {
	h := newHarness(t)
	h.client.StopConversation()

	if got := h.conn.closeCount(); got != 0 {
		t.Errorf("conn closed %d times, want 0", got)
	}
}

func TestRemoteClose(t *testing.T) {
	tests := []struct {
		name      string
		event     repositories.CloseEvent
		wantAlert string
	}{
		{
			name:      "unclean without reason",
			event:     repositories.CloseEvent{Code: 1006},
			wantAlert: "Connection lost: Unknown error (Code: 1006)",
		},
		{
			name:      "unclean with reason",
			event:     repositories.CloseEvent{Code: 1011, Reason: "server error"},
			wantAlert: "Connection lost: server error (Code: 1011)",
		},
		{
			name:  "clean",
			event: repositories.CloseEvent{Code: 1000, WasClean: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.start(t)

			h.conn.remoteClose(tt.event)
			waitFor(t, "teardown", func() bool {
				_, ended := h.backend.snapshot()
				return len(ended) > 0
			})
			if tt.wantAlert != "" {
				waitFor(t, "alert", func() bool { return len(h.alerter.messages()) > 0 })
			}

			state := h.client.State()
			if state.Connected || state.Streaming {
				t.Errorf("state = %+v, want idle", state)
			}

			alerts := h.alerter.messages()
			if tt.wantAlert == "" && len(alerts) != 0 {
				t.Errorf("alerts = %v, want none", alerts)
			}
			if tt.wantAlert != "" && (len(alerts) != 1 || alerts[0] != tt.wantAlert) {
				t.Errorf("alerts = %v, want [%s]", alerts, tt.wantAlert)
			}
			if _, ended := h.backend.snapshot(); len(ended) != 1 {
				t.Errorf("ended = %v, want one call", ended)
			}
		})
	}
}

func TestEventsAfterStopAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.client.mu.Lock()
	s := h.client.active
	h.client.mu.Unlock()

	h.client.StopConversation()

	event, err := websocket.ParseEvent([]byte(`{"type":"user_transcript","user_transcription_event":{"user_transcript":"late"}}`))
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if h.client.handleEvent(s, event) {
		t.Error("stale event reported a state change")
	}
	if got := len(h.client.State().Messages); got != 0 {
		t.Errorf("got %d messages, want 0", got)
	}
}

func TestStateListener(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var states []State
	h.client.OnStateChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})

	h.start(t)
	h.conn.push(t, userTranscript("one"))
	waitFor(t, "listener", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) > 0 && states[len(states)-1].CurrentUserTranscript == "one"
	})

	mu.Lock()
	first := states[0]
	mu.Unlock()
	if !first.Connected {
		t.Errorf("first state = %+v, want connected", first)
	}
}

func ExampleAlertFunc() {
	alerter := AlertFunc(func(message string) { fmt.Println(message) })
	alerter.Alert(AlertStartFailed)
	// Output: Failed to start conversation. Please try again.
}
