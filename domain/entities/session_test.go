package entities

import (
	"testing"
	"time"
)

func TestMessageLogAppend(t *testing.T) {
	log := NewMessageLog()
	now := time.Now()

	log.Append(MessageRoleUser, "Hello, I need help with my order", now)
	log.Append(MessageRoleAgent, "Sure, what is the order number?", now.Add(time.Second))

	if log.Len() != 2 {
		t.Fatalf("Expected 2 messages, got %d", log.Len())
	}

	messages := log.Snapshot()
	if messages[0].Role != MessageRoleUser {
		t.Errorf("Expected user role, got %s", messages[0].Role)
	}
	if messages[1].Text != "Sure, what is the order number?" {
		t.Errorf("Unexpected agent text %q", messages[1].Text)
	}
	if !messages[1].Timestamp.After(messages[0].Timestamp) {
		t.Error("Expected timestamps to keep append order")
	}
}

func TestMessageLogCorrectLastAgent(t *testing.T) {
	tests := []struct {
		name      string
		seed      []Message
		corrected string
		wantOK    bool
		wantTexts []string
	}{
		{
			name:      "empty log is unchanged",
			seed:      nil,
			corrected: "fixed",
			wantOK:    false,
			wantTexts: []string{},
		},
		{
			name: "only user messages is unchanged",
			seed: []Message{
				{Role: MessageRoleUser, Text: "hi"},
				{Role: MessageRoleUser, Text: "anyone there?"},
			},
			corrected: "fixed",
			wantOK:    false,
			wantTexts: []string{"hi", "anyone there?"},
		},
		{
			name: "latest agent message is corrected",
			seed: []Message{
				{Role: MessageRoleAgent, Text: "first"},
				{Role: MessageRoleUser, Text: "question"},
				{Role: MessageRoleAgent, Text: "second"},
				{Role: MessageRoleUser, Text: "interrupting"},
			},
			corrected: "second, shortened",
			wantOK:    true,
			wantTexts: []string{"first", "question", "second, shortened", "interrupting"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewMessageLog()
			for _, m := range tt.seed {
				log.Append(m.Role, m.Text, time.Now())
			}

			ok := log.CorrectLastAgent(tt.corrected)
			if ok != tt.wantOK {
				t.Errorf("CorrectLastAgent() = %v, want %v", ok, tt.wantOK)
			}

			got := log.Snapshot()
			if len(got) != len(tt.wantTexts) {
				t.Fatalf("Expected %d messages, got %d", len(tt.wantTexts), len(got))
			}
			for i, text := range tt.wantTexts {
				if got[i].Text != text {
					t.Errorf("message %d: expected %q, got %q", i, text, got[i].Text)
				}
			}
		})
	}
}

func TestMessageLogSnapshotIsCopy(t *testing.T) {
	log := NewMessageLog()
	log.Append(MessageRoleAgent, "original", time.Now())

	snapshot := log.Snapshot()
	snapshot[0].Text = "mutated"

	if log.Snapshot()[0].Text != "original" {
		t.Error("Expected snapshot mutation not to leak into the log")
	}
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		in   string
		want MessageRole
	}{
		{"user", MessageRoleUser},
		{"agent", MessageRoleAssistant},
		{"assistant", MessageRoleAssistant},
		{"", MessageRoleUser},
		{"system", MessageRoleUser},
	}
	for _, tt := range tests {
		if got := NormalizeRole(tt.in); got != tt.want {
			t.Errorf("NormalizeRole(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestConversationValidate(t *testing.T) {
	conv := &Conversation{UserID: "u1", AgentID: "a1", Channel: ChannelVoice}
	if err := conv.Validate(); err != nil {
		t.Errorf("Expected valid conversation, got %v", err)
	}

	conv.Channel = "fax"
	if err := conv.Validate(); err == nil {
		t.Error("Expected error for unknown channel")
	}

	conv.Channel = ChannelText
	if conv.IsEnded() {
		t.Error("Expected new conversation not to be ended")
	}
	conv.End(time.Now())
	if !conv.IsEnded() {
		t.Error("Expected conversation to be ended")
	}
}
