package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/escal8/voiceagent/adapters/backend"
	"github.com/escal8/voiceagent/domain/entities"
	"github.com/escal8/voiceagent/internal/capture"
	"github.com/escal8/voiceagent/internal/config"
	"github.com/escal8/voiceagent/internal/conversation"
	"github.com/escal8/voiceagent/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func runTalk(ctx context.Context, cfg *config.Client, api *backend.Client, args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("talk", flag.ExitOnError)
	agentID := fs.String("agent", cfg.AgentID, "agent id")
	fs.Parse(args)

	mic, player, err := newDevices(logger)
	if err != nil {
		return err
	}

	client := conversation.NewClient(
		conversation.Config{
			AgentID:          *agentID,
			Channel:          entities.Channel(cfg.Channel),
			BootstrapTimeout: cfg.BootstrapTimeout,
			Capture: capture.Config{
				SampleRate:              cfg.Audio.SampleRate,
				FrameSize:               cfg.Audio.FrameSize,
				DisableEchoCancellation: cfg.Audio.EchoCancellation != nil && !*cfg.Audio.EchoCancellation,
				DisableNoiseSuppression: cfg.Audio.NoiseSuppression != nil && !*cfg.Audio.NoiseSuppression,
			},
		},
		api,
		websocket.NewDialer(logger),
		mic,
		player,
		conversation.AlertFunc(func(message string) {
			fmt.Fprintf(os.Stderr, "\n! %s\n", message)
		}),
		logger,
	)

	transcript := newTranscriptPrinter()
	client.OnStateChange(transcript.update)

	if err := client.StartConversation(ctx); err != nil {
		return err
	}
	fmt.Println("Connected. Speak into the microphone, press Ctrl+C to hang up.")

	select {
	case <-ctx.Done():
	case <-transcript.disconnected:
		fmt.Println("Conversation ended by the agent.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return client.Shutdown(shutdownCtx)
}

// transcriptPrinter prints finalized messages as they arrive
type transcriptPrinter struct {
	mu           sync.Mutex
	printed      int
	connected    bool
	once         sync.Once
	disconnected chan struct{}
}

func newTranscriptPrinter() *transcriptPrinter {
	return &transcriptPrinter{disconnected: make(chan struct{})}
}

func (p *transcriptPrinter) update(state conversation.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for ; p.printed < len(state.Messages); p.printed++ {
		message := state.Messages[p.printed]
		speaker := "You"
		if message.Role == entities.MessageRoleAgent {
			speaker = "Agent"
		}
		fmt.Printf("[%s] %s: %s\n", message.Timestamp.Format(time.TimeOnly), speaker, message.Text)
	}

	if state.Connected {
		p.connected = true
	} else if p.connected {
		p.once.Do(func() { close(p.disconnected) })
	}
}
