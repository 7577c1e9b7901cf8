package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/escal8/voiceagent/adapters/audio"
	"github.com/escal8/voiceagent/adapters/backend"
	"github.com/escal8/voiceagent/internal/config"
	"github.com/escal8/voiceagent/internal/logging"
)

const usage = `Usage: voiceagent [-config file] <command> [flags]

Commands:
  talk    -agent <id>                     hold a live voice conversation
  agents                                  list cloned agents
  clone   -name <name> [-prompts <text>]  clone the base agent
`

func main() {
	configPath := flag.String("config", os.Getenv("VOICEAGENT_CONFIG"), "client YAML config file")
	development := flag.Bool("dev", true, "human-readable logs")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, *development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	api, err := backend.NewClient(backend.Config{BaseURL: cfg.APIURL}, logger)
	if err != nil {
		logger.Fatal("Failed to create backend client", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, args := flag.Arg(0), flag.Args()[1:]
	switch command {
	case "talk":
		err = runTalk(ctx, cfg, api, args, logger)
	case "agents":
		err = runAgents(ctx, api)
	case "clone":
		err = runClone(ctx, api, args)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("Command failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

func runAgents(ctx context.Context, api *backend.Client) error {
	agents, err := api.ListAgents(ctx)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("No agents yet. Create one with: voiceagent clone -name <name>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT ID\tNAME\tCREATED")
	for _, agent := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\n", agent.ElevenLabsAgentID, agent.Name, agent.CreatedAt.Format(time.DateTime))
	}
	return w.Flush()
}

func runClone(ctx context.Context, api *backend.Client, args []string) error {
	fs := flag.NewFlagSet("clone", flag.ExitOnError)
	name := fs.String("name", "", "agent name")
	prompts := fs.String("prompts", "", "extra instructions for the agent")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	result, err := api.CloneAgent(ctx, *name, *prompts)
	if err != nil {
		return err
	}
	fmt.Printf("Cloned %s as %s\n%s\n", result.Name, result.AgentID, result.Message)
	return nil
}

func newDevices(logger *zap.Logger) (*audio.FFmpegMicrophone, *audio.FFplayPlayer, error) {
	player, err := audio.NewFFplayPlayer(logger)
	if err != nil {
		return nil, nil, err
	}
	return audio.NewFFmpegMicrophone(logger), player, nil
}
