package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chartvoice/chartvoice/pkg/agent"
	"github.com/chartvoice/chartvoice/pkg/audio"
	"github.com/chartvoice/chartvoice/pkg/chart"
	"github.com/chartvoice/chartvoice/pkg/chart/parse"
	"github.com/chartvoice/chartvoice/pkg/config"
	"github.com/chartvoice/chartvoice/pkg/marketdata"
	"github.com/chartvoice/chartvoice/pkg/orchestrator"
	"github.com/chartvoice/chartvoice/pkg/realtime"
)

var talkOpts struct {
	realtimeURL        string
	signedURLEndpoint  string
	transcriptEndpoint string
	noMic              bool
	noSpeaker          bool
}

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Start a voice conversation driving the chart",
	Long: `Start a realtime voice session. Microphone audio streams to the provider,
assistant audio plays through ffplay, and finalized user turns are answered
by the configured agent backend. Chart operations are emitted as JSON lines
on stdout. Typed lines on stdin are sent as text turns; Ctrl-D or "exit"
ends the session.`,
	RunE: runTalk,
}

func init() {
	talkCmd.Flags().StringVar(&talkOpts.realtimeURL, "realtime-url", "", "Realtime session websocket URL")
	talkCmd.Flags().StringVar(&talkOpts.signedURLEndpoint, "signed-url-endpoint", "", "HTTP endpoint minting signed session URLs (alternative to --realtime-url)")
	talkCmd.Flags().StringVar(&talkOpts.transcriptEndpoint, "transcript-endpoint", "", "Optional endpoint receiving finalized transcript turns")
	talkCmd.Flags().BoolVar(&talkOpts.noMic, "no-mic", false, "Do not capture microphone audio (text input only)")
	talkCmd.Flags().BoolVar(&talkOpts.noSpeaker, "no-speaker", false, "Do not play assistant audio")
}

func runTalk(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	var source realtime.URLSource
	switch {
	case talkOpts.realtimeURL != "":
		source = realtime.StaticURL(talkOpts.realtimeURL)
	case talkOpts.signedURLEndpoint != "":
		source = &realtime.SignedURLSource{
			Endpoint: talkOpts.signedURLEndpoint,
			APIKey:   cfg.RealtimeAPIKey,
		}
	default:
		return fmt.Errorf("one of --realtime-url or --signed-url-endpoint is required")
	}

	manager, err := realtime.NewManager(source, realtime.Config{
		Provider:       cfg.Provider,
		Agent:          cfg.AgentID,
		Instructions:   agent.DefaultInstructions,
		APIKey:         cfg.RealtimeAPIKey,
		ConnectTimeout: cfg.ConnectTimeout,
		SignedURLTTL:   cfg.SignedURLTTL,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	surface := newBridgeSurface(os.Stdout)
	control := chart.NewControl(surface, chart.ControlConfig{
		OnSymbolChange:    surface.SetSymbol,
		OnTimeframeChange: surface.SetTimeframe,
		Logger:            logger,
	})
	executor := chart.NewExecutor(control, chart.ExecutorConfig{Logger: logger})

	upstream := marketdata.NewUpstream(marketdata.UpstreamConfig{
		BaseURL:  cfg.MarketDataBaseURL,
		CacheTTL: cfg.MarketDataCacheTTL,
		Logger:   logger,
	})
	parser := parse.New(parse.Config{
		Searcher:      marketdata.NewSearcher(upstream),
		ResolutionTTL: cfg.ResolutionTTL,
		Logger:        logger,
	})

	querier, err := buildAgent(cfg, logger)
	if err != nil {
		return err
	}

	orchCfg := orchestrator.Config{
		Manager:  manager,
		Parser:   parser,
		Executor: executor,
		Agent:    querier,
		Logger:   logger,
	}

	if !talkOpts.noSpeaker {
		speaker := audio.NewSpeaker(audio.SpeakerConfig{FFplayPath: cfg.FFplayPath})
		defer func() { _ = speaker.Close() }()
		queue, err := audio.NewQueue(speaker, logger)
		if err != nil {
			return err
		}
		orchCfg.Playback = queue
	}
	if !talkOpts.noMic {
		capture, err := audio.NewCapture(audio.CaptureConfig{
			FFmpegPath: cfg.FFmpegPath,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		defer func() { _ = capture.Close() }()
		orchCfg.Capture = capture
	}
	if talkOpts.transcriptEndpoint != "" {
		store, err := orchestrator.NewHTTPTranscriptStore(talkOpts.transcriptEndpoint, cfg.AgentAPIKey)
		if err != nil {
			return err
		}
		orchCfg.Transcripts = store
	}

	orch, err := orchestrator.New(orchCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer orch.Stop()
	logger.Info("session started", "session_id", orch.SessionID())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "exit" || text == "quit" {
				return nil
			}
			if err := orch.SendText(text); err != nil {
				logger.Error("send text failed", "error", err)
			}
		}
	}
}

func buildAgent(cfg config.Config, logger *slog.Logger) (agent.Querier, error) {
	switch cfg.AgentBackend {
	case config.AgentBackendGemini:
		return agent.NewGeminiBackend(agent.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.AgentModel,
			Logger: logger,
		}), nil
	case config.AgentBackendOpenAI:
		return agent.NewOpenAIBackend(agent.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.AgentModel,
			Logger: logger,
		}), nil
	default:
		return agent.NewHTTPClient(agent.HTTPConfig{
			Endpoint: cfg.AgentEndpoint,
			APIKey:   cfg.AgentAPIKey,
			Logger:   logger,
		})
	}
}
