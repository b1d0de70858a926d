// Package main provides the chartvoice CLI: a voice-driven trading
// assistant with a natural-language chart command pipeline, a market-data
// API and a render-job queue worker.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chartvoice/chartvoice/pkg/config"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "chartvoice",
	Short: "Voice-driven trading assistant",
	Long: `chartvoice drives a trading chart by voice: it holds a realtime audio
session with a voice provider, reconciles streaming transcripts, queries an
agent backend and turns the answers into chart commands.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("chartvoice v%s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(talkCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobsCmd)
}

// loadConfig reads .env (best effort) and the environment, then builds the
// process logger from the configured level.
func loadConfig() (config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.Config{}, nil, err
	}

	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
