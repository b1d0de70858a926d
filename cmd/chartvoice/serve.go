package main

import (
	"github.com/spf13/cobra"

	"github.com/chartvoice/chartvoice/pkg/marketdata"
)

var serveOpts struct {
	debug bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the market-data API",
	Long: `Serve the HTTP API backing symbol search, quotes and price history:

  GET /api/v1/symbol-search?q=query
  GET /api/v1/quote/:symbol
  GET /api/v1/history/:symbol?range=3mo&interval=1d
  GET /api/v1/health`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveOpts.debug, "debug", false, "Enable gin debug mode")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	upstream := marketdata.NewUpstream(marketdata.UpstreamConfig{
		BaseURL:  cfg.MarketDataBaseURL,
		CacheTTL: cfg.MarketDataCacheTTL,
		Logger:   logger,
	})
	server, err := marketdata.NewServer(marketdata.ServerConfig{
		Host:   cfg.MarketDataHost,
		Port:   cfg.MarketDataPort,
		Debug:  serveOpts.debug,
		Logger: logger,
	}, upstream)
	if err != nil {
		return err
	}
	return server.Start()
}
