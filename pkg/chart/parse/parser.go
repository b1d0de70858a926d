package parse

import (
	"context"
	"log/slog"
	"time"

	"github.com/chartvoice/chartvoice/pkg/chart"
)

// Config configures a Parser.
type Config struct {
	// Searcher is the live symbol-search capability. Optional; resolution
	// falls back to the static vocabularies without it.
	Searcher Searcher
	// ResolutionTTL bounds the symbol-resolution cache. Default 5m.
	ResolutionTTL time.Duration

	Logger *slog.Logger
}

// Parser extracts chart commands from free-form agent text and explicit
// command token lists. Parsing is best-effort: anything that fails to
// resolve or validate yields no command and never aborts the rest of the
// parse.
type Parser struct {
	resolver *Resolver
	log      *slog.Logger
}

// New creates a parser.
func New(cfg Config) *Parser {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		resolver: NewResolver(cfg.Searcher, cfg.ResolutionTTL, logger),
		log:      logger.With("component", "parser"),
	}
}

// Resolver exposes the symbol resolver for direct lookups.
func (p *Parser) Resolver() *Resolver { return p.resolver }

// Parse runs both strategies over text: the colon-token grammar and the
// natural-language pattern table. Symbol and timeframe commands are emitted
// ahead of indicator and view commands from the same utterance, because an
// indicator toggle assumes a chart is already showing its target; drawing
// tokens follow in their scan order.
func (p *Parser) Parse(ctx context.Context, text string) []chart.Command {
	if text == "" {
		return nil
	}
	patterns := p.parsePatterns(ctx, text)
	tokens := ParseTokens(text, p.log)

	now := time.Now()
	out := make([]chart.Command, 0, len(patterns.symbols)+len(patterns.timeframes)+len(patterns.others)+len(tokens))
	out = append(out, patterns.symbols...)
	out = append(out, patterns.timeframes...)
	out = append(out, patterns.others...)
	out = append(out, tokens...)
	for i := range out {
		out[i].Timestamp = now
	}
	return out
}

// ParseStructured consumes a pre-structured command token list (for example
// an agent response's explicit chart_commands array), bypassing the
// natural-language layer. Malformed entries are skipped.
func (p *Parser) ParseStructured(tokens []string) []chart.Command {
	var out []chart.Command
	now := time.Now()
	for _, token := range tokens {
		cmd, ok := parseToken(token)
		if !ok {
			p.log.Debug("skipping malformed structured token", "token", token)
			continue
		}
		if err := cmd.Validate(); err != nil {
			p.log.Debug("skipping invalid structured token", "token", token, "error", err)
			continue
		}
		cmd.Timestamp = now
		out = append(out, cmd)
	}
	return out
}
