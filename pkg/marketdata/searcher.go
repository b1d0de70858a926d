package marketdata

import (
	"context"

	"github.com/chartvoice/chartvoice/pkg/chart/parse"
)

// Searcher adapts an Upstream to the symbol resolver's search interface.
type Searcher struct {
	upstream *Upstream
}

// NewSearcher wraps upstream for use by the chart command parser.
func NewSearcher(upstream *Upstream) *Searcher {
	return &Searcher{upstream: upstream}
}

// Search implements parse.Searcher.
func (s *Searcher) Search(ctx context.Context, query string) ([]parse.SymbolMatch, error) {
	matches, err := s.upstream.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]parse.SymbolMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, parse.SymbolMatch{Symbol: m.Symbol, Name: m.Name})
	}
	return out, nil
}
