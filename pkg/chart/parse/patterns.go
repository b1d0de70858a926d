package parse

import (
	"context"
	"regexp"
	"strings"

	"github.com/chartvoice/chartvoice/pkg/chart"
)

// The natural-language layer is a pattern table, not a grammar: each
// category is an independent best-effort regex, and one utterance may yield
// commands from several categories in a single pass.

var symbolRe = regexp.MustCompile(`(?i)\b(?:show me|show|switch to|pull up|bring up|look at|display|chart)\s+(?:the\s+)?([a-z][a-z0-9.&\- ]{0,29}?)(?:\s+(?:chart|stock|price|crypto|coin|token|please|and|with|on|at|in)\b|[,.!?]|$)`)

// symbolStopwords are capture fragments that must never resolve as tickers.
var symbolStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "me": true, "my": true, "it": true,
	"that": true, "this": true, "chart": true, "view": true, "market": true,
}

var timeframePatterns = []struct {
	re    *regexp.Regexp
	token string
}{
	{regexp.MustCompile(`(?i)\b(?:1|one)[\s-]*min(?:ute)?\b`), "1m"},
	{regexp.MustCompile(`(?i)\b(?:5|five)[\s-]*min(?:ute)?s?\b`), "5m"},
	{regexp.MustCompile(`(?i)\b(?:15|fifteen)[\s-]*min(?:ute)?s?\b`), "15m"},
	{regexp.MustCompile(`(?i)\b(?:30|thirty)[\s-]*min(?:ute)?s?\b`), "30m"},
	{regexp.MustCompile(`(?i)\b(?:2|two)[\s-]*hours?\b`), "2H"},
	{regexp.MustCompile(`(?i)\b(?:4|four)[\s-]*hours?\b`), "4H"},
	{regexp.MustCompile(`(?i)\b(?:1|one)[\s-]*hour\b|\bhourly\b`), "1H"},
	{regexp.MustCompile(`(?i)\b(?:1|one)[\s-]*day\b|\bdaily\b`), "1D"},
	{regexp.MustCompile(`(?i)\b(?:1|one)[\s-]*week\b|\bweekly\b`), "1W"},
	{regexp.MustCompile(`(?i)\b(?:1|one)[\s-]*month\b|\bmonthly\b`), "1M"},
	{regexp.MustCompile(`(?i)\byear[\s-]*to[\s-]*date\b|\bytd\b`), "YTD"},
	{regexp.MustCompile(`(?i)\ball[\s-]*time\b`), "ALL"},
	// Bare canonical tokens, case-sensitive so 1m (minute) and 1M (month)
	// stay distinct.
	{regexp.MustCompile(`\b(?:1m|5m|15m|30m)\b`), ""},
	{regexp.MustCompile(`\b(?:1H|2H|4H|1D|1W|1M)\b`), ""},
}

var (
	indicatorOnRe  = regexp.MustCompile(`(?i)\b(?:add|show|enable|turn on|display|put on)\s+(?:the\s+)?([a-z0-9]{2,}(?:\s+[a-z]+){0,2})`)
	indicatorOffRe = regexp.MustCompile(`(?i)\b(?:remove|hide|disable|turn off|take off)\s+(?:the\s+)?([a-z0-9]{2,}(?:\s+[a-z]+){0,2})`)
	zoomRe         = regexp.MustCompile(`(?i)\bzoom\s+(in|out)\b`)
	scrollRe       = regexp.MustCompile(`(?i)\b(?:scroll|pan|move)\s+(?:the\s+chart\s+)?(left|right|back|backward|forward|ahead)\b`)
	styleRe        = regexp.MustCompile(`(?i)\b(?:switch to|change to|use|make it)\s+(?:a\s+)?(candlestick|candle|line|area|bar)s?\s*(?:chart|view|style)?\b`)
	resetRe        = regexp.MustCompile(`(?i)\breset\s+(?:the\s+)?(?:chart|view|zoom)\b`)
	crosshairRe    = regexp.MustCompile(`(?i)\b(show|enable|turn on|hide|disable|turn off)\s+(?:the\s+)?cross[\s-]*hairs?\b`)
)

// parsedPatterns groups extracted commands so the parser can order symbol
// and timeframe changes ahead of everything else in the same utterance.
type parsedPatterns struct {
	symbols    []chart.Command
	timeframes []chart.Command
	others     []chart.Command
}

func (p *Parser) parsePatterns(ctx context.Context, text string) parsedPatterns {
	var out parsedPatterns

	for _, m := range symbolRe.FindAllStringSubmatch(text, -1) {
		cmd, ok := p.symbolCommand(ctx, m[1], text)
		if ok {
			out.symbols = append(out.symbols, cmd)
		}
	}

	if token, ok := matchTimeframe(text); ok {
		out.timeframes = append(out.timeframes, chart.Command{
			Type:      chart.CmdTimeframe,
			Timeframe: token,
		})
	}

	for _, m := range indicatorOnRe.FindAllStringSubmatch(text, -1) {
		if name, ok := indicatorName(m[1]); ok {
			out.others = append(out.others, chart.Command{
				Type:      chart.CmdIndicator,
				Indicator: chart.IndicatorValue{Name: name, Enabled: true},
			})
		}
	}
	for _, m := range indicatorOffRe.FindAllStringSubmatch(text, -1) {
		if name, ok := indicatorName(m[1]); ok {
			out.others = append(out.others, chart.Command{
				Type:      chart.CmdIndicator,
				Indicator: chart.IndicatorValue{Name: name, Enabled: false},
			})
		}
	}

	if m := zoomRe.FindStringSubmatch(text); m != nil {
		out.others = append(out.others, chart.Command{
			Type:      chart.CmdZoom,
			Direction: strings.ToLower(m[1]),
		})
	}
	if m := scrollRe.FindStringSubmatch(text); m != nil {
		out.others = append(out.others, chart.Command{
			Type:      chart.CmdScroll,
			Direction: scrollDirection(m[1]),
		})
	}
	if m := styleRe.FindStringSubmatch(text); m != nil {
		out.others = append(out.others, chart.Command{
			Type:  chart.CmdStyle,
			Style: styleName(m[1]),
		})
	}
	if resetRe.MatchString(text) {
		out.others = append(out.others, chart.Command{Type: chart.CmdReset})
	}
	if m := crosshairRe.FindStringSubmatch(text); m != nil {
		verb := strings.ToLower(m[1])
		on := verb == "show" || verb == "enable" || verb == "turn on"
		out.others = append(out.others, chart.Command{
			Type:        chart.CmdCrosshair,
			CrosshairOn: on,
		})
	}
	return out
}

func (p *Parser) symbolCommand(ctx context.Context, candidate, utterance string) (chart.Command, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || symbolStopwords[strings.ToLower(candidate)] || chart.KnownIndicator(candidate) {
		return chart.Command{}, false
	}
	if _, isTimeframe := matchTimeframe(candidate); isTimeframe {
		return chart.Command{}, false
	}

	res, ok := p.resolver.Resolve(ctx, candidate, utterance)
	if !ok {
		// Multi-word captures sometimes trail filler; retry the head word.
		if head, _, found := strings.Cut(candidate, " "); found && !symbolStopwords[strings.ToLower(head)] {
			res, ok = p.resolver.Resolve(ctx, head, utterance)
		}
	}
	if !ok {
		return chart.Command{}, false
	}
	return chart.Command{
		Type:      chart.CmdSymbol,
		Symbol:    res.Symbol,
		AssetType: res.Asset,
	}, true
}

func matchTimeframe(text string) (string, bool) {
	for _, tp := range timeframePatterns {
		m := tp.re.FindString(text)
		if m == "" {
			continue
		}
		if tp.token != "" {
			return tp.token, true
		}
		return m, true
	}
	return "", false
}

func indicatorName(candidate string) (string, bool) {
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	words := strings.Fields(candidate)
	// Trim trailing words until the phrase names a known study.
	for len(words) > 0 {
		phrase := strings.Join(words, " ")
		if chart.KnownIndicator(phrase) {
			return chart.CanonicalIndicator(phrase), true
		}
		words = words[:len(words)-1]
	}
	return "", false
}

func scrollDirection(word string) string {
	switch strings.ToLower(word) {
	case "left", "back", "backward":
		return "left"
	default:
		return "right"
	}
}

func styleName(word string) string {
	switch strings.ToLower(word) {
	case "candlestick", "candle":
		return "candles"
	case "bar":
		return "bars"
	default:
		return strings.ToLower(word)
	}
}
