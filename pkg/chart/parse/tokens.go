// Package parse turns free-form agent text and explicit command tokens into
// validated chart commands.
package parse

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/chartvoice/chartvoice/pkg/chart"
)

// ParseTokens scans text for colon-delimited command tokens. Tokens are
// matched independently of surrounding natural language; a malformed token
// (wrong arity, non-numeric field) is skipped without affecting the rest of
// the scan.
func ParseTokens(text string, logger *slog.Logger) []chart.Command {
	if logger == nil {
		logger = slog.Default()
	}
	var commands []chart.Command
	for _, field := range strings.Fields(text) {
		token := strings.Trim(field, ".,;!?")
		if !strings.Contains(token, ":") {
			continue
		}
		cmd, ok := parseToken(token)
		if !ok {
			if recognizedHead(token) {
				logger.Debug("skipping malformed token", "token", token)
			}
			continue
		}
		if err := cmd.Validate(); err != nil {
			logger.Debug("skipping invalid token", "token", token, "error", err)
			continue
		}
		commands = append(commands, cmd)
	}
	return commands
}

var tokenHeads = map[string]bool{
	"SUPPORT": true, "RESISTANCE": true, "TRENDLINE": true, "FIBONACCI": true,
	"ENTRY": true, "TARGET": true, "STOPLOSS": true, "CLEAR": true,
	"DRAW": true, "ANNOTATE": true,
}

func recognizedHead(token string) bool {
	head, _, _ := strings.Cut(token, ":")
	return tokenHeads[strings.ToUpper(head)]
}

func parseToken(token string) (chart.Command, bool) {
	parts := strings.Split(token, ":")
	head := strings.ToUpper(parts[0])
	switch head {
	case "SUPPORT", "RESISTANCE", "ENTRY", "TARGET", "STOPLOSS":
		if len(parts) != 2 {
			return chart.Command{}, false
		}
		price, ok := parsePrice(parts[1])
		if !ok {
			return chart.Command{}, false
		}
		return drawingCommand(chart.DrawingValue{
			Action: levelAction(head),
			Price:  price,
		}), true
	case "TRENDLINE":
		// TRENDLINE:<startPrice>:<startTime>:<endPrice>:<endTime>
		if len(parts) != 5 {
			return chart.Command{}, false
		}
		startPrice, ok1 := parsePrice(parts[1])
		startTime, ok2 := parseUnix(parts[2])
		endPrice, ok3 := parsePrice(parts[3])
		endTime, ok4 := parseUnix(parts[4])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return chart.Command{}, false
		}
		return drawingCommand(chart.DrawingValue{
			Action:     chart.DrawTrendline,
			StartPrice: startPrice,
			StartTime:  startTime,
			EndPrice:   endPrice,
			EndTime:    endTime,
		}), true
	case "FIBONACCI":
		if len(parts) != 3 {
			return chart.Command{}, false
		}
		high, ok1 := parsePrice(parts[1])
		low, ok2 := parsePrice(parts[2])
		if !ok1 || !ok2 {
			return chart.Command{}, false
		}
		return drawingCommand(chart.DrawingValue{
			Action: chart.DrawFibonacci,
			High:   high,
			Low:    low,
		}), true
	case "CLEAR":
		switch {
		case len(parts) == 2 && strings.EqualFold(parts[1], "ALL"):
			return drawingCommand(chart.DrawingValue{Action: chart.DrawClearAll}), true
		case len(parts) == 3 && strings.EqualFold(parts[1], "PATTERN") && parts[2] != "":
			return drawingCommand(chart.DrawingValue{
				Action:    chart.DrawClearPattern,
				PatternID: parts[2],
			}), true
		}
		return chart.Command{}, false
	case "DRAW":
		if len(parts) < 2 {
			return chart.Command{}, false
		}
		switch strings.ToUpper(parts[1]) {
		case "LEVEL":
			// DRAW:LEVEL:<patternId>:<levelType>:<price>
			if len(parts) != 5 {
				return chart.Command{}, false
			}
			price, ok := parsePrice(parts[4])
			if !ok {
				return chart.Command{}, false
			}
			return drawingCommand(chart.DrawingValue{
				Action:    chart.DrawPatternLevel,
				PatternID: parts[2],
				LevelType: strings.ToLower(parts[3]),
				Price:     price,
			}), true
		case "TRENDLINE":
			// DRAW:TRENDLINE:<patternId>:<startTime>:<startPrice>:<endTime>:<endPrice>
			if len(parts) != 7 {
				return chart.Command{}, false
			}
			startTime, ok1 := parseUnix(parts[3])
			startPrice, ok2 := parsePrice(parts[4])
			endTime, ok3 := parseUnix(parts[5])
			endPrice, ok4 := parsePrice(parts[6])
			if !ok1 || !ok2 || !ok3 || !ok4 {
				return chart.Command{}, false
			}
			return drawingCommand(chart.DrawingValue{
				Action:     chart.DrawTrendline,
				PatternID:  parts[2],
				StartTime:  startTime,
				StartPrice: startPrice,
				EndTime:    endTime,
				EndPrice:   endPrice,
			}), true
		}
		return chart.Command{}, false
	case "ANNOTATE":
		// ANNOTATE:PATTERN:<id>:<status>
		if len(parts) != 4 || !strings.EqualFold(parts[1], "PATTERN") {
			return chart.Command{}, false
		}
		if parts[2] == "" || parts[3] == "" {
			return chart.Command{}, false
		}
		return drawingCommand(chart.DrawingValue{
			Action:    chart.DrawAnnotatePattern,
			PatternID: parts[2],
			Status:    strings.ToLower(parts[3]),
		}), true
	default:
		return chart.Command{}, false
	}
}

func levelAction(head string) chart.DrawingAction {
	switch head {
	case "SUPPORT":
		return chart.DrawSupport
	case "RESISTANCE":
		return chart.DrawResistance
	case "ENTRY":
		return chart.DrawEntry
	case "TARGET":
		return chart.DrawTarget
	default:
		return chart.DrawStoploss
	}
}

func drawingCommand(v chart.DrawingValue) chart.Command {
	return chart.Command{Type: chart.CmdDrawing, Drawing: v}
}

func parsePrice(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseUnix(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
