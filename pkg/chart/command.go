// Package chart defines the chart command vocabulary, the capability
// surface the core drives, and the executor that applies commands to it.
package chart

import (
	"math"
	"time"

	"github.com/chartvoice/chartvoice/pkg/core"
)

// CommandType discriminates the command payload shape.
type CommandType string

const (
	CmdSymbol    CommandType = "symbol"
	CmdTimeframe CommandType = "timeframe"
	CmdIndicator CommandType = "indicator"
	CmdZoom      CommandType = "zoom"
	CmdScroll    CommandType = "scroll"
	CmdStyle     CommandType = "style"
	CmdReset     CommandType = "reset"
	CmdCrosshair CommandType = "crosshair"
	CmdDrawing   CommandType = "drawing"
)

// AssetType hints which data source and icon the UI should use for a symbol.
type AssetType string

const (
	AssetStock  AssetType = "stock"
	AssetCrypto AssetType = "crypto"
)

// IndicatorValue is the payload of an indicator command.
type IndicatorValue struct {
	Name    string
	Enabled bool
}

// DrawingAction selects a drawing sub-action.
type DrawingAction string

const (
	DrawSupport         DrawingAction = "support"
	DrawResistance      DrawingAction = "resistance"
	DrawTrendline       DrawingAction = "trendline"
	DrawFibonacci       DrawingAction = "fibonacci"
	DrawEntry           DrawingAction = "entry"
	DrawTarget          DrawingAction = "target"
	DrawStoploss        DrawingAction = "stoploss"
	DrawClearAll        DrawingAction = "clear_all"
	DrawClearPattern    DrawingAction = "clear_pattern"
	DrawPatternLevel    DrawingAction = "pattern_level"
	DrawAnnotatePattern DrawingAction = "annotate_pattern"
)

// DrawingValue is the payload of a drawing command. Field relevance depends
// on Action; Validate enforces the shape before execution.
type DrawingValue struct {
	Action DrawingAction

	// Price anchors single-level actions (support, resistance, entry,
	// target, stoploss, pattern_level).
	Price float64

	// Trendline anchors. Times are Unix seconds.
	StartPrice float64
	StartTime  int64
	EndPrice   float64
	EndTime    int64

	// Fibonacci anchors.
	High float64
	Low  float64

	// Pattern binding for DRAW:*/ANNOTATE:*/CLEAR:PATTERN tokens.
	PatternID string
	LevelType string
	Status    string
}

// Command is one typed chart directive. Exactly the field group selected by
// Type carries meaning; the rest are zero.
type Command struct {
	Type CommandType

	Symbol    string
	Timeframe string
	Indicator IndicatorValue
	Drawing   DrawingValue

	// Direction is "in"/"out" for zoom, "left"/"right" for scroll.
	Direction string
	// Style is a series style name (candles, line, area, bars).
	Style string
	// CrosshairOn is the crosshair command payload.
	CrosshairOn bool

	// AssetType annotates symbol commands for downstream icon/data-source
	// selection.
	AssetType AssetType

	Timestamp time.Time
}

// Timeframes is the canonical timeframe token vocabulary.
var Timeframes = []string{"1m", "5m", "15m", "30m", "1H", "2H", "4H", "1D", "1W", "1M", "YTD", "ALL"}

// ValidTimeframe reports whether tf is a canonical timeframe token.
func ValidTimeframe(tf string) bool {
	for _, t := range Timeframes {
		if t == tf {
			return true
		}
	}
	return false
}

// Styles is the accepted series style vocabulary.
var Styles = []string{"candles", "line", "area", "bars"}

// ValidStyle reports whether s is an accepted series style.
func ValidStyle(s string) bool {
	for _, style := range Styles {
		if style == s {
			return true
		}
	}
	return false
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}

// Validate checks that the command's value matches the shape required by its
// type. Invalid commands are dropped by callers, never partially executed.
func (c Command) Validate() error {
	switch c.Type {
	case CmdSymbol:
		if c.Symbol == "" {
			return core.NewParseError("symbol command requires a symbol", "symbol")
		}
	case CmdTimeframe:
		if !ValidTimeframe(c.Timeframe) {
			return core.NewParseError("unknown timeframe token", c.Timeframe)
		}
	case CmdIndicator:
		if c.Indicator.Name == "" {
			return core.NewParseError("indicator command requires a name", "indicator")
		}
	case CmdZoom:
		if c.Direction != "in" && c.Direction != "out" {
			return core.NewParseError("zoom direction must be in or out", c.Direction)
		}
	case CmdScroll:
		if c.Direction != "left" && c.Direction != "right" {
			return core.NewParseError("scroll direction must be left or right", c.Direction)
		}
	case CmdStyle:
		if !ValidStyle(c.Style) {
			return core.NewParseError("unknown series style", c.Style)
		}
	case CmdReset, CmdCrosshair:
		// No payload.
	case CmdDrawing:
		return c.Drawing.validate()
	default:
		return core.NewParseError("unknown command type", string(c.Type))
	}
	return nil
}

func (v DrawingValue) validate() error {
	switch v.Action {
	case DrawSupport, DrawResistance, DrawEntry, DrawTarget, DrawStoploss:
		if !validPrice(v.Price) {
			return core.NewParseError("drawing requires a positive price", string(v.Action))
		}
	case DrawTrendline:
		if !validPrice(v.StartPrice) || !validPrice(v.EndPrice) {
			return core.NewParseError("trendline requires start and end prices", string(v.Action))
		}
		if v.StartTime <= 0 || v.EndTime <= 0 {
			return core.NewParseError("trendline requires start and end times", string(v.Action))
		}
	case DrawFibonacci:
		if !validPrice(v.High) || !validPrice(v.Low) || v.High <= v.Low {
			return core.NewParseError("fibonacci requires high above low", string(v.Action))
		}
	case DrawClearAll:
		// No payload.
	case DrawClearPattern:
		if v.PatternID == "" {
			return core.NewParseError("clear pattern requires a pattern id", string(v.Action))
		}
	case DrawPatternLevel:
		if v.PatternID == "" || v.LevelType == "" || !validPrice(v.Price) {
			return core.NewParseError("pattern level requires id, level type and price", string(v.Action))
		}
	case DrawAnnotatePattern:
		if v.PatternID == "" || v.Status == "" {
			return core.NewParseError("pattern annotation requires id and status", string(v.Action))
		}
	default:
		return core.NewParseError("unknown drawing action", string(v.Action))
	}
	return nil
}
