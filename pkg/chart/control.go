package chart

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chartvoice/chartvoice/pkg/core"
)

// indicatorSynonyms maps spoken or abbreviated indicator names to canonical
// study names before dispatch.
var indicatorSynonyms = map[string]string{
	"ma":                      "ma20",
	"moving average":          "ma20",
	"20 day moving average":   "ma20",
	"50 day moving average":   "ma50",
	"200 day moving average":  "ma200",
	"ema":                     "ema",
	"exponential":             "ema",
	"bb":                      "bollinger",
	"bollinger":               "bollinger",
	"bollinger bands":         "bollinger",
	"rsi":                     "rsi",
	"relative strength":       "rsi",
	"relative strength index": "rsi",
	"macd":                    "macd",
	"stochastic":              "stochastic",
	"stochastics":             "stochastic",
	"atr":                     "atr",
	"average true range":      "atr",
	"vwap":                    "vwap",
	"vol":                     "volume",
	"volume":                  "volume",
}

// knownIndicators is the canonical study vocabulary.
var knownIndicators = map[string]bool{
	"ma20":       true,
	"ma50":       true,
	"ma200":      true,
	"ema":        true,
	"bollinger":  true,
	"rsi":        true,
	"macd":       true,
	"stochastic": true,
	"atr":        true,
	"vwap":       true,
	"volume":     true,
}

// KnownIndicator reports whether name (after synonym mapping) is a canonical
// study.
func KnownIndicator(name string) bool {
	return knownIndicators[CanonicalIndicator(name)]
}

// oscillators are studies rendered in a sub-pane rather than on the price
// scale.
var oscillators = map[string]bool{
	"rsi":        true,
	"macd":       true,
	"stochastic": true,
}

// presets are fixed ordered indicator bundles. Application always resets
// first, so presets are idempotent and mutually exclusive in effect.
var presets = map[string][]string{
	"basic":      {"ma20", "volume"},
	"advanced":   {"ma20", "ma50", "bollinger", "volume"},
	"momentum":   {"rsi", "macd", "stochastic"},
	"trend":      {"ma20", "ma50", "ma200"},
	"volatility": {"bollinger", "atr"},
}

// fibRatios are the retracement levels drawn between a high and a low.
var fibRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

var kindColors = map[DrawingKind]string{
	KindSupport:    "#22c55e",
	KindResistance: "#ef4444",
	KindEntry:      "#3b82f6",
	KindTarget:     "#22c55e",
	KindStoploss:   "#ef4444",
	KindTrendline:  "#8b5cf6",
	KindFibonacci:  "#f59e0b",
}

// ControlConfig wires a Control to its host application.
type ControlConfig struct {
	// OnSymbolChange swaps the charted instrument. Required for symbol
	// commands.
	OnSymbolChange func(symbol string, asset AssetType) error
	// OnTimeframeChange switches the bar interval. Required for timeframe
	// commands.
	OnTimeframeChange func(timeframe string) error

	Logger *slog.Logger
}

// Control owns the drawing set and indicator state and translates command
// semantics into capability-surface calls. The surface may be nil (voice-only
// mode); surface-backed operations then fail with a "not available" error
// instead of panicking.
type Control struct {
	surface  Surface
	drawings *DrawingStore
	cfg      ControlConfig
	log      *slog.Logger

	mu             sync.Mutex
	currentSymbol  string
	currentAsset   AssetType
	enabled        map[string]bool
	enabledOrder   []string
	patternStatus  map[string]string
}

// NewControl creates a chart control over surface.
func NewControl(surface Surface, cfg ControlConfig) *Control {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Control{
		surface:       surface,
		drawings:      NewDrawingStore(),
		cfg:           cfg,
		log:           logger.With("component", "chart"),
		enabled:       make(map[string]bool),
		patternStatus: make(map[string]string),
	}
}

// Drawings exposes the store for inspection.
func (c *Control) Drawings() *DrawingStore { return c.drawings }

// CurrentSymbol returns the last applied symbol and its asset type.
func (c *Control) CurrentSymbol() (string, AssetType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSymbol, c.currentAsset
}

// ChangeSymbol swaps the charted instrument through the registered callback.
func (c *Control) ChangeSymbol(symbol string, asset AssetType) error {
	if c.cfg.OnSymbolChange == nil {
		return core.NewExecutionError("no symbol change callback registered")
	}
	if asset == "" {
		asset = AssetStock
	}
	if err := c.cfg.OnSymbolChange(symbol, asset); err != nil {
		return core.NewExecutionError("symbol change failed: " + err.Error())
	}
	c.mu.Lock()
	c.currentSymbol = symbol
	c.currentAsset = asset
	c.mu.Unlock()
	return nil
}

// ChangeTimeframe switches the bar interval through the registered callback.
func (c *Control) ChangeTimeframe(timeframe string) error {
	if c.cfg.OnTimeframeChange == nil {
		return core.NewExecutionError("no timeframe change callback registered")
	}
	if !ValidTimeframe(timeframe) {
		return core.NewExecutionError("unknown timeframe " + timeframe)
	}
	if err := c.cfg.OnTimeframeChange(timeframe); err != nil {
		return core.NewExecutionError("timeframe change failed: " + err.Error())
	}
	return nil
}

// CanonicalIndicator maps a spoken indicator name to its canonical study
// name. Unknown names pass through lowercased.
func CanonicalIndicator(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := indicatorSynonyms[key]; ok {
		return canonical
	}
	return key
}

// ToggleIndicator enables or disables one study. Enabling an oscillator also
// requests its sub-pane.
func (c *Control) ToggleIndicator(name string, enabled bool) error {
	if c.surface == nil {
		return core.NewExecutionError("chart surface is not available")
	}
	canonical := CanonicalIndicator(name)
	if canonical == "" {
		return core.NewExecutionError("indicator name is empty")
	}
	if err := c.surface.ToggleIndicator(canonical, enabled); err != nil {
		return core.NewExecutionError("toggle " + canonical + ": " + err.Error())
	}
	if enabled && oscillators[canonical] {
		if err := c.surface.ShowOscillatorPane(canonical); err != nil {
			c.log.Warn("oscillator pane unavailable", "indicator", canonical, "error", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled {
		if !c.enabled[canonical] {
			c.enabled[canonical] = true
			c.enabledOrder = append(c.enabledOrder, canonical)
		}
		return nil
	}
	if c.enabled[canonical] {
		delete(c.enabled, canonical)
		for i, existing := range c.enabledOrder {
			if existing == canonical {
				c.enabledOrder = append(c.enabledOrder[:i], c.enabledOrder[i+1:]...)
				break
			}
		}
	}
	return nil
}

// EnabledIndicators returns enabled studies in enable order.
func (c *Control) EnabledIndicators() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.enabledOrder...)
}

// ResetIndicators disables every enabled study.
func (c *Control) ResetIndicators() error {
	for _, name := range c.EnabledIndicators() {
		if err := c.ToggleIndicator(name, false); err != nil {
			return err
		}
	}
	return nil
}

// PresetNames returns the defined preset bundles.
func PresetNames() []string {
	return []string{"basic", "advanced", "momentum", "trend", "volatility"}
}

// ApplyPreset resets all indicators, then enables the bundle members in
// their defined order.
func (c *Control) ApplyPreset(name string) error {
	bundle, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return core.NewExecutionError("unknown preset " + name)
	}
	if err := c.ResetIndicators(); err != nil {
		return err
	}
	for _, indicator := range bundle {
		if err := c.ToggleIndicator(indicator, true); err != nil {
			return err
		}
	}
	return nil
}

// AddLevel draws one horizontal line of the given kind.
func (c *Control) AddLevel(kind DrawingKind, price float64, patternID string) (Drawing, error) {
	d := c.drawings.Add(Drawing{
		Kind:      kind,
		Price:     price,
		Color:     kindColors[kind],
		Title:     fmt.Sprintf("%s %.2f", strings.ToUpper(string(kind)), price),
		PatternID: patternID,
	})
	if err := c.render(d); err != nil {
		_ = c.drawings.Remove(d.ID)
		return Drawing{}, err
	}
	return d, nil
}

// AddTrendline draws a line between two time/price anchors.
func (c *Control) AddTrendline(v DrawingValue) (Drawing, error) {
	d := c.drawings.Add(Drawing{
		Kind:       KindTrendline,
		StartPrice: v.StartPrice,
		StartTime:  v.StartTime,
		EndPrice:   v.EndPrice,
		EndTime:    v.EndTime,
		Color:      kindColors[KindTrendline],
		Title:      "TRENDLINE",
		PatternID:  v.PatternID,
	})
	if err := c.render(d); err != nil {
		_ = c.drawings.Remove(d.ID)
		return Drawing{}, err
	}
	return d, nil
}

// AddFibonacci draws retracement levels between high and low.
func (c *Control) AddFibonacci(high, low float64) (Drawing, error) {
	levels := make([]float64, 0, len(fibRatios))
	for _, r := range fibRatios {
		levels = append(levels, high-(high-low)*r)
	}
	d := c.drawings.Add(Drawing{
		Kind:   KindFibonacci,
		Price:  high,
		Levels: levels,
		Color:  kindColors[KindFibonacci],
		Title:  fmt.Sprintf("FIB %.2f-%.2f", low, high),
	})
	if err := c.render(d); err != nil {
		_ = c.drawings.Remove(d.ID)
		return Drawing{}, err
	}
	return d, nil
}

// AnnotatePattern records a status annotation against a detected pattern.
func (c *Control) AnnotatePattern(patternID, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patternStatus[patternID] = status
}

// PatternStatus returns the recorded annotation for a pattern, if any.
func (c *Control) PatternStatus(patternID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.patternStatus[patternID]
	return status, ok
}

// ClearAll removes every drawing. Clearing an empty set succeeds.
func (c *Control) ClearAll() error {
	removed := c.drawings.Clear()
	if prim, ok := c.surface.(DrawingPrimitive); ok {
		if err := prim.ClearDrawings(); err != nil {
			return core.NewExecutionError("clear drawings: " + err.Error())
		}
		return nil
	}
	for _, d := range removed {
		c.unrender(d)
	}
	return nil
}

// ClearPattern removes every drawing bound to patternID and drops its
// annotation. Unknown patterns clear successfully.
func (c *Control) ClearPattern(patternID string) error {
	removed := c.drawings.RemoveByPattern(patternID)
	c.mu.Lock()
	delete(c.patternStatus, patternID)
	c.mu.Unlock()
	if prim, ok := c.surface.(DrawingPrimitive); ok {
		for _, d := range removed {
			if err := prim.RemoveDrawing(d.ID); err != nil {
				c.log.Warn("remove drawing failed", "id", d.ID, "error", err)
			}
		}
		return nil
	}
	for _, d := range removed {
		c.unrender(d)
	}
	return nil
}

// Zoom steps the visible range in or out.
func (c *Control) Zoom(direction string) error {
	if c.surface == nil {
		return core.NewExecutionError("zoom is not available")
	}
	return c.surface.Zoom(direction)
}

// Scroll pans the visible range left or right.
func (c *Control) Scroll(direction string) error {
	if c.surface == nil {
		return core.NewExecutionError("scroll is not available")
	}
	return c.surface.Scroll(direction)
}

// SetStyle switches the series rendering style.
func (c *Control) SetStyle(style string) error {
	if c.surface == nil {
		return core.NewExecutionError("style change is not available")
	}
	return c.surface.SetStyle(style)
}

// ResetView restores the default view.
func (c *Control) ResetView() error {
	if c.surface == nil {
		return core.NewExecutionError("reset is not available")
	}
	return c.surface.ResetView()
}

// SetCrosshair toggles the crosshair cursor.
func (c *Control) SetCrosshair(enabled bool) error {
	if c.surface == nil {
		return core.NewExecutionError("crosshair is not available")
	}
	return c.surface.SetCrosshair(enabled)
}

// render pushes a drawing to the surface: through the persistent drawing
// primitive when available, else as a price-line or overlay-series fallback.
func (c *Control) render(d Drawing) error {
	if c.surface == nil {
		// Voice-only mode keeps the drawing set without rendering.
		return nil
	}
	if prim, ok := c.surface.(DrawingPrimitive); ok {
		if err := prim.CreateDrawing(d); err != nil {
			return core.NewExecutionError("create drawing: " + err.Error())
		}
		return nil
	}
	switch d.Kind {
	case KindTrendline:
		points := []OverlayPoint{
			{Time: d.StartTime, Value: d.StartPrice},
			{Time: d.EndTime, Value: d.EndPrice},
		}
		if err := c.surface.AddOverlaySeries(d.ID, points, OverlayOptions{Color: d.Color, Width: 2, Style: "solid"}); err != nil {
			return core.NewExecutionError("render trendline: " + err.Error())
		}
	case KindFibonacci:
		for i, level := range d.Levels {
			line := PriceLine{
				ID:    fmt.Sprintf("%s-%d", d.ID, i),
				Price: level,
				Color: d.Color,
				Width: 1,
				Style: "dashed",
				Title: fmt.Sprintf("Fib %.1f%%", fibRatios[i]*100),
			}
			if err := c.surface.AddPriceLine(line); err != nil {
				return core.NewExecutionError("render fibonacci: " + err.Error())
			}
		}
	default:
		line := PriceLine{
			ID:    d.ID,
			Price: d.Price,
			Color: d.Color,
			Width: 2,
			Style: "solid",
			Title: d.Title,
		}
		if err := c.surface.AddPriceLine(line); err != nil {
			return core.NewExecutionError("render level: " + err.Error())
		}
	}
	return nil
}

func (c *Control) unrender(d Drawing) {
	if c.surface == nil {
		return
	}
	switch d.Kind {
	case KindTrendline:
		if err := c.surface.RemoveOverlaySeries(d.ID); err != nil {
			c.log.Debug("remove overlay series", "id", d.ID, "error", err)
		}
	case KindFibonacci:
		for i := range d.Levels {
			if err := c.surface.RemovePriceLine(fmt.Sprintf("%s-%d", d.ID, i)); err != nil {
				c.log.Debug("remove price line", "id", d.ID, "error", err)
			}
		}
	default:
		if err := c.surface.RemovePriceLine(d.ID); err != nil {
			c.log.Debug("remove price line", "id", d.ID, "error", err)
		}
	}
}
