package chart

import (
	"fmt"
	"log/slog"
	"time"
)

// Result is the outcome of one command. Execution never throws past the
// executor boundary; failures become a Result plus a logged error.
type Result struct {
	Success bool
	Message string
}

func ok(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

// ExecutorConfig tunes the executor's rendering accommodations.
type ExecutorConfig struct {
	// StaleThreshold marks drawing timestamps too old to anchor visually.
	// Default 2 years.
	StaleThreshold time.Duration
	// RebaseWindow is the trailing window stale trendlines are re-based
	// into. Default 180 days.
	RebaseWindow time.Duration
	// Now is injectable for tests.
	Now func() time.Time

	Logger *slog.Logger
}

// Executor applies commands against a Control in strict input order. The
// stale-timestamp re-base lives here and only here; parsing never adjusts
// timestamps.
type Executor struct {
	control *Control
	cfg     ExecutorConfig
	log     *slog.Logger
}

// NewExecutor creates an executor over control.
func NewExecutor(control *Control, cfg ExecutorConfig) *Executor {
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 2 * 365 * 24 * time.Hour
	}
	if cfg.RebaseWindow <= 0 {
		cfg.RebaseWindow = 180 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		control: control,
		cfg:     cfg,
		log:     logger.With("component", "executor"),
	}
}

// ExecuteAll runs commands strictly in order. A failed command never cancels
// its siblings.
func (e *Executor) ExecuteAll(commands []Command) []Result {
	results := make([]Result, 0, len(commands))
	for _, cmd := range commands {
		results = append(results, e.Execute(cmd))
	}
	return results
}

// Execute applies one command and reports the outcome.
func (e *Executor) Execute(cmd Command) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("command panicked", "type", cmd.Type, "panic", r)
			result = fail("internal error executing %s command", cmd.Type)
		}
	}()

	if err := cmd.Validate(); err != nil {
		e.log.Warn("dropping invalid command", "type", cmd.Type, "error", err)
		return fail("invalid %s command: %v", cmd.Type, err)
	}

	switch cmd.Type {
	case CmdSymbol:
		if err := e.control.ChangeSymbol(cmd.Symbol, cmd.AssetType); err != nil {
			e.log.Warn("symbol change failed", "symbol", cmd.Symbol, "error", err)
			return fail("%v", err)
		}
		asset := cmd.AssetType
		if asset == "" {
			asset = AssetStock
		}
		return ok("switched to %s (%s)", cmd.Symbol, asset)
	case CmdTimeframe:
		if err := e.control.ChangeTimeframe(cmd.Timeframe); err != nil {
			e.log.Warn("timeframe change failed", "timeframe", cmd.Timeframe, "error", err)
			return fail("%v", err)
		}
		return ok("timeframe set to %s", cmd.Timeframe)
	case CmdIndicator:
		if err := e.control.ToggleIndicator(cmd.Indicator.Name, cmd.Indicator.Enabled); err != nil {
			e.log.Warn("indicator toggle failed", "indicator", cmd.Indicator.Name, "error", err)
			return fail("%v", err)
		}
		verb := "disabled"
		if cmd.Indicator.Enabled {
			verb = "enabled"
		}
		return ok("%s %s", verb, CanonicalIndicator(cmd.Indicator.Name))
	case CmdZoom:
		if err := e.control.Zoom(cmd.Direction); err != nil {
			return fail("%v", err)
		}
		return ok("zoomed %s", cmd.Direction)
	case CmdScroll:
		if err := e.control.Scroll(cmd.Direction); err != nil {
			return fail("%v", err)
		}
		return ok("scrolled %s", cmd.Direction)
	case CmdStyle:
		if err := e.control.SetStyle(cmd.Style); err != nil {
			return fail("%v", err)
		}
		return ok("style set to %s", cmd.Style)
	case CmdReset:
		if err := e.control.ResetView(); err != nil {
			return fail("%v", err)
		}
		return ok("view reset")
	case CmdCrosshair:
		if err := e.control.SetCrosshair(cmd.CrosshairOn); err != nil {
			return fail("%v", err)
		}
		if cmd.CrosshairOn {
			return ok("crosshair on")
		}
		return ok("crosshair off")
	case CmdDrawing:
		return e.executeDrawing(cmd.Drawing)
	default:
		return fail("unknown command type %s", cmd.Type)
	}
}

func (e *Executor) executeDrawing(v DrawingValue) Result {
	switch v.Action {
	case DrawSupport:
		return e.addLevel(KindSupport, v.Price, "")
	case DrawResistance:
		return e.addLevel(KindResistance, v.Price, "")
	case DrawEntry:
		return e.addLevel(KindEntry, v.Price, "")
	case DrawTarget:
		return e.addLevel(KindTarget, v.Price, "")
	case DrawStoploss:
		return e.addLevel(KindStoploss, v.Price, "")
	case DrawPatternLevel:
		kind, okKind := levelKind(v.LevelType)
		if !okKind {
			return fail("unknown level type %s", v.LevelType)
		}
		return e.addLevel(kind, v.Price, v.PatternID)
	case DrawTrendline:
		rebased := e.rebaseStale(v)
		d, err := e.control.AddTrendline(rebased)
		if err != nil {
			e.log.Warn("trendline failed", "error", err)
			return fail("%v", err)
		}
		return ok("trendline %s from %.2f to %.2f", d.ID, d.StartPrice, d.EndPrice)
	case DrawFibonacci:
		d, err := e.control.AddFibonacci(v.High, v.Low)
		if err != nil {
			e.log.Warn("fibonacci failed", "error", err)
			return fail("%v", err)
		}
		return ok("fibonacci %s between %.2f and %.2f", d.ID, v.Low, v.High)
	case DrawClearAll:
		if err := e.control.ClearAll(); err != nil {
			e.log.Warn("clear all failed", "error", err)
			return fail("%v", err)
		}
		return ok("cleared all drawings")
	case DrawClearPattern:
		if err := e.control.ClearPattern(v.PatternID); err != nil {
			e.log.Warn("clear pattern failed", "pattern", v.PatternID, "error", err)
			return fail("%v", err)
		}
		return ok("cleared pattern %s", v.PatternID)
	case DrawAnnotatePattern:
		e.control.AnnotatePattern(v.PatternID, v.Status)
		return ok("pattern %s marked %s", v.PatternID, v.Status)
	default:
		return fail("unknown drawing action %s", v.Action)
	}
}

func (e *Executor) addLevel(kind DrawingKind, price float64, patternID string) Result {
	d, err := e.control.AddLevel(kind, price, patternID)
	if err != nil {
		e.log.Warn("level failed", "kind", kind, "error", err)
		return fail("%v", err)
	}
	return ok("%s level %s at %.2f", kind, d.ID, price)
}

func levelKind(levelType string) (DrawingKind, bool) {
	switch levelType {
	case "support":
		return KindSupport, true
	case "resistance":
		return KindResistance, true
	case "entry":
		return KindEntry, true
	case "target":
		return KindTarget, true
	case "stoploss":
		return KindStoploss, true
	default:
		return "", false
	}
}

// rebaseStale moves trendline anchors whose timestamps are older than the
// stale threshold into a recent trailing window, preserving the anchors'
// relative order. Purely a rendering accommodation; stored command values
// upstream are untouched.
func (e *Executor) rebaseStale(v DrawingValue) DrawingValue {
	now := e.cfg.Now()
	cutoff := now.Add(-e.cfg.StaleThreshold).Unix()
	if v.StartTime >= cutoff && v.EndTime >= cutoff {
		return v
	}
	e.log.Debug("re-basing stale trendline anchors",
		"start", v.StartTime, "end", v.EndTime, "cutoff", cutoff)
	end := now.Unix()
	start := now.Add(-e.cfg.RebaseWindow).Unix()
	if v.StartTime > v.EndTime {
		v.StartTime, v.EndTime = v.EndTime, v.StartTime
		v.StartPrice, v.EndPrice = v.EndPrice, v.StartPrice
	}
	v.StartTime = start
	v.EndTime = end
	return v
}
