package main

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/chartvoice/chartvoice/pkg/chart"
)

// bridgeSurface implements the chart capability surface by emitting each
// operation as one JSON line. A frontend process reads the stream and
// applies the operations to its charting widget. The visible window is
// tracked locally so zoom and scroll commands compose.
type bridgeSurface struct {
	mu   sync.Mutex
	out  io.Writer
	from int64
	to   int64
}

func newBridgeSurface(out io.Writer) *bridgeSurface {
	now := time.Now().Unix()
	return &bridgeSurface{
		out:  out,
		from: now - 180*24*3600,
		to:   now,
	}
}

func (s *bridgeSurface) emit(op string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, err := json.Marshal(map[string]any{"op": op, "payload": payload})
	if err != nil {
		return err
	}
	_, err = s.out.Write(append(line, '\n'))
	return err
}

func (s *bridgeSurface) AddPriceLine(line chart.PriceLine) error {
	return s.emit("add_price_line", line)
}

func (s *bridgeSurface) RemovePriceLine(id string) error {
	return s.emit("remove_price_line", map[string]string{"id": id})
}

func (s *bridgeSurface) AddOverlaySeries(id string, points []chart.OverlayPoint, opts chart.OverlayOptions) error {
	return s.emit("add_overlay_series", map[string]any{"id": id, "points": points, "options": opts})
}

func (s *bridgeSurface) RemoveOverlaySeries(id string) error {
	return s.emit("remove_overlay_series", map[string]string{"id": id})
}

func (s *bridgeSurface) ToggleIndicator(name string, enabled bool) error {
	return s.emit("toggle_indicator", map[string]any{"name": name, "enabled": enabled})
}

func (s *bridgeSurface) ShowOscillatorPane(name string) error {
	return s.emit("show_oscillator_pane", map[string]string{"name": name})
}

func (s *bridgeSurface) Zoom(direction string) error {
	s.mu.Lock()
	span := s.to - s.from
	if direction == "in" {
		span /= 2
	} else {
		span *= 2
	}
	if span < 3600 {
		span = 3600
	}
	s.from = s.to - span
	s.mu.Unlock()
	return s.emit("zoom", map[string]string{"direction": direction})
}

func (s *bridgeSurface) Scroll(direction string) error {
	s.mu.Lock()
	shift := (s.to - s.from) / 4
	if direction == "left" {
		shift = -shift
	}
	s.from += shift
	s.to += shift
	s.mu.Unlock()
	return s.emit("scroll", map[string]string{"direction": direction})
}

func (s *bridgeSurface) SetStyle(style string) error {
	return s.emit("set_style", map[string]string{"style": style})
}

func (s *bridgeSurface) ResetView() error {
	s.mu.Lock()
	now := time.Now().Unix()
	s.from = now - 180*24*3600
	s.to = now
	s.mu.Unlock()
	return s.emit("reset_view", struct{}{})
}

func (s *bridgeSurface) SetCrosshair(enabled bool) error {
	return s.emit("set_crosshair", map[string]bool{"enabled": enabled})
}

func (s *bridgeSurface) VisibleRange() (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.from, s.to, nil
}

// SetSymbol and SetTimeframe are not part of the capability surface; the
// control layer drives them through its callbacks.
func (s *bridgeSurface) SetSymbol(symbol string, asset chart.AssetType) error {
	return s.emit("set_symbol", map[string]string{"symbol": symbol, "asset": string(asset)})
}

func (s *bridgeSurface) SetTimeframe(timeframe string) error {
	return s.emit("set_timeframe", map[string]string{"timeframe": timeframe})
}

func (s *bridgeSurface) CreateDrawing(d chart.Drawing) error {
	return s.emit("create_drawing", d)
}

func (s *bridgeSurface) RemoveDrawing(id string) error {
	return s.emit("remove_drawing", map[string]string{"id": id})
}

func (s *bridgeSurface) ClearDrawings() error {
	return s.emit("clear_drawings", struct{}{})
}
