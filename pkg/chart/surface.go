package chart

// PriceLine is a horizontal line annotation handed to the surface.
type PriceLine struct {
	ID    string
	Price float64
	Color string
	Width int
	Style string
	Title string
}

// OverlayPoint is one sample of an overlay series.
type OverlayPoint struct {
	Time  int64
	Value float64
}

// OverlayOptions style an overlay series.
type OverlayOptions struct {
	Color string
	Width int
	Style string
}

// Surface is the minimal capability set a charting widget must expose. Any
// concrete charting library satisfying this contract can be driven by the
// executor; the core never talks to a rendering library directly.
type Surface interface {
	// AddPriceLine and RemovePriceLine manage horizontal price annotations.
	AddPriceLine(line PriceLine) error
	RemovePriceLine(id string) error

	// AddOverlaySeries and RemoveOverlaySeries manage price-series overlays.
	AddOverlaySeries(id string, points []OverlayPoint, opts OverlayOptions) error
	RemoveOverlaySeries(id string) error

	// ToggleIndicator enables or disables a built-in study by canonical name.
	ToggleIndicator(name string, enabled bool) error
	// ShowOscillatorPane requests a sub-pane for oscillator studies.
	ShowOscillatorPane(name string) error

	// View manipulation.
	Zoom(direction string) error
	Scroll(direction string) error
	SetStyle(style string) error
	ResetView() error
	SetCrosshair(enabled bool) error

	// VisibleRange returns the visible time window in Unix seconds.
	VisibleRange() (from, to int64, err error)
}

// DrawingPrimitive is the optional persistent-annotation capability. A
// Surface that also implements it gets durable Drawing entities; otherwise
// the executor falls back to non-persistent overlay series and price lines.
type DrawingPrimitive interface {
	CreateDrawing(d Drawing) error
	RemoveDrawing(id string) error
	ClearDrawings() error
}
