package chart

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chartvoice/chartvoice/pkg/core"
)

// DrawingKind names a drawing variant.
type DrawingKind string

const (
	KindSupport    DrawingKind = "support"
	KindResistance DrawingKind = "resistance"
	KindTrendline  DrawingKind = "trendline"
	KindFibonacci  DrawingKind = "fibonacci"
	KindEntry      DrawingKind = "entry"
	KindTarget     DrawingKind = "target"
	KindStoploss   DrawingKind = "stoploss"
)

// Drawing is a persisted visual annotation. No two drawings share an id.
type Drawing struct {
	ID   string
	Kind DrawingKind

	Price      float64
	StartPrice float64
	StartTime  int64
	EndPrice   float64
	EndTime    int64
	Levels     []float64

	Color     string
	Title     string
	PatternID string
	CreatedAt time.Time
}

// DrawingStore owns the drawing set. All mutation goes through its public
// operations; the executor never reaches into it directly.
type DrawingStore struct {
	mu    sync.Mutex
	byID  map[string]Drawing
	order []string
	now   func() time.Time
}

// NewDrawingStore creates an empty store.
func NewDrawingStore() *DrawingStore {
	return &DrawingStore{
		byID: make(map[string]Drawing),
		now:  time.Now,
	}
}

// Add assigns the drawing a fresh opaque id and stores it.
func (s *DrawingStore) Add(d Drawing) Drawing {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = string(d.Kind) + "-" + uuid.NewString()
	d.CreatedAt = s.now()
	s.byID[d.ID] = d
	s.order = append(s.order, d.ID)
	return d
}

// Remove deletes one drawing by id.
func (s *DrawingStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return core.NewNotFoundError("unknown drawing id " + id)
	}
	s.deleteLocked(id)
	return nil
}

// RemoveByPattern deletes every drawing bound to patternID and returns the
// removed drawings. Removing an unknown pattern is not an error.
func (s *DrawingStore) RemoveByPattern(patternID string) []Drawing {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []Drawing
	for _, id := range append([]string(nil), s.order...) {
		if d := s.byID[id]; d.PatternID == patternID {
			s.deleteLocked(id)
			removed = append(removed, d)
		}
	}
	return removed
}

// Clear empties the store and returns the removed drawings. Clearing an
// empty store succeeds.
func (s *DrawingStore) Clear() []Drawing {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make([]Drawing, 0, len(s.order))
	for _, id := range s.order {
		removed = append(removed, s.byID[id])
	}
	s.byID = make(map[string]Drawing)
	s.order = nil
	return removed
}

// List returns drawings in creation order.
func (s *DrawingStore) List() []Drawing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Drawing, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Len returns the number of drawings.
func (s *DrawingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *DrawingStore) deleteLocked(id string) {
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
