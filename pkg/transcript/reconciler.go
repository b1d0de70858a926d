// Package transcript turns the provider's delta stream into a stable,
// ordered conversation history.
package transcript

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chartvoice/chartvoice/pkg/realtime/protocol"
)

// Message is one reconciled conversation turn. Identity is stable across
// delta updates; Text grows monotonically until the turn finalizes.
type Message struct {
	ID        string
	Role      string
	Text      string
	Final     bool
	Corrected bool
	StartedAt time.Time
}

// Callbacks receive reconciliation results. Nil callbacks are skipped.
// OnUserFinal is the single trigger point for forwarding a finished user
// turn downstream; assistant finalization only updates the record.
type Callbacks struct {
	OnUpdate    func(Message)
	OnUserFinal func(Message)
}

type entry struct {
	message Message
	parts   []string
}

// Reconciler accumulates per-id fragments into display-ordered messages.
// Display order follows first-delta arrival, not completion order. Safe for
// use from the transport read loop and a concurrent UI reader.
type Reconciler struct {
	mu      sync.Mutex
	byID    map[string]*entry
	order   []string
	cb      Callbacks
	log     *slog.Logger
	nowFunc func() time.Time
}

// NewReconciler creates a reconciler delivering results through cb.
func NewReconciler(cb Callbacks, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		byID:    make(map[string]*entry),
		cb:      cb,
		log:     logger.With("component", "transcript"),
		nowFunc: time.Now,
	}
}

// ApplyDelta folds one fragment into the message identified by d.ItemID,
// creating the message on first sight. A final delta marks the turn
// complete; fragments arriving after finalization are dropped because the
// provider starts a new turn under a new id.
func (r *Reconciler) ApplyDelta(d protocol.TranscriptDelta) {
	r.mu.Lock()
	e, ok := r.byID[d.ItemID]
	if !ok {
		if d.Text == "" && d.IsFinal {
			r.mu.Unlock()
			r.log.Debug("ignoring completion for unknown item", "item_id", d.ItemID)
			return
		}
		e = &entry{message: Message{
			ID:        d.ItemID,
			Role:      d.Role,
			StartedAt: r.nowFunc(),
		}}
		r.byID[d.ItemID] = e
		r.order = append(r.order, d.ItemID)
	}
	if e.message.Final {
		r.mu.Unlock()
		r.log.Debug("dropping delta for finalized item", "item_id", d.ItemID)
		return
	}
	if d.Text != "" {
		e.parts = append(e.parts, d.Text)
		e.message.Text = strings.Join(e.parts, "")
	}
	if d.IsFinal {
		e.message.Final = true
	}
	msg := e.message
	r.mu.Unlock()

	if r.cb.OnUpdate != nil {
		r.cb.OnUpdate(msg)
	}
	if msg.Final && msg.Role == protocol.RoleUser && r.cb.OnUserFinal != nil {
		r.cb.OnUserFinal(msg)
	}
}

// ApplyCorrection replaces the content of the corrected assistant turn
// wholesale. When the correction names no item id, it binds to the most
// recent assistant message. Each message accepts at most one correction.
func (r *Reconciler) ApplyCorrection(c protocol.TranscriptCorrection) {
	r.mu.Lock()
	e := r.correctionTarget(c.ItemID)
	if e == nil {
		r.mu.Unlock()
		r.log.Debug("ignoring correction with no assistant target", "item_id", c.ItemID)
		return
	}
	if e.message.Corrected {
		r.mu.Unlock()
		r.log.Debug("ignoring repeat correction", "item_id", e.message.ID)
		return
	}
	e.parts = []string{c.Text}
	e.message.Text = c.Text
	e.message.Corrected = true
	msg := e.message
	r.mu.Unlock()

	if r.cb.OnUpdate != nil {
		r.cb.OnUpdate(msg)
	}
}

// correctionTarget is called with the lock held.
func (r *Reconciler) correctionTarget(itemID string) *entry {
	if itemID != "" {
		if e, ok := r.byID[itemID]; ok && e.message.Role == protocol.RoleAssistant {
			return e
		}
		return nil
	}
	for i := len(r.order) - 1; i >= 0; i-- {
		if e := r.byID[r.order[i]]; e.message.Role == protocol.RoleAssistant {
			return e
		}
	}
	return nil
}

// Messages returns the conversation in display order.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].message)
	}
	return out
}

// Reset discards all accumulated state for a fresh session.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*entry)
	r.order = nil
}
