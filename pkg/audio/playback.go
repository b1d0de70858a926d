package audio

import (
	"log/slog"
	"sync"

	"github.com/chartvoice/chartvoice/pkg/core"
)

// Player performs one frame's playback, returning when the frame has been
// fully delivered to the output device.
type Player interface {
	Play(Frame) error
}

// QueueState is the playback queue lifecycle.
type QueueState int

const (
	QueueIdle QueueState = iota
	QueuePlaying
)

// String returns a human-readable state name.
func (s QueueState) String() string {
	switch s {
	case QueueIdle:
		return "IDLE"
	case QueuePlaying:
		return "PLAYING"
	default:
		return "UNKNOWN"
	}
}

// Queue plays frames strictly in arrival order with no overlap. The explicit
// idle/playing state gates drain startup so a frame arriving mid-playback is
// appended, never played concurrently. A frame that fails to play is logged
// and skipped; the queue advances instead of stalling.
type Queue struct {
	player Player
	log    *slog.Logger

	mu     sync.Mutex
	frames []Frame
	state  QueueState
	idleCh chan struct{}
}

// NewQueue creates an idle playback queue over player.
func NewQueue(player Player, logger *slog.Logger) (*Queue, error) {
	if player == nil {
		return nil, core.NewInvalidRequestError("player must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		player: player,
		log:    logger.With("component", "playback"),
	}, nil
}

// Enqueue appends a frame and starts draining if the queue is idle. Empty
// frames are dropped.
func (q *Queue) Enqueue(f Frame) {
	if len(f.PCM) == 0 {
		return
	}
	q.mu.Lock()
	q.frames = append(q.frames, f)
	if q.state == QueuePlaying {
		q.mu.Unlock()
		return
	}
	q.state = QueuePlaying
	q.idleCh = make(chan struct{})
	q.mu.Unlock()
	go q.drain()
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.frames) == 0 {
			q.state = QueueIdle
			close(q.idleCh)
			q.mu.Unlock()
			return
		}
		f := q.frames[0]
		q.frames = q.frames[1:]
		q.mu.Unlock()

		if err := q.player.Play(f); err != nil {
			playErr := core.NewPlaybackError("skipping frame", err)
			q.log.Warn("playback failed", "seq", f.Seq, "item_id", f.ItemID, "error", playErr)
		}
	}
}

// State returns the current queue state.
func (q *Queue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Len returns the number of frames waiting (excluding the one playing).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Wait blocks until the queue returns to idle. Frames enqueued after Wait
// returns start a new drain.
func (q *Queue) Wait() {
	q.mu.Lock()
	if q.state == QueueIdle {
		q.mu.Unlock()
		return
	}
	ch := q.idleCh
	q.mu.Unlock()
	<-ch
}

// Clear drops all waiting frames. The frame currently playing finishes.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = nil
}
