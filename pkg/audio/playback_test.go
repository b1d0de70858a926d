package audio

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"pgregory.net/rapid"
)

type fakePlayer struct {
	mu      sync.Mutex
	played  []int64
	failSeq map[int64]bool
	gate    chan struct{}
	entered chan struct{}
}

func (p *fakePlayer) Play(f Frame) error {
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	p.played = append(p.played, f.Seq)
	fail := p.failSeq[f.Seq]
	p.mu.Unlock()
	if fail {
		return errors.New("device gone")
	}
	return nil
}

func (p *fakePlayer) order() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.played...)
}

func frameSeq(seq int64) Frame {
	return Frame{Seq: seq, SampleRate: PlaybackSampleRateHz, Channels: 1, PCM: []byte{0, 0}}
}

func TestQueue_PlaysInArrivalOrder(t *testing.T) {
	player := &fakePlayer{}
	q, err := NewQueue(player, nil)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	for seq := int64(1); seq <= 5; seq++ {
		q.Enqueue(frameSeq(seq))
	}
	q.Wait()

	got := player.order()
	if len(got) != 5 {
		t.Fatalf("played %d frames, want 5", len(got))
	}
	for i, seq := range got {
		if seq != int64(i+1) {
			t.Fatalf("order = %v, want ascending from 1", got)
		}
	}
	if q.State() != QueueIdle {
		t.Fatalf("state = %v, want IDLE", q.State())
	}
}

func TestQueue_FrameDuringPlaybackIsAppendedNotOverlapped(t *testing.T) {
	player := &fakePlayer{gate: make(chan struct{}), entered: make(chan struct{}, 3)}
	q, err := NewQueue(player, nil)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	q.Enqueue(frameSeq(1))
	<-player.entered // frame 1 is in Play, blocked on the gate

	q.Enqueue(frameSeq(2))
	q.Enqueue(frameSeq(3))
	if got := q.Len(); got != 2 {
		t.Fatalf("queued = %d, want 2", got)
	}
	if got := len(player.order()); got != 0 {
		t.Fatalf("frames played before release = %d, want 0", got)
	}

	close(player.gate)
	q.Wait()

	got := player.order()
	want := []int64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestQueue_FailedFrameIsSkipped(t *testing.T) {
	player := &fakePlayer{failSeq: map[int64]bool{2: true}}
	q, err := NewQueue(player, nil)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	q.Enqueue(frameSeq(1))
	q.Enqueue(frameSeq(2))
	q.Enqueue(frameSeq(3))
	q.Wait()

	got := player.order()
	if len(got) != 3 || got[2] != 3 {
		t.Fatalf("order = %v, want the queue to advance past the failure", got)
	}
	if q.State() != QueueIdle {
		t.Fatalf("state = %v, want IDLE", q.State())
	}
}

func TestQueue_EmptyFrameDropped(t *testing.T) {
	player := &fakePlayer{}
	q, err := NewQueue(player, nil)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	q.Enqueue(Frame{Seq: 1})
	q.Wait()
	if got := len(player.order()); got != 0 {
		t.Fatalf("played %d frames, want 0", got)
	}
}

func TestQueue_Clear(t *testing.T) {
	player := &fakePlayer{gate: make(chan struct{}), entered: make(chan struct{}, 2)}
	q, err := NewQueue(player, nil)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	q.Enqueue(frameSeq(1))
	<-player.entered // frame 1 is in Play, blocked on the gate
	q.Enqueue(frameSeq(2))
	q.Clear()
	close(player.gate)
	q.Wait()

	got := player.order()
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("order = %v, want only the in-flight frame", got)
	}
}

func TestQueue_NilPlayerRejected(t *testing.T) {
	if _, err := NewQueue(nil, nil); err == nil {
		t.Fatal("expected error for nil player")
	}
}

func TestQueue_FIFOProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 50).Draw(t, "n")
		player := &fakePlayer{}
		q, err := NewQueue(player, nil)
		if err != nil {
			t.Fatalf("NewQueue: %v", err)
		}
		for seq := int64(1); seq <= int64(n); seq++ {
			q.Enqueue(frameSeq(seq))
		}
		q.Wait()
		got := player.order()
		if len(got) != n {
			t.Fatalf("played %d frames, want %d", len(got), n)
		}
		for i, seq := range got {
			if seq != int64(i+1) {
				t.Fatalf("position %d played seq %d", i, seq)
			}
		}
	})
}

func ExampleQueueState_String() {
	fmt.Println(QueueIdle, QueuePlaying)
	// Output: IDLE PLAYING
}
