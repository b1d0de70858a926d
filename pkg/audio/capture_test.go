package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestCapture_EmitsFixedSizeFrames(t *testing.T) {
	// 100ms of 16kHz mono s16le split into 20ms frames.
	pcm := SineTonePCM(440, CaptureSampleRateHz, 100*time.Millisecond, 0.5)
	src := io.NopCloser(bytes.NewReader(pcm))

	mic, err := NewCapture(CaptureConfig{Source: src})
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}
	defer mic.Close()

	var frames []Frame
	err = mic.Run(context.Background(), func(f Frame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(frames) != 5 {
		t.Fatalf("frames = %d, want 5", len(frames))
	}
	wantBytes := CaptureSampleRateHz * BytesPerSample / 50
	for i, f := range frames {
		if len(f.PCM) != wantBytes {
			t.Fatalf("frame %d size = %d, want %d", i, len(f.PCM), wantBytes)
		}
		if f.Seq != int64(i+1) {
			t.Fatalf("frame %d seq = %d, want %d", i, f.Seq, i+1)
		}
		if f.SampleRate != CaptureSampleRateHz || f.Channels != 1 {
			t.Fatalf("frame %d format = %d/%d", i, f.SampleRate, f.Channels)
		}
	}
}

func TestCapture_ShortTailFrameStillEmitted(t *testing.T) {
	frameBytes := CaptureSampleRateHz * BytesPerSample / 50
	pcm := make([]byte, frameBytes+100)
	mic, err := NewCapture(CaptureConfig{Source: io.NopCloser(bytes.NewReader(pcm))})
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}
	defer mic.Close()

	var sizes []int
	if err := mic.Run(context.Background(), func(f Frame) error {
		sizes = append(sizes, len(f.PCM))
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sizes) != 2 || sizes[0] != frameBytes || sizes[1] != 100 {
		t.Fatalf("sizes = %v", sizes)
	}
}

func TestCapture_EmitErrorStopsRun(t *testing.T) {
	pcm := make([]byte, CaptureSampleRateHz*BytesPerSample)
	mic, err := NewCapture(CaptureConfig{Source: io.NopCloser(bytes.NewReader(pcm))})
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}
	defer mic.Close()

	sentinel := errors.New("transport down")
	calls := 0
	err = mic.Run(context.Background(), func(Frame) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if calls != 1 {
		t.Fatalf("emit calls = %d, want 1", calls)
	}
}

func TestCapture_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mic, err := NewCapture(CaptureConfig{Source: io.NopCloser(bytes.NewReader(make([]byte, 4096)))})
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}
	defer mic.Close()

	if err := mic.Run(ctx, func(Frame) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCapture_NilEmitRejected(t *testing.T) {
	mic, err := NewCapture(CaptureConfig{Source: io.NopCloser(bytes.NewReader(nil))})
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}
	defer mic.Close()
	if err := mic.Run(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil emit")
	}
}
