package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"time"

	"github.com/chartvoice/chartvoice/pkg/core"
)

const defaultFrameDuration = 20 * time.Millisecond

// CaptureConfig configures a Capture.
type CaptureConfig struct {
	// SampleRateHz defaults to CaptureSampleRateHz.
	SampleRateHz int
	// FrameDuration sets the fixed frame size. Default 20ms.
	FrameDuration time.Duration
	// FFmpegPath overrides the ffmpeg binary name.
	FFmpegPath string
	// Source overrides the microphone with an arbitrary s16le stream.
	Source io.ReadCloser

	Logger *slog.Logger
}

// Capture reads microphone input as mono s16le PCM and emits fixed-size
// frames. The default source is an ffmpeg subprocess; any s16le reader can
// be substituted through CaptureConfig.Source.
type Capture struct {
	src        io.ReadCloser
	cmd        *exec.Cmd
	sampleRate int
	frameBytes int
	log        *slog.Logger
}

// NewCapture opens the capture source. Callers must Close it.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = CaptureSampleRateHz
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = defaultFrameDuration
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	frameBytes := cfg.SampleRateHz * BytesPerSample * int(cfg.FrameDuration) / int(time.Second)
	if frameBytes <= 0 {
		return nil, core.NewInvalidRequestError("frame duration is too short for the sample rate")
	}

	c := &Capture{
		sampleRate: cfg.SampleRateHz,
		frameBytes: frameBytes,
		log:        logger.With("component", "capture"),
	}
	if cfg.Source != nil {
		c.src = cfg.Source
		return c, nil
	}

	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	if _, err := exec.LookPath(path); err != nil {
		return nil, core.NewInvalidRequestError("ffmpeg is required for microphone capture (install ffmpeg and ensure it is in PATH)")
	}
	args, err := micFFmpegArgs(runtime.GOOS, cfg.SampleRateHz)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	c.cmd = cmd
	c.src = stdout
	return c, nil
}

func micFFmpegArgs(goos string, sampleRateHz int) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRateHz),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", sampleRateHz),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

// Run reads frames until the source ends, the context is cancelled, or emit
// returns an error. Each emitted frame carries a monotonic sequence number.
func (c *Capture) Run(ctx context.Context, emit func(Frame) error) error {
	if emit == nil {
		return core.NewInvalidRequestError("emit callback must not be nil")
	}
	buf := make([]byte, c.frameBytes)
	var seq int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := io.ReadFull(c.src, buf)
		if n > 0 {
			seq++
			pcm := make([]byte, n)
			copy(pcm, buf[:n])
			frame := Frame{
				Seq:        seq,
				SampleRate: c.sampleRate,
				Channels:   1,
				PCM:        pcm,
			}
			if emitErr := emit(frame); emitErr != nil {
				return emitErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return core.NewTransportError("read microphone", err)
		}
	}
}

// Close stops the source. Safe to call while Run is blocked reading.
func (c *Capture) Close() error {
	if c == nil {
		return nil
	}
	if c.src != nil {
		_ = c.src.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	return nil
}
