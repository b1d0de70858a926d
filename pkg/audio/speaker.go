package audio

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// SpeakerConfig configures an ffplay-backed speaker.
type SpeakerConfig struct {
	FFplayPath   string
	SampleRateHz int
	Channels     int
	LogLevel     string
	Volume       int
	// Tick is the streaming granularity for realtime-paced writes.
	Tick time.Duration
}

// Speaker plays s16le PCM through an ffplay subprocess reading stdin. Play
// paces writes at realtime so it returns roughly when the frame has
// finished sounding, which is what the playback queue's no-overlap
// guarantee relies on.
type Speaker struct {
	cfg SpeakerConfig

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewSpeaker creates a speaker. The subprocess starts lazily on first Play.
func NewSpeaker(cfg SpeakerConfig) *Speaker {
	if strings.TrimSpace(cfg.FFplayPath) == "" {
		cfg.FFplayPath = "ffplay"
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = PlaybackSampleRateHz
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "error"
	}
	if cfg.Volume <= 0 {
		cfg.Volume = 80
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 20 * time.Millisecond
	}
	return &Speaker{cfg: cfg}
}

// Play streams one frame to the device in realtime-paced chunks.
func (s *Speaker) Play(f Frame) error {
	if s == nil || len(f.PCM) == 0 {
		return nil
	}
	if err := s.ensureRunning(); err != nil {
		return err
	}

	bytesPerSecond := s.cfg.SampleRateHz * s.cfg.Channels * BytesPerSample
	bytesPerTick := int64(bytesPerSecond) * int64(s.cfg.Tick) / int64(time.Second)
	if bytesPerTick <= 0 {
		bytesPerTick = 960
	}
	for off := int64(0); off < int64(len(f.PCM)); off += bytesPerTick {
		end := off + bytesPerTick
		if end > int64(len(f.PCM)) {
			end = int64(len(f.PCM))
		}
		if err := s.write(f.PCM[off:end]); err != nil {
			return err
		}
		time.Sleep(s.cfg.Tick)
	}
	return nil
}

func (s *Speaker) ensureRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		return nil
	}
	return s.startLocked()
}

func (s *Speaker) startLocked() error {
	// ffplay does not accept ffmpeg-style `-ac`; channel count goes through
	// `-ch_layout`.
	chLayout := "mono"
	if s.cfg.Channels == 2 {
		chLayout = "stereo"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", s.cfg.LogLevel,
		"-nostats",
		"-volume", fmt.Sprintf("%d", s.cfg.Volume),
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", chLayout,
		"-ar", fmt.Sprintf("%d", s.cfg.SampleRateHz),
		"-i", "-",
	}
	cmd := exec.Command(s.cfg.FFplayPath, args...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL can pick a silent dummy backend on macOS; prefer CoreAudio.
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return err
	}
	s.cmd = cmd
	s.stdin = stdin
	go func(c *exec.Cmd) {
		_ = c.Wait()
		s.mu.Lock()
		if s.cmd == c {
			s.cmd = nil
			s.stdin = nil
		}
		s.mu.Unlock()
	}(cmd)
	return nil
}

func (s *Speaker) write(p []byte) error {
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("ffplay is not running")
	}
	_, err := stdin.Write(p)
	return err
}

// Restart tears the subprocess down and starts a fresh one. Used after a
// device error to recover mid-session.
func (s *Speaker) Restart() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return s.startLocked()
}

// Close kills the subprocess if running.
func (s *Speaker) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Speaker) closeLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.cmd = nil
	s.stdin = nil
}
