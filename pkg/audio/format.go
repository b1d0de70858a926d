// Package audio owns microphone capture and assistant speech playback.
// Both pipelines carry 16-bit little-endian PCM.
package audio

import (
	"math"
	"time"
)

const (
	// CaptureSampleRateHz is the upstream rate for microphone frames.
	CaptureSampleRateHz = 16000
	// PlaybackSampleRateHz is the rate assistant audio arrives at.
	PlaybackSampleRateHz = 24000
	// BytesPerSample is fixed by the s16le encoding.
	BytesPerSample = 2
)

// Frame is one unit of decodable audio. Frames are consumed exactly once,
// by transmission upstream or by local playback, in arrival order.
type Frame struct {
	ItemID     string
	Seq        int64
	SampleRate int
	Channels   int
	PCM        []byte
}

// Duration returns the wall-clock length of the frame's PCM payload.
func (f Frame) Duration() time.Duration {
	rate := f.SampleRate
	if rate <= 0 {
		rate = PlaybackSampleRateHz
	}
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	bytesPerSecond := rate * channels * BytesPerSample
	if bytesPerSecond <= 0 || len(f.PCM) == 0 {
		return 0
	}
	return time.Duration(len(f.PCM)) * time.Second / time.Duration(bytesPerSecond)
}

// RMS returns the root-mean-square level of s16le PCM, normalized to [0, 1].
// Useful for voice-activity metering in the capture loop.
func RMS(pcm []byte) float64 {
	samples := len(pcm) / BytesPerSample
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		s := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}

// SineTonePCM synthesizes an s16le mono test tone. amp is clamped to (0, 1].
func SineTonePCM(freqHz, sampleRateHz int, d time.Duration, amp float64) []byte {
	if freqHz <= 0 || sampleRateHz <= 0 || d <= 0 {
		return nil
	}
	if amp <= 0 {
		amp = 0.2
	}
	if amp > 1.0 {
		amp = 1.0
	}
	samples := int(float64(sampleRateHz) * d.Seconds())
	if samples <= 0 {
		samples = 1
	}
	out := make([]byte, samples*BytesPerSample)
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(sampleRateHz)
		v := amp * math.Sin(2*math.Pi*float64(freqHz)*t)
		s := int16(v * 32767.0)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
