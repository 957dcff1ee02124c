package audio

import (
	"fmt"
	"time"
)

// SpeechEvent signals a transition of the speech detector.
type SpeechEvent int

const (
	// SpeechStart fires when sustained energy confirms the user is speaking.
	SpeechStart SpeechEvent = iota
	// SpeechEnd fires after the silence window elapses below the low threshold.
	SpeechEnd
)

// SpeechDetectorConfig tunes the energy classifier. StartThreshold must sit
// above EndThreshold; the gap is the hysteresis that keeps borderline audio
// from toggling the detector.
type SpeechDetectorConfig struct {
	SampleRate     int
	StartThreshold float64       // RMS level that counts toward confirming speech
	EndThreshold   float64       // RMS level below which a frame counts as silence
	ConfirmFrames  int           // consecutive loud frames required to enter speaking
	SilenceWindow  time.Duration // sustained silence required to leave speaking
}

// DefaultSpeechDetectorConfig returns the tuning used by the capture path.
func DefaultSpeechDetectorConfig(sampleRate int) SpeechDetectorConfig {
	return SpeechDetectorConfig{
		SampleRate:     sampleRate,
		StartThreshold: 0.02,
		EndThreshold:   0.01,
		ConfirmFrames:  3,
		SilenceWindow:  1000 * time.Millisecond,
	}
}

// Validate checks the detector configuration.
func (c SpeechDetectorConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.StartThreshold <= c.EndThreshold {
		return fmt.Errorf("start threshold %f must exceed end threshold %f for hysteresis",
			c.StartThreshold, c.EndThreshold)
	}
	if c.ConfirmFrames <= 0 {
		return fmt.Errorf("confirm frames must be positive, got %d", c.ConfirmFrames)
	}
	if c.SilenceWindow <= 0 {
		return fmt.Errorf("silence window must be positive, got %s", c.SilenceWindow)
	}
	return nil
}

// SpeechDetector is an energy-threshold speech classifier with hysteresis,
// applied to the client-to-model capture path only.
type SpeechDetector struct {
	cfg SpeechDetectorConfig

	speaking     bool
	confirmCount int
	silence      time.Duration
}

// NewSpeechDetector creates a detector from a validated configuration.
func NewSpeechDetector(cfg SpeechDetectorConfig) (*SpeechDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SpeechDetector{cfg: cfg}, nil
}

// Speaking reports whether the detector currently classifies the input as
// speech.
func (d *SpeechDetector) Speaking() bool {
	return d.speaking
}

// Process classifies one capture frame and returns a transition event when
// the detector changes state.
func (d *SpeechDetector) Process(samples []float32) (SpeechEvent, bool) {
	if len(samples) == 0 {
		return 0, false
	}

	level := RMS(samples)
	frameDur := time.Duration(len(samples)) * time.Second / time.Duration(d.cfg.SampleRate)

	if !d.speaking {
		if level >= d.cfg.StartThreshold {
			d.confirmCount++
			if d.confirmCount >= d.cfg.ConfirmFrames {
				d.speaking = true
				d.confirmCount = 0
				d.silence = 0
				return SpeechStart, true
			}
		} else {
			d.confirmCount = 0
		}
		return 0, false
	}

	if level < d.cfg.EndThreshold {
		d.silence += frameDur
		if d.silence >= d.cfg.SilenceWindow {
			d.speaking = false
			d.silence = 0
			d.confirmCount = 0
			return SpeechEnd, true
		}
	} else {
		d.silence = 0
	}
	return 0, false
}
