package tuner

import (
	"fmt"
	"math"
	"sync"

	"github.com/norasector/tuner/pkg/tuner/device"
)

type Mode string

const (
	ModeFM  Mode = "FM"
	ModeNFM Mode = "NFM"
	ModeWFM Mode = "WFM"
	ModeAM  Mode = "AM"
	ModeUSB Mode = "USB"
	ModeLSB Mode = "LSB"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeFM, ModeNFM, ModeWFM, ModeAM, ModeUSB, ModeLSB:
		return true
	}
	return false
}

// IsFM reports whether the mode uses the frequency discriminator.
func (m Mode) IsFM() bool {
	return m == ModeFM || m == ModeNFM || m == ModeWFM
}

type GainMode string

const (
	GainModeManual GainMode = "manual"
	GainModeAuto   GainMode = "auto"
)

// Settings is the complete receiver configuration. Values are copied in and
// out of the SettingsStore whole, never field by field.
type Settings struct {
	FrequencyHz  int64
	SampleRateHz int64
	// Gain in dB. nil or GainMode auto selects automatic gain.
	Gain        *int
	GainMode    GainMode
	Mode        Mode
	BandwidthHz float64
}

func DefaultSettings() Settings {
	gain := 28
	return Settings{
		FrequencyHz:  101900000,
		SampleRateHz: 2400000,
		Gain:         &gain,
		GainMode:     GainModeManual,
		Mode:         ModeFM,
		BandwidthHz:  25000,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.FrequencyHz <= 0:
		return fmt.Errorf("%w: frequency must be positive, got %d Hz", ErrInvalidSettings, s.FrequencyHz)
	case s.SampleRateHz <= 0:
		return fmt.Errorf("%w: sample rate must be positive, got %d Hz", ErrInvalidSettings, s.SampleRateHz)
	case s.GainMode != GainModeManual && s.GainMode != GainModeAuto:
		return fmt.Errorf("%w: unknown gain mode %q", ErrInvalidSettings, s.GainMode)
	case !s.Mode.Valid():
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSettings, s.Mode)
	case s.BandwidthHz < 0 || math.IsNaN(s.BandwidthHz):
		return fmt.Errorf("%w: bandwidth must be non-negative, got %v Hz", ErrInvalidSettings, s.BandwidthHz)
	case s.BandwidthHz > float64(s.SampleRateHz)/2:
		return fmt.Errorf("%w: bandwidth %v Hz exceeds Nyquist limit %v Hz", ErrInvalidSettings, s.BandwidthHz, float64(s.SampleRateHz)/2)
	}
	return nil
}

// AutoGain reports whether the device should pick its own gain.
func (s Settings) AutoGain() bool {
	return s.GainMode == GainModeAuto || s.Gain == nil
}

func (s Settings) Tuning() device.Tuning {
	t := device.Tuning{
		CenterFreq: s.FrequencyHz,
		SampleRate: s.SampleRateHz,
		AutoGain:   s.AutoGain(),
	}
	if !t.AutoGain {
		t.Gain = *s.Gain
	}
	return t
}

// SpectrumBandwidth is the bandwidth reported alongside spectrum frames: the
// filter bandwidth when one is set, otherwise the full span.
func (s Settings) SpectrumBandwidth() float64 {
	if s.BandwidthHz > 0 {
		return s.BandwidthHz
	}
	return float64(s.SampleRateHz)
}

func (s Settings) clone() Settings {
	if s.Gain != nil {
		gain := *s.Gain
		s.Gain = &gain
	}
	return s
}

// SettingsStore holds the current Settings. Readers always get a complete
// snapshot from a single committed update.
type SettingsStore struct {
	mu      sync.RWMutex
	current Settings
}

func NewSettingsStore(initial Settings) (*SettingsStore, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &SettingsStore{current: initial.clone()}, nil
}

func (s *SettingsStore) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Update applies fn to a copy of the current settings and commits the result
// if fn succeeds and the result validates. On error the stored settings are
// untouched.
func (s *SettingsStore) Update(fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.clone()
	if err := fn(&next); err != nil {
		return s.current.clone(), err
	}
	if err := next.Validate(); err != nil {
		return s.current.clone(), err
	}
	s.current = next
	return next.clone(), nil
}

func (s *SettingsStore) Set(next Settings) error {
	_, err := s.Update(func(cur *Settings) error {
		*cur = next.clone()
		return nil
	})
	return err
}
