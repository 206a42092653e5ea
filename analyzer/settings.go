package analyzer

import (
	"fmt"
	"math"
)

// Settings are the user-facing receiver parameters.
type Settings struct {
	CenterFreq float64 `yaml:"center_freq" json:"center_freq"`
	// Bandwidth is also the sample rate.
	Bandwidth float64 `yaml:"bandwidth" json:"bandwidth"`
	Gain      float64 `yaml:"gain" json:"gain"`
	FFTSize   int     `yaml:"fft_size" json:"fft_size"`
	NSamples  int     `yaml:"n_samples" json:"n_samples"`
	AntennaID int     `yaml:"antenna_id" json:"antenna_id"`
	// VMin and VMax bound the display color scale in dB.
	VMin float64 `yaml:"vmin" json:"vmin"`
	VMax float64 `yaml:"vmax" json:"vmax"`
}

// DefaultSettings returns a fresh copy of the default parameters.
func DefaultSettings() Settings {
	return Settings{
		CenterFreq: 796e6,
		Bandwidth:  10e6,
		Gain:       38,
		FFTSize:    1024,
		NSamples:   100000,
		AntennaID:  0,
		VMin:       -45,
		VMax:       0,
	}
}

// Derived holds values computed from Settings on every reconfiguration.
type Derived struct {
	SampleRate float64 `json:"sample_rate"`
	StartFreq  float64 `json:"start_freq"`
	EndFreq    float64 `json:"end_freq"`
	LOOffset   float64 `json:"lo_offset"`
	// FreqRes is the width of one FFT bin in Hz.
	FreqRes float64 `json:"freq_res"`
	// TimeRes is the duration of one FFT window in seconds.
	TimeRes float64 `json:"time_res"`
}

func (s Settings) Derive() Derived {
	return Derived{
		SampleRate: s.Bandwidth,
		StartFreq:  s.CenterFreq - s.Bandwidth/2,
		EndFreq:    s.CenterFreq + s.Bandwidth/2,
		LOOffset:   s.Bandwidth,
		FreqRes:    s.Bandwidth / float64(s.FFTSize),
		TimeRes:    float64(s.FFTSize) / s.Bandwidth,
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func validCenterFreq(hz float64) error {
	if !finite(hz) || hz <= 0 {
		return fmt.Errorf("%w: center frequency %v", ErrInvalidSetting, hz)
	}
	return nil
}

func validBandwidth(hz float64) error {
	if !finite(hz) || hz <= 0 {
		return fmt.Errorf("%w: bandwidth %v", ErrInvalidSetting, hz)
	}
	return nil
}

func validGain(db float64) error {
	if !finite(db) {
		return fmt.Errorf("%w: gain %v", ErrInvalidSetting, db)
	}
	return nil
}

// MaxFFTSize bounds the transform so a bad request cannot exhaust memory.
const MaxFFTSize = 1 << 20

func validFFTSize(n int) error {
	if n <= 0 || n > MaxFFTSize {
		return fmt.Errorf("%w: fft size %d", ErrInvalidSetting, n)
	}
	return nil
}

func validNSamples(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: sample count %d", ErrInvalidSetting, n)
	}
	return nil
}

func (s Settings) validate() error {
	for _, err := range []error{
		validCenterFreq(s.CenterFreq),
		validBandwidth(s.Bandwidth),
		validGain(s.Gain),
		validFFTSize(s.FFTSize),
		validNSamples(s.NSamples),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
