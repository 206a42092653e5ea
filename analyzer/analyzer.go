package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/chzchzchz/specan/radio"
)

// Analyzer drives one receiver: settings changes re-provision the hardware
// and Measure produces spectrograms. It is not safe for concurrent use.
type Analyzer struct {
	rx        radio.Receiver
	antennas  []string
	settings  Settings
	derived   Derived
	engine    *Engine
	transform *Transform
	reconfigs int
}

// New configures rx with s and provisions a stream.
func New(rx radio.Receiver, s Settings) (*Analyzer, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{rx: rx, antennas: rx.Antennas(), settings: s, engine: NewEngine(rx)}
	if len(a.antennas) == 0 {
		return nil, errors.New("receiver has no antennas")
	}
	if s.AntennaID < 0 || s.AntennaID >= len(a.antennas) {
		return nil, a.invalidAntenna(s.AntennaID, "")
	}
	if err := rx.SelectAntenna(a.antennas[s.AntennaID]); err != nil {
		return nil, err
	}
	if err := a.reconfigure(); err != nil {
		return nil, err
	}
	return a, nil
}

// reconfigure derives the dependent values, pushes tuning, gain and rate to
// the hardware, then replaces the stream.
func (a *Analyzer) reconfigure() error {
	a.derived = a.settings.Derive()
	if err := a.rx.Tune(a.settings.CenterFreq, a.derived.LOOffset); err != nil {
		return fmt.Errorf("tune %.0f Hz: %w", a.settings.CenterFreq, err)
	}
	if err := a.rx.SetGain(a.settings.Gain); err != nil {
		return fmt.Errorf("set gain %.1f dB: %w", a.settings.Gain, err)
	}
	if err := a.rx.SetSampleRate(a.derived.SampleRate); err != nil {
		return fmt.Errorf("set sample rate %.0f Hz: %w", a.derived.SampleRate, err)
	}
	if a.transform == nil || a.transform.Size() != a.settings.FFTSize {
		t, err := NewTransform(a.settings.FFTSize)
		if err != nil {
			return err
		}
		a.transform = t
	}
	if err := a.engine.Provision(); err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	a.reconfigs++
	return nil
}

// update reconfigures with next. If the hardware rejects it, the previous
// settings are restored and pushed again.
func (a *Analyzer) update(next Settings) error {
	prev := a.settings
	a.settings = next
	err := a.reconfigure()
	if err == nil {
		return nil
	}
	a.settings = prev
	if rerr := a.reconfigure(); rerr != nil {
		log.Printf("[WARN] restoring previous settings: %v", rerr)
	}
	return err
}

func (a *Analyzer) SetCenterFreq(hz float64) error {
	if err := validCenterFreq(hz); err != nil {
		return err
	}
	next := a.settings
	next.CenterFreq = hz
	return a.update(next)
}

// SetBandwidth sets both the analyzed bandwidth and the sample rate.
func (a *Analyzer) SetBandwidth(hz float64) error {
	if err := validBandwidth(hz); err != nil {
		return err
	}
	next := a.settings
	next.Bandwidth = hz
	return a.update(next)
}

func (a *Analyzer) SetGain(db float64) error {
	if err := validGain(db); err != nil {
		return err
	}
	next := a.settings
	next.Gain = db
	return a.update(next)
}

func (a *Analyzer) SetFFTSize(n int) error {
	if err := validFFTSize(n); err != nil {
		return err
	}
	next := a.settings
	next.FFTSize = n
	return a.update(next)
}

// SetNSamples sets the acquisition length. The stream is left as is.
func (a *Analyzer) SetNSamples(n int) error {
	if err := validNSamples(n); err != nil {
		return err
	}
	a.settings.NSamples = n
	return nil
}

func (a *Analyzer) SetVMin(db float64) { a.settings.VMin = db }
func (a *Analyzer) SetVMax(db float64) { a.settings.VMax = db }

func (a *Analyzer) invalidAntenna(id int, name string) *InvalidAntennaError {
	return &InvalidAntennaError{ID: id, Name: name, Available: append([]string(nil), a.antennas...)}
}

// SetAntennaID selects an antenna by index. An out of range index is logged
// and returned; the current antenna stays selected.
func (a *Analyzer) SetAntennaID(id int) error {
	if id < 0 || id >= len(a.antennas) {
		err := a.invalidAntenna(id, "")
		log.Printf("[WARN] %v", err)
		return err
	}
	if err := a.rx.SelectAntenna(a.antennas[id]); err != nil {
		return err
	}
	a.settings.AntennaID = id
	return nil
}

// SetAntennaName selects an antenna by name.
func (a *Analyzer) SetAntennaName(name string) error {
	for i, ant := range a.antennas {
		if ant == name {
			return a.SetAntennaID(i)
		}
	}
	return a.invalidAntenna(-1, name)
}

func (a *Analyzer) CenterFreq() float64 { return a.settings.CenterFreq }
func (a *Analyzer) Bandwidth() float64  { return a.settings.Bandwidth }
func (a *Analyzer) Gain() float64       { return a.settings.Gain }
func (a *Analyzer) FFTSize() int        { return a.settings.FFTSize }
func (a *Analyzer) NSamples() int       { return a.settings.NSamples }
func (a *Analyzer) VMin() float64       { return a.settings.VMin }
func (a *Analyzer) VMax() float64       { return a.settings.VMax }
func (a *Analyzer) AntennaID() int      { return a.settings.AntennaID }
func (a *Analyzer) AntennaName() string { return a.antennas[a.settings.AntennaID] }
func (a *Analyzer) Antennas() []string  { return append([]string(nil), a.antennas...) }

func (a *Analyzer) FreqRes() float64   { return a.derived.FreqRes }
func (a *Analyzer) TimeRes() float64   { return a.derived.TimeRes }
func (a *Analyzer) StartFreq() float64 { return a.derived.StartFreq }
func (a *Analyzer) EndFreq() float64   { return a.derived.EndFreq }
func (a *Analyzer) LOOffset() float64  { return a.derived.LOOffset }

func (a *Analyzer) Settings() Settings { return a.settings }
func (a *Analyzer) Derived() Derived   { return a.derived }

// Band is the analyzed band in MHz.
func (a *Analyzer) Band() radio.FreqBand {
	return radio.FreqBand{Center: a.settings.CenterFreq / 1e6, Width: a.settings.Bandwidth / 1e6}
}

// Reconfigurations counts completed hardware re-provisioning sequences.
func (a *Analyzer) Reconfigurations() int { return a.reconfigs }

func (a *Analyzer) StreamErrors() uint64 { return a.engine.StreamErrors() }

func (a *Analyzer) Engine() *Engine { return a.engine }

func (a *Analyzer) Info() radio.HWInfo { return a.rx.Info() }

// LogInfo logs the active antenna and tuning.
func (a *Analyzer) LogInfo() {
	info := a.rx.Info()
	log.Printf("[INFO] %s receiver %q", info.Driver, info.Id)
	log.Printf("[INFO] antenna %s (%d of %v) at %.3f MHz, %.3f MHz wide, gain %.1f dB",
		a.AntennaName(), a.settings.AntennaID, a.antennas,
		a.settings.CenterFreq/1e6, a.settings.Bandwidth/1e6, a.settings.Gain)
	log.Printf("[INFO] fft %d bins, %.2f kHz resolution, %.3f ms per row, %d samples",
		a.settings.FFTSize, a.derived.FreqRes/1e3, a.derived.TimeRes*1e3, a.settings.NSamples)
}

// Measure acquires one block on the selected antenna and transforms it.
func (a *Analyzer) Measure(ctx context.Context) (*Spectrogram, error) {
	_, s, err := a.Capture(ctx)
	return s, err
}

// Capture is Measure that also returns the raw samples.
func (a *Analyzer) Capture(ctx context.Context) (SampleBlock, *Spectrogram, error) {
	block, err := a.engine.Acquire(ctx, a.settings.NSamples)
	if err != nil {
		return nil, nil, err
	}
	s, err := a.transform.Spectrogram(block, a.derived.Axes())
	if err != nil {
		return nil, nil, err
	}
	s.Antenna = a.AntennaName()
	return block, s, nil
}
