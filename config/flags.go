package config

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/chzchzchz/specan/analyzer"
	"github.com/chzchzchz/specan/radio"
)

// Flags are the command line overrides shared by every command.
type Flags struct {
	fs *pflag.FlagSet

	path     string
	driver   string
	address  string
	devPath  string
	spawn    bool
	level    string
	antenna  string
	center   float64
	bw       float64
	gain     float64
	vmin     float64
	vmax     float64
	fftSize  int
	nSamples int
}

func AddFlags(fs *pflag.FlagSet) *Flags {
	d := analyzer.DefaultSettings()
	f := &Flags{fs: fs}
	fs.StringVarP(&f.path, "config", "c", "", "YAML config file")
	fs.StringVar(&f.driver, "device", "sim", "Receiver driver: sim, rtltcp or file")
	fs.StringVar(&f.address, "address", "127.0.0.1:1234", "rtl_tcp server address")
	fs.StringVar(&f.devPath, "iq-file", "", "u8 IQ capture replayed by the file driver")
	fs.BoolVar(&f.spawn, "spawn", false, "Start a local rtl_tcp")
	fs.StringVar(&f.level, "log-level", "INFO", "Minimum log level: DEBUG, INFO, WARN or ERROR")
	fs.StringVarP(&f.antenna, "antenna", "a", "", "Antenna name")
	fs.Float64VarP(&f.center, "frequency", "f", d.CenterFreq, "Center frequency in Hz")
	fs.Float64Var(&f.bw, "bandwidth", d.Bandwidth, "Bandwidth and sample rate in Hz")
	fs.Float64VarP(&f.gain, "gain", "g", d.Gain, "Receiver gain in dB")
	fs.Float64Var(&f.vmin, "vmin", d.VMin, "Lower display bound in dB")
	fs.Float64Var(&f.vmax, "vmax", d.VMax, "Upper display bound in dB")
	fs.IntVar(&f.fftSize, "fft-size", d.FFTSize, "FFT size")
	fs.IntVar(&f.nSamples, "samples", d.NSamples, "Samples per acquisition")
	return f
}

// Changed reports whether the named flag was set on the command line.
func (f *Flags) Changed(name string) bool { return f.fs.Changed(name) }

// Config loads the config file, if any, and applies the flags that were set.
func (f *Flags) Config() (*Config, error) {
	cfg := Default()
	if f.path != "" {
		var err error
		if cfg, err = Load(f.path); err != nil {
			return nil, err
		}
	}
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	r := &cfg.Receiver
	set("device", func() { cfg.Device.Driver = f.driver })
	set("address", func() { cfg.Device.Address = f.address })
	set("iq-file", func() { cfg.Device.Path = f.devPath })
	set("spawn", func() { cfg.Device.Spawn = f.spawn })
	set("log-level", func() { cfg.Logging.Level = f.level })
	set("antenna", func() { r.Antenna = f.antenna })
	set("frequency", func() { r.CenterFreq = f.center })
	set("bandwidth", func() { r.Bandwidth = f.bw })
	set("gain", func() { r.Gain = f.gain })
	set("vmin", func() { r.VMin = f.vmin })
	set("vmax", func() { r.VMax = f.vmax })
	set("fft-size", func() { r.FFTSize = f.fftSize })
	set("samples", func() { r.NSamples = f.nSamples })
	if _, err := parseLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenAnalyzer opens the configured receiver and applies the receiver
// settings. An unknown antenna name is an error.
func (c *Config) OpenAnalyzer(ctx context.Context) (*analyzer.Analyzer, radio.Receiver, error) {
	rx, err := radio.NewReceiver(ctx, c.Device)
	if err != nil {
		return nil, nil, err
	}
	s := c.Receiver.Settings
	if c.Receiver.Antenna != "" {
		s.AntennaID = 0
	}
	a, err := analyzer.New(rx, s)
	if err != nil {
		rx.Close()
		return nil, nil, err
	}
	if c.Receiver.Antenna != "" {
		if err := a.SetAntennaName(c.Receiver.Antenna); err != nil {
			rx.Close()
			return nil, nil, err
		}
	}
	return a, rx, nil
}
