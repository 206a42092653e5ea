package radio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrRateOutOfRange = errors.New("sample rate out of range")
var ErrFrequencyOutOfRange = errors.New("frequency out of range")
var ErrGainOutOfRange = errors.New("gain out of range")
var ErrUnknownAntenna = errors.New("unknown antenna")
var ErrUnknownDriver = errors.New("unknown device driver")
var ErrStreamClosed = errors.New("stream closed")

// Receiver is a tunable front end with one or more selectable antenna ports.
type Receiver interface {
	// Antennas lists the antenna port names in a fixed order.
	Antennas() []string
	// Tune sets the center frequency, placing the local oscillator
	// loOffsetHz away from it where the hardware supports it.
	Tune(centerHz, loOffsetHz float64) error
	SetGain(db float64) error
	SetSampleRate(hz float64) error
	SelectAntenna(name string) error
	// OpenStream provisions a new receive stream. It is not started.
	OpenStream() (Stream, error)
	Info() HWInfo
	Close() error
}

// Stream delivers complex baseband samples in chunks.
type Stream interface {
	Start() error
	Stop() error
	// Recv fills at most len(buf) samples and reports the chunk's status.
	// A chunk may carry an error code and still deliver samples.
	Recv(buf []complex64) (int, RxMetadata)
	Close() error
}

type ErrorCode int

const (
	ErrorCodeNone ErrorCode = iota
	ErrorCodeTimeout
	ErrorCodeLateCommand
	ErrorCodeBrokenChain
	ErrorCodeOverflow
	ErrorCodeAlignment
	ErrorCodeBadPacket
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeNone:
		return "none"
	case ErrorCodeTimeout:
		return "timeout"
	case ErrorCodeLateCommand:
		return "late command"
	case ErrorCodeBrokenChain:
		return "broken chain"
	case ErrorCodeOverflow:
		return "overflow"
	case ErrorCodeAlignment:
		return "alignment"
	case ErrorCodeBadPacket:
		return "bad packet"
	}
	return fmt.Sprintf("unknown(%d)", int(c))
}

// RxMetadata describes one received chunk.
type RxMetadata struct {
	ErrorCode ErrorCode
	// Err is the transport error behind ErrorCode, if any.
	Err error
}

func (md RxMetadata) Strerror() string {
	if md.ErrorCode == ErrorCodeNone {
		return "ERROR_CODE_NONE"
	}
	if md.Err != nil {
		return fmt.Sprintf("ERROR_CODE_%s: %v", md.ErrorCode, md.Err)
	}
	return "ERROR_CODE_" + md.ErrorCode.String()
}

type SDRFormat struct {
	BitDepth   uint   `json:"bit_depth"`
	CenterHz   uint64 `json:"center_hz"`
	SampleRate uint32 `json:"sample_rate"`
}

type HWInfo struct {
	Id     string `json:"id"`
	Driver string `json:"driver"`

	MinHz         uint64 `json:"min_hz"`
	MaxHz         uint64 `json:"max_hz"`
	MinSampleRate uint32 `json:"min_sample_rate"`
	MaxSampleRate uint32 `json:"max_sample_rate"`

	SDRFormat
}

// DeviceConfig selects and parameterizes a receiver backend.
type DeviceConfig struct {
	// Driver is one of "sim", "rtltcp" or "file".
	Driver string `yaml:"driver"`
	// Address of an rtl_tcp server.
	Address string `yaml:"address"`
	// Spawn starts a local rtl_tcp for Serial listening on Address.
	Spawn  bool   `yaml:"spawn"`
	Serial string `yaml:"serial"`
	// PPM is the frequency correction sent to rtl_tcp.
	PPM int `yaml:"ppm"`
	// Path of a u8 IQ capture for the file driver.
	Path     string   `yaml:"path"`
	Antennas []string `yaml:"antennas"`
	// ReadTimeout bounds each chunk read.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

const defaultReadTimeout = 250 * time.Millisecond

func (cfg DeviceConfig) readTimeout() time.Duration {
	if cfg.ReadTimeout <= 0 {
		return defaultReadTimeout
	}
	return cfg.ReadTimeout
}

func NewReceiver(ctx context.Context, cfg DeviceConfig) (Receiver, error) {
	switch cfg.Driver {
	case "", "sim":
		return NewSimReceiver(SimConfig{Antennas: cfg.Antennas}), nil
	case "rtltcp":
		return newRTLSDR(ctx, cfg)
	case "file":
		return NewFileReceiver(cfg.Path, cfg.Antennas)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
}

func antennaIndex(antennas []string, name string) int {
	for i, a := range antennas {
		if a == name {
			return i
		}
	}
	return -1
}
