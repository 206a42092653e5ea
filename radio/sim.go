package radio

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// SimConfig parameterizes a SimReceiver. Zero values pick defaults.
type SimConfig struct {
	Antennas []string
	// ToneAmplitude of the per-antenna carrier.
	ToneAmplitude float64
	NoiseLevel    float64
	NoNoise       bool
	// ChunkSize is the largest chunk a Recv delivers.
	ChunkSize int
	// Faults are error codes reported on the first chunks of every
	// started stream. A faulted chunk delivers no samples.
	Faults []ErrorCode
	// OnRecv is called before every Recv with the chunk index since Start.
	OnRecv func(chunk int)
	Seed   int64
}

// SimStats counts hardware calls.
type SimStats struct {
	Tunes          int
	GainSets       int
	RateSets       int
	AntennaSelects int
	StreamsOpened  int
	StreamsClosed  int
}

// SimReceiver synthesizes a carrier per antenna plus uniform noise. Antenna
// i carries a tone (i+1)/8 of the sample rate above the center.
type SimReceiver struct {
	cfg SimConfig

	mu       sync.Mutex
	rnd      *rand.Rand
	center   float64
	loOffset float64
	gain     float64
	rate     float64
	antenna  int
	stats    SimStats
	calls    []string
	t        int
}

func NewSimReceiver(cfg SimConfig) *SimReceiver {
	if len(cfg.Antennas) == 0 {
		cfg.Antennas = []string{"RX2", "TX/RX"}
	}
	if cfg.ToneAmplitude == 0 {
		cfg.ToneAmplitude = 0.5
	}
	if cfg.NoiseLevel == 0 {
		cfg.NoiseLevel = 0.01
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	return &SimReceiver{cfg: cfg, rnd: rand.New(rand.NewSource(cfg.Seed))}
}

func (sr *SimReceiver) Antennas() []string { return append([]string(nil), sr.cfg.Antennas...) }

func (sr *SimReceiver) record(call string) { sr.calls = append(sr.calls, call) }

func (sr *SimReceiver) Tune(centerHz, loOffsetHz float64) error {
	if centerHz <= 0 || math.IsNaN(centerHz) || math.IsInf(centerHz, 0) {
		return ErrFrequencyOutOfRange
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.center, sr.loOffset = centerHz, loOffsetHz
	sr.stats.Tunes++
	sr.record("tune")
	return nil
}

func (sr *SimReceiver) SetGain(db float64) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.gain = db
	sr.stats.GainSets++
	sr.record("gain")
	return nil
}

func (sr *SimReceiver) SetSampleRate(hz float64) error {
	if hz <= 0 {
		return ErrRateOutOfRange
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.rate = hz
	sr.stats.RateSets++
	sr.record("rate")
	return nil
}

func (sr *SimReceiver) SelectAntenna(name string) error {
	idx := antennaIndex(sr.cfg.Antennas, name)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownAntenna, name)
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.antenna = idx
	sr.stats.AntennaSelects++
	sr.record("antenna")
	return nil
}

func (sr *SimReceiver) OpenStream() (Stream, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.stats.StreamsOpened++
	sr.record("open")
	return &simStream{sr: sr}, nil
}

func (sr *SimReceiver) Info() HWInfo {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return HWInfo{
		Id:     "sim",
		Driver: "sim",
		SDRFormat: SDRFormat{
			BitDepth:   32,
			CenterHz:   uint64(sr.center),
			SampleRate: uint32(sr.rate),
		},
	}
}

func (sr *SimReceiver) Close() error { return nil }

func (sr *SimReceiver) Stats() SimStats {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.stats
}

// Calls lists hardware calls in order: tune, gain, rate, antenna, open, close.
func (sr *SimReceiver) Calls() []string {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return append([]string(nil), sr.calls...)
}

// Antenna is the name of the selected antenna.
func (sr *SimReceiver) Antenna() string {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.cfg.Antennas[sr.antenna]
}

// Tuning reports the last center frequency and LO offset.
func (sr *SimReceiver) Tuning() (centerHz, loOffsetHz float64) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.center, sr.loOffset
}

func (sr *SimReceiver) Gain() float64 {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.gain
}

func (sr *SimReceiver) SampleRate() float64 {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.rate
}

func (sr *SimReceiver) fill(buf []complex64) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	omega := 2 * math.Pi * (float64(sr.antenna+1) / 8.0)
	amp := sr.cfg.ToneAmplitude
	for i := range buf {
		phase := omega * float64(sr.t)
		re, im := amp*math.Cos(phase), amp*math.Sin(phase)
		if !sr.cfg.NoNoise {
			re += sr.cfg.NoiseLevel * (2*sr.rnd.Float64() - 1)
			im += sr.cfg.NoiseLevel * (2*sr.rnd.Float64() - 1)
		}
		buf[i] = complex(float32(re), float32(im))
		sr.t++
	}
}

type simStream struct {
	sr      *SimReceiver
	running bool
	closed  bool
	chunk   int
}

func (st *simStream) Start() error {
	if st.closed {
		return ErrStreamClosed
	}
	st.running, st.chunk = true, 0
	return nil
}

func (st *simStream) Stop() error {
	st.running = false
	return nil
}

func (st *simStream) Recv(buf []complex64) (int, RxMetadata) {
	if !st.running {
		return 0, RxMetadata{ErrorCode: ErrorCodeTimeout, Err: errors.New("stream not started")}
	}
	chunk := st.chunk
	st.chunk++
	if st.sr.cfg.OnRecv != nil {
		st.sr.cfg.OnRecv(chunk)
	}
	if chunk < len(st.sr.cfg.Faults) && st.sr.cfg.Faults[chunk] != ErrorCodeNone {
		return 0, RxMetadata{ErrorCode: st.sr.cfg.Faults[chunk]}
	}
	n := len(buf)
	if n > st.sr.cfg.ChunkSize {
		n = st.sr.cfg.ChunkSize
	}
	st.sr.fill(buf[:n])
	return n, RxMetadata{}
}

func (st *simStream) Close() error {
	if st.closed {
		return nil
	}
	st.closed, st.running = true, false
	st.sr.mu.Lock()
	defer st.sr.mu.Unlock()
	st.sr.stats.StreamsClosed++
	st.sr.record("close")
	return nil
}
