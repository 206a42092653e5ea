package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/kr/pty"
)

var minFreqHz = uint32(25000000)
var maxFreqHz = uint32(1750000000)
var minRate = uint32(225000)
var maxRate = uint32(3200000)

const defaultRTLTCPAddr = "127.0.0.1:1234"

// The RTL2832 input path is the "antenna": the tuner or one of the
// direct sampling branches.
var rtlAntennas = []string{"RF", "DIRECT_I", "DIRECT_Q"}

type rtlSDR struct {
	conn *rtlTCPConn
	cmd  *exec.Cmd
	fpty *os.File

	addr        string
	serial      string
	readTimeout time.Duration

	lastCenter     uint32
	lastSampleRate uint32
	lastGain       uint32
	lastOffsetTune bool
	antenna        int

	mu sync.Mutex
}

func newRTLSDR(ctx context.Context, cfg DeviceConfig) (*rtlSDR, error) {
	s := &rtlSDR{
		addr:        cfg.Address,
		serial:      cfg.Serial,
		readTimeout: cfg.readTimeout(),
	}
	if s.addr == "" {
		s.addr = defaultRTLTCPAddr
	}
	if s.serial == "" {
		s.serial = "0"
	}
	if cfg.Spawn {
		if err := s.spawn(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.initConn(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if cfg.PPM != 0 {
		if err := s.conn.SetFreqCorrection(int32(cfg.PPM)); err != nil {
			s.Close()
			return nil, err
		}
	}
	// Manual gain so SetGain takes effect.
	if err := s.conn.SetManualGain(true); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.conn.SetAGCMode(false); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *rtlSDR) spawn(ctx context.Context) error {
	host, port, err := net.SplitHostPort(s.addr)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "rtl_tcp", "-a", host, "-p", port, "-d", s.serial, "-s", "240000")
	fpty, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	go io.Copy(log.Writer(), fpty)
	s.cmd, s.fpty = cmd, fpty
	// TODO: wait for 'listening...' once the pty output is line-buffered.
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *rtlSDR) Antennas() []string { return append([]string(nil), rtlAntennas...) }

func (s *rtlSDR) Tune(centerHz, loOffsetHz float64) error {
	if centerHz < float64(minFreqHz) || centerHz > float64(maxFreqHz) {
		return ErrFrequencyOutOfRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.initConn(context.TODO()); err != nil {
		return err
	}
	// The LO cannot be placed independently; offset tuning keeps it off
	// the center where the tuner supports it.
	if offset := loOffsetHz != 0; offset != s.lastOffsetTune {
		if err := s.conn.SetOffsetTuning(offset); err != nil {
			return err
		}
		s.lastOffsetTune = offset
	}
	cent := uint32(centerHz)
	if s.lastCenter != cent {
		if err := s.conn.SetCenterFreq(cent); err != nil {
			return err
		}
		s.lastCenter = cent
	}
	return nil
}

func (s *rtlSDR) SetGain(db float64) error {
	if db < 0 || math.IsNaN(db) || math.IsInf(db, 0) {
		return ErrGainOutOfRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.initConn(context.TODO()); err != nil {
		return err
	}
	tenths := uint32(math.Round(db * 10))
	if err := s.conn.SetGain(tenths); err != nil {
		return err
	}
	s.lastGain = tenths
	return nil
}

func isValidRate(rate uint32) bool {
	return !((rate <= minRate) || (rate > maxRate) ||
		((rate > 300000) && (rate <= 900000)))
}

func (s *rtlSDR) SetSampleRate(hz float64) error {
	if hz <= 0 || hz > float64(maxRate) {
		return ErrRateOutOfRange
	}
	rate := uint32(hz)
	if !isValidRate(rate) {
		return ErrRateOutOfRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSampleRate == rate {
		return nil
	}
	if err := s.initConn(context.TODO()); err != nil {
		return err
	}
	if err := s.conn.SetSampleRate(rate); err != nil {
		return err
	}
	s.lastSampleRate = rate
	return nil
}

func (s *rtlSDR) SelectAntenna(name string) error {
	idx := antennaIndex(rtlAntennas, name)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownAntenna, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.initConn(context.TODO()); err != nil {
		return err
	}
	if err := s.conn.SetDirectSampling(uint32(idx)); err != nil {
		return err
	}
	s.antenna = idx
	return nil
}

func (s *rtlSDR) OpenStream() (Stream, error) {
	return &rtlStream{s: s}, nil
}

func (s *rtlSDR) Info() HWInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return HWInfo{
		Id:     s.serial,
		Driver: "rtltcp",
		SDRFormat: SDRFormat{
			BitDepth:   8,
			CenterHz:   uint64(s.lastCenter),
			SampleRate: s.lastSampleRate,
		},
		MinHz:         uint64(minFreqHz),
		MaxHz:         uint64(maxFreqHz),
		MinSampleRate: minRate,
		MaxSampleRate: maxRate,
	}
}

func (s *rtlSDR) Close() error {
	s.mu.Lock()
	err := s.stop()
	s.mu.Unlock()
	if s.cmd == nil {
		return err
	}
	s.fpty.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Signal(os.Interrupt)
	}
	s.cmd.Wait()
	return err
}

func (s *rtlSDR) stop() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// resetConn reconnects so following reads get samples from the current tuning.
func (s *rtlSDR) resetConn(ctx context.Context) (err error) {
	s.stop()
	s.conn, err = connect(ctx, s.addr)
	return err
}

func (s *rtlSDR) initConn(ctx context.Context) (err error) {
	if s.conn == nil {
		err = s.resetConn(ctx)
	}
	return err
}

func connect(ctx context.Context, addr string) (c *rtlTCPConn, err error) {
	for i := 0; i < 10; i++ {
		if c, err = dialRTLTCP(ctx, addr); err == nil {
			return c, nil
		}
		log.Printf("[DEBUG] rtl_tcp connect %s: %v", addr, err)
		time.Sleep(100 * time.Millisecond)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, err
}

type rtlStream struct {
	s       *rtlSDR
	iqr     *IQReader
	conn    *rtlTCPConn
	running bool
	closed  bool
}

func (st *rtlStream) Start() error {
	if st.closed {
		return ErrStreamClosed
	}
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.s.resetConn(context.TODO()); err != nil {
		return err
	}
	st.conn, st.iqr, st.running = st.s.conn, NewIQReader(st.s.conn), true
	return nil
}

func (st *rtlStream) Stop() error {
	if !st.running {
		return nil
	}
	st.running = false
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	// Drop the connection so rtl_tcp stops queueing samples for us.
	if st.s.conn == st.conn {
		return st.s.stop()
	}
	return nil
}

func (st *rtlStream) Recv(buf []complex64) (int, RxMetadata) {
	if !st.running {
		return 0, RxMetadata{ErrorCode: ErrorCodeTimeout, Err: errors.New("stream not started")}
	}
	st.conn.SetReadDeadline(time.Now().Add(st.s.readTimeout))
	n, err := st.iqr.ReadIQ(buf)
	if err == nil {
		return n, RxMetadata{}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return n, RxMetadata{ErrorCode: ErrorCodeTimeout, Err: err}
	}
	return n, RxMetadata{ErrorCode: ErrorCodeBrokenChain, Err: err}
}

func (st *rtlStream) Close() error {
	err := st.Stop()
	st.closed = true
	return err
}
