package radio

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

var dongleMagic = [...]byte{'R', 'T', 'L', '0'}

// rtlTCPConn is a client connection to an rtl_tcp server. Commands go out
// on the same connection the u8 IQ stream comes in on.
type rtlTCPConn struct {
	net.Conn
	Info DongleInfo
}

// dialRTLTCP connects to the server at addr, of the form "127.0.0.1:1234",
// and reads the dongle header. The caller closes the connection.
func dialRTLTCP(ctx context.Context, addr string) (c *rtlTCPConn, err error) {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("error connecting to rtl_tcp server: %w", err)
	}
	defer func() {
		if err != nil {
			conn.Close()
		}
	}()
	c = &rtlTCPConn{Conn: conn}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err = binary.Read(conn, binary.BigEndian, &c.Info); err != nil {
		return nil, fmt.Errorf("error getting dongle information: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if !c.Info.Valid() {
		return nil, fmt.Errorf("bad magic number: %q", c.Info.Magic)
	}
	return c, nil
}

// DongleInfo is data pulled from the rtl_tcp server on connection.
type DongleInfo struct {
	Magic     [4]byte
	Tuner     uint32
	GainCount uint32
}

// Valid checks the received magic number matches the expected byte string 'RTL0'.
func (d DongleInfo) Valid() bool {
	return d.Magic == dongleMagic
}

type command struct {
	command   uint8
	Parameter uint32
}

// Command constants defined in rtl_tcp.c
const (
	centerFreq = iota + 1
	sampleRate
	tunerGainMode
	tunerGain
	freqCorrection
	tunerIfGain
	testMode
	agcMode
	directSampling
	offsetTuning
)

func (c *rtlTCPConn) do(cmd uint8, v uint32) error {
	return binary.Write(c.Conn, binary.BigEndian, command{cmd, v})
}

func boolParam(state bool) uint32 {
	if state {
		return 1
	}
	return 0
}

// Set the center frequency in Hz.
func (c *rtlTCPConn) SetCenterFreq(freq uint32) error { return c.do(centerFreq, freq) }

// Set the sample rate in Hz.
func (c *rtlTCPConn) SetSampleRate(rate uint32) error { return c.do(sampleRate, rate) }

// Set gain in tenths of dB. (197 => 19.7dB)
func (c *rtlTCPConn) SetGain(gain uint32) error { return c.do(tunerGain, gain) }

// Set manual tuner gain, false for tuner AGC.
func (c *rtlTCPConn) SetManualGain(state bool) error {
	return c.do(tunerGainMode, boolParam(state))
}

// Set frequency correction in ppm.
func (c *rtlTCPConn) SetFreqCorrection(ppm int32) error {
	return c.do(freqCorrection, uint32(ppm))
}

// Set RTL AGC mode, true for enabled.
func (c *rtlTCPConn) SetAGCMode(state bool) error { return c.do(agcMode, boolParam(state)) }

// Set direct sampling mode. 0 = disabled, 1 = i-branch, 2 = q-branch.
func (c *rtlTCPConn) SetDirectSampling(mode uint32) error { return c.do(directSampling, mode) }

// Set offset tuning, true for enabled.
func (c *rtlTCPConn) SetOffsetTuning(state bool) error {
	return c.do(offsetTuning, boolParam(state))
}
