package analyzer

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/chzchzchz/specan/radio"
)

// SampleBlock is one acquisition's worth of complex baseband samples.
type SampleBlock []complex64

type State int

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	if s == Streaming {
		return "streaming"
	}
	return "idle"
}

// Engine owns the receive stream and fills sample blocks from it.
type Engine struct {
	rx     radio.Receiver
	stream radio.Stream
	state  State
	buf    []complex64

	streamErrors atomic.Uint64
}

func NewEngine(rx radio.Receiver) *Engine { return &Engine{rx: rx} }

func (e *Engine) State() State { return e.state }

func (e *Engine) Provisioned() bool { return e.stream != nil }

// StreamErrors counts chunks reported with an error code.
func (e *Engine) StreamErrors() uint64 { return e.streamErrors.Load() }

// Provision opens a new stream, releasing any previous one. The new stream
// is not started.
func (e *Engine) Provision() error {
	if err := e.Teardown(); err != nil {
		log.Printf("[WARN] closing stream: %v", err)
	}
	s, err := e.rx.OpenStream()
	if err != nil {
		return err
	}
	e.stream = s
	return nil
}

func (e *Engine) Teardown() error {
	if e.stream == nil {
		return nil
	}
	e.Stop()
	err := e.stream.Close()
	e.stream = nil
	return err
}

func (e *Engine) Start() error {
	if e.stream == nil || e.state == Streaming {
		return nil
	}
	if err := e.stream.Start(); err != nil {
		return err
	}
	e.state = Streaming
	return nil
}

func (e *Engine) Stop() error {
	if e.stream == nil || e.state == Idle {
		return nil
	}
	e.state = Idle
	return e.stream.Stop()
}

// Acquire starts the stream, reads until n samples arrived and stops it.
// Chunk errors are logged and reading continues. If ctx ends first, the
// samples received so far are returned with a *PartialAcquisitionError.
func (e *Engine) Acquire(ctx context.Context, n int) (SampleBlock, error) {
	if e.stream == nil {
		return nil, ErrNoStream
	}
	if err := validNSamples(n); err != nil {
		return nil, err
	}
	if err := e.Start(); err != nil {
		return nil, err
	}
	defer func() {
		if err := e.Stop(); err != nil {
			log.Printf("[WARN] stopping stream: %v", err)
		}
	}()

	if len(e.buf) != n {
		e.buf = make([]complex64, n)
	}
	block, received := make(SampleBlock, n), 0
	for received < n {
		if err := ctx.Err(); err != nil {
			return block[:received], &PartialAcquisitionError{Received: received, Requested: n, Err: err}
		}
		got, md := e.stream.Recv(e.buf)
		if md.ErrorCode != radio.ErrorCodeNone {
			e.streamErrors.Add(1)
			log.Printf("[WARN] %s", md.Strerror())
		}
		if got > n-received {
			got = n - received
		}
		copy(block[received:], e.buf[:got])
		received += got
	}
	return block, nil
}
