package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/chzchzchz/specan/radio"
)

func TestAcquireCopiesExactly(t *testing.T) {
	s := DefaultSettings()
	s.NSamples = 2500
	a, rx := newTestAnalyzer(t, radio.SimConfig{ChunkSize: 1000, NoNoise: true}, s)
	block, err := a.Engine().Acquire(context.TODO(), a.NSamples())
	if err != nil {
		t.Fatal(err)
	}
	if len(block) != 2500 {
		t.Fatalf("expected 2500 samples, got %d", len(block))
	}
	// The tone is continuous across chunk boundaries; a dropped or
	// duplicated chunk would break the expected sequence.
	ref := radio.NewSimReceiver(radio.SimConfig{ChunkSize: 2500, NoNoise: true})
	st, _ := ref.OpenStream()
	st.Start()
	expected := make([]complex64, 2500)
	st.Recv(expected)
	for i := range expected {
		if block[i] != expected[i] {
			t.Fatalf("sample %d: expected %v, got %v", i, expected[i], block[i])
		}
	}
	if a.Engine().State() != Idle {
		t.Fatal("stream left running")
	}
	if rx.Stats().StreamsOpened != 1 {
		t.Fatalf("expected one stream, got %d", rx.Stats().StreamsOpened)
	}
}

func TestAcquireLogsChunkErrors(t *testing.T) {
	s := DefaultSettings()
	s.NSamples = 3000
	cfg := radio.SimConfig{
		ChunkSize: 1000,
		Faults:    []radio.ErrorCode{radio.ErrorCodeOverflow, radio.ErrorCodeNone, radio.ErrorCodeTimeout},
	}
	a, _ := newTestAnalyzer(t, cfg, s)
	block, err := a.Engine().Acquire(context.TODO(), a.NSamples())
	if err != nil {
		t.Fatal(err)
	}
	if len(block) != 3000 {
		t.Fatalf("expected a full block, got %d", len(block))
	}
	if a.StreamErrors() != 2 {
		t.Fatalf("expected 2 stream errors, got %d", a.StreamErrors())
	}
}

func TestAcquireCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()
	cfg := radio.SimConfig{
		ChunkSize: 1000,
		OnRecv: func(chunk int) {
			if chunk == 2 {
				cancel()
			}
		},
	}
	a, _ := newTestAnalyzer(t, cfg, DefaultSettings())
	block, err := a.Engine().Acquire(ctx, a.NSamples())
	var perr *PartialAcquisitionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PartialAcquisitionError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected wrapped context.Canceled, got %v", err)
	}
	if perr.Received != 3000 || perr.Requested != 100000 || len(block) != 3000 {
		t.Fatalf("unexpected partial result %+v with %d samples", perr, len(block))
	}
	if a.Engine().State() != Idle {
		t.Fatal("stream left running after cancel")
	}
	if _, err := a.Measure(ctx); !errors.As(err, &perr) {
		t.Fatalf("expected Measure to report the partial acquisition, got %v", err)
	}
}

func TestEngineWithoutStream(t *testing.T) {
	e := NewEngine(radio.NewSimReceiver(radio.SimConfig{}))
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if e.State() != Idle {
		t.Fatal("expected idle engine")
	}
	if _, err := e.Acquire(context.TODO(), 10); !errors.Is(err, ErrNoStream) {
		t.Fatalf("expected ErrNoStream, got %v", err)
	}
}
