package radio

import (
	"context"
	"errors"
	"testing"
)

func TestSimFaults(t *testing.T) {
	var chunks []int
	sr := NewSimReceiver(SimConfig{
		ChunkSize: 10,
		Faults:    []ErrorCode{ErrorCodeOverflow, ErrorCodeNone, ErrorCodeTimeout},
		OnRecv:    func(c int) { chunks = append(chunks, c) },
	})
	st, err := sr.OpenStream()
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Start(); err != nil {
		t.Fatal(err)
	}
	buf := make([]complex64, 64)
	expected := []struct {
		n    int
		code ErrorCode
	}{
		{0, ErrorCodeOverflow},
		{10, ErrorCodeNone},
		{0, ErrorCodeTimeout},
		{10, ErrorCodeNone},
	}
	for i, e := range expected {
		n, md := st.Recv(buf)
		if n != e.n || md.ErrorCode != e.code {
			t.Fatalf("chunk %d: expected %d/%v, got %d/%v", i, e.n, e.code, n, md.ErrorCode)
		}
	}
	if len(chunks) != 4 || chunks[3] != 3 {
		t.Fatalf("unexpected chunk indices %v", chunks)
	}
	// Restarting replays the faults.
	st.Stop()
	st.Start()
	if _, md := st.Recv(buf); md.ErrorCode != ErrorCodeOverflow {
		t.Fatalf("expected overflow after restart, got %v", md.ErrorCode)
	}
	st.Close()
	if err := st.Start(); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	stats := sr.Stats()
	if stats.StreamsOpened != 1 || stats.StreamsClosed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSimAntennas(t *testing.T) {
	sr := NewSimReceiver(SimConfig{})
	ants := sr.Antennas()
	if len(ants) != 2 || ants[0] != "RX2" || ants[1] != "TX/RX" {
		t.Fatalf("unexpected antennas %v", ants)
	}
	if err := sr.SelectAntenna("TX/RX"); err != nil {
		t.Fatal(err)
	}
	if sr.Antenna() != "TX/RX" {
		t.Fatalf("expected TX/RX, got %s", sr.Antenna())
	}
	if err := sr.SelectAntenna("RX1"); !errors.Is(err, ErrUnknownAntenna) {
		t.Fatalf("expected ErrUnknownAntenna, got %v", err)
	}
	if sr.Antenna() != "TX/RX" {
		t.Fatal("failed selection changed the antenna")
	}
}

func TestNewReceiverUnknownDriver(t *testing.T) {
	if _, err := NewReceiver(context.TODO(), DeviceConfig{Driver: "uhd"}); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}
