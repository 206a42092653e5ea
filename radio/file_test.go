package radio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileReceiverLoops(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "capture.iq8")
	if err := os.WriteFile(fn, []byte{127, 127, 255, 127, 127, 255}, 0644); err != nil {
		t.Fatal(err)
	}
	fr, err := NewFileReceiver(fn, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Close()
	if ants := fr.Antennas(); len(ants) != 1 || ants[0] != "FILE" {
		t.Fatalf("unexpected antennas %v", ants)
	}
	st, err := fr.OpenStream()
	if err != nil {
		t.Fatal(err)
	}
	st.Start()
	var got []complex64
	buf := make([]complex64, 4)
	for i := 0; i < 10 && len(got) < 7; i++ {
		n, md := st.Recv(buf)
		if md.ErrorCode != ErrorCodeNone {
			t.Fatal(md.Strerror())
		}
		got = append(got, buf[:n]...)
	}
	if len(got) < 7 {
		t.Fatalf("expected replay to loop, got %d samples", len(got))
	}
	for i, v := range got {
		if v != got[i%3] {
			t.Fatalf("sample %d: expected %v, got %v", i, got[i%3], v)
		}
	}
}

func TestFileReceiverEmpty(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "empty.iq8")
	if err := os.WriteFile(fn, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileReceiver(fn, nil); err == nil {
		t.Fatal("expected error on empty capture")
	}
}
