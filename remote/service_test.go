package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chzchzchz/specan/analyzer"
	"github.com/chzchzchz/specan/radio"
	"github.com/chzchzchz/specan/store"
)

// fakeServer is an in-memory parameter/result server.
type fakeServer struct {
	*httptest.Server

	mu          sync.Mutex
	params      string
	paramStatus int
	paramPolls  int
	rooms       []string
	results     []ResultPayload
}

func newFakeServer(t *testing.T, params string) *fakeServer {
	fs := &fakeServer{params: params, paramStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/create_room", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.rooms = append(fs.rooms, r.URL.Query().Get("room"))
	})
	mux.HandleFunc("/params", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.paramPolls++
		w.WriteHeader(fs.paramStatus)
		io.WriteString(w, fs.params)
	})
	mux.HandleFunc("/result", func(w http.ResponseWriter, r *http.Request) {
		var res ResultPayload
		if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.results = append(fs.results, res)
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) setParams(status int, body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.paramStatus, fs.params = status, body
}

func (fs *fakeServer) pollCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.paramPolls
}

func (fs *fakeServer) resultCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.results)
}

func testSettings() analyzer.Settings {
	s := analyzer.DefaultSettings()
	s.FFTSize, s.NSamples = 256, 4096
	return s
}

func newTestService(t *testing.T, fs *fakeServer, simcfg radio.SimConfig, cfg ServiceConfig) (*Service, *analyzer.Analyzer, *radio.SimReceiver) {
	rx := radio.NewSimReceiver(simcfg)
	a, err := analyzer.New(rx, testSettings())
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewClient(Config{BaseURL: fs.URL + "/", Room: "lab 1"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return NewService(c, a, cfg), a, rx
}

func TestPollOnceKeepsPrevious(t *testing.T) {
	fs := newFakeServer(t, `{"cf": {"raw": 100e6}}`)
	s, _, _ := newTestService(t, fs, radio.SimConfig{}, ServiceConfig{})
	if err := s.PollOnce(context.TODO()); err != nil {
		t.Fatal(err)
	}
	first := s.Params()
	if v, ok, _ := first.Float(KeyCenterFreq); !ok || v != 100e6 {
		t.Fatal("expected polled center frequency")
	}

	fs.setParams(http.StatusOK, `[1, 2, 3]`)
	if err := s.PollOnce(context.TODO()); !errors.Is(err, ErrMalformedParams) {
		t.Fatalf("expected ErrMalformedParams, got %v", err)
	}
	if s.Params() != first {
		t.Fatal("malformed params replaced the snapshot")
	}

	fs.setParams(http.StatusInternalServerError, `{}`)
	var serr *StatusError
	if err := s.PollOnce(context.TODO()); !errors.As(err, &serr) || serr.Code != http.StatusInternalServerError {
		t.Fatalf("expected StatusError 500, got %v", err)
	}
	if s.Params() != first {
		t.Fatal("failed poll replaced the snapshot")
	}
}

func TestMeasureOnce(t *testing.T) {
	fs := newFakeServer(t, `{"powerMin": {"raw": -80}}`)
	dir := t.TempDir()
	ss, err := store.NewSweepStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	s, a, rx := newTestService(t, fs, radio.SimConfig{}, ServiceConfig{Store: ss})
	s.cfg.Metrics = NewMetrics(reg, a.StreamErrors)
	if err := s.PollOnce(context.TODO()); err != nil {
		t.Fatal(err)
	}
	if err := s.MeasureOnce(context.TODO()); err != nil {
		t.Fatal(err)
	}
	if a.VMin() != -80 {
		t.Fatalf("expected polled vmin applied, got %v", a.VMin())
	}
	if a.AntennaID() != 0 || rx.Antenna() != "RX2" {
		t.Fatalf("antenna not restored: %d/%s", a.AntennaID(), rx.Antenna())
	}
	if sel := rx.Stats().AntennaSelects; sel != 3 {
		t.Fatalf("expected initial, partner and restore selections, got %d", sel)
	}

	if fs.resultCount() != 1 {
		t.Fatalf("expected one result, got %d", fs.resultCount())
	}
	fs.mu.Lock()
	res := fs.results[0]
	fs.mu.Unlock()
	if res.Room != "lab 1" || len(res.Freq) != 16 || len(res.Freq[0]) != 256 {
		t.Fatalf("unexpected payload room %q shape %dx%d", res.Room, len(res.Freq), len(res.Freq[0]))
	}
	img, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(res.Image, "\n", ""))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(bytes.NewReader(img)); err != nil {
		t.Fatal(err)
	}

	rec, stored, ok := ss.Latest()
	if !ok || !bytes.Equal(stored, img) {
		t.Fatal("sweep not stored")
	}
	if len(rec.Antennas) != 2 || rec.Antennas[0] != "RX2" || rec.Antennas[1] != "TX/RX" {
		t.Fatalf("unexpected stored antennas %v", rec.Antennas)
	}
	if s.Sweeps() != 1 {
		t.Fatalf("expected one sweep, got %d", s.Sweeps())
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(mfs) == 0 {
		t.Fatal("expected registered metrics")
	}
}

func TestMeasureOnceSingleAntenna(t *testing.T) {
	fs := newFakeServer(t, `{}`)
	s, a, rx := newTestService(t, fs, radio.SimConfig{Antennas: []string{"RX2"}}, ServiceConfig{})
	if err := s.MeasureOnce(context.TODO()); err != nil {
		t.Fatal(err)
	}
	if a.AntennaID() != 0 || rx.Stats().AntennaSelects != 1 {
		t.Fatal("single antenna sweep changed the selection")
	}
	if fs.resultCount() != 1 {
		t.Fatal("expected a posted result")
	}
}

func TestMeasureOnceRestoresAntennaOnFailure(t *testing.T) {
	fs := newFakeServer(t, `{}`)
	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()
	recvs := 0
	simcfg := radio.SimConfig{
		ChunkSize: 1000,
		OnRecv: func(int) {
			// The first sweep takes five chunks.
			if recvs++; recvs == 6 {
				cancel()
			}
		},
	}
	s, a, rx := newTestService(t, fs, simcfg, ServiceConfig{})
	err := s.MeasureOnce(ctx)
	var perr *analyzer.PartialAcquisitionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PartialAcquisitionError, got %v", err)
	}
	if a.AntennaID() != 0 || rx.Antenna() != "RX2" {
		t.Fatal("antenna not restored after a failed sweep")
	}
	if fs.resultCount() != 0 {
		t.Fatal("failed sweep posted a result")
	}
}

func TestRunStops(t *testing.T) {
	fs := newFakeServer(t, `{"cf": {"raw": 100e6}}`)
	s, _, _ := newTestService(t, fs, radio.SimConfig{}, ServiceConfig{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.TODO())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	deadline := time.After(10 * time.Second)
	for fs.resultCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for results")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}
	if s.Running() {
		t.Fatal("running flag still set")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.rooms) != 1 || fs.rooms[0] != "lab 1" {
		t.Fatalf("expected one create_room for %q, got %v", "lab 1", fs.rooms)
	}
}

func TestStopBeforeRun(t *testing.T) {
	fs := newFakeServer(t, `{}`)
	s, _, _ := newTestService(t, fs, radio.SimConfig{}, ServiceConfig{})
	s.Stop()
	s.Run(context.TODO())
	if fs.resultCount() != 0 {
		t.Fatal("stopped service measured")
	}
}

func TestMeasureOnceHugeFFTSize(t *testing.T) {
	fs := newFakeServer(t, `{"fftSize": {"raw": 1e15}}`)
	s, a, _ := newTestService(t, fs, radio.SimConfig{}, ServiceConfig{})
	if err := s.PollOnce(context.TODO()); err != nil {
		t.Fatal(err)
	}
	if err := s.MeasureOnce(context.TODO()); !errors.Is(err, analyzer.ErrInvalidSetting) {
		t.Fatalf("expected ErrInvalidSetting, got %v", err)
	}
	if a.FFTSize() != 256 {
		t.Fatalf("expected fft size to stay 256, got %d", a.FFTSize())
	}
	if fs.resultCount() != 0 {
		t.Fatal("rejected params posted a result")
	}

	fs.setParams(http.StatusOK, `{"fftSize": {"raw": 128}}`)
	if err := s.PollOnce(context.TODO()); err != nil {
		t.Fatal(err)
	}
	if err := s.MeasureOnce(context.TODO()); err != nil {
		t.Fatal(err)
	}
	if a.FFTSize() != 128 || fs.resultCount() != 1 {
		t.Fatalf("expected recovery with fft 128, got %d and %d results", a.FFTSize(), fs.resultCount())
	}
}

func TestRunRecoversFromPollFailure(t *testing.T) {
	fs := newFakeServer(t, `{}`)
	fs.setParams(http.StatusInternalServerError, `{}`)
	s, a, rx := newTestService(t, fs, radio.SimConfig{}, ServiceConfig{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.TODO())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	wait := func(what string, cond func() bool) {
		deadline := time.After(10 * time.Second)
		for !cond() {
			select {
			case <-deadline:
				t.Fatalf("timed out waiting for %s", what)
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
	wait("failed polls", func() bool { return fs.pollCount() >= 2 })
	if cf, _ := rx.Tuning(); cf != 796e6 {
		t.Fatalf("failed poll changed tuning to %v", cf)
	}
	if !s.Running() {
		t.Fatal("poll failure stopped the service")
	}

	fs.setParams(http.StatusOK, `{"cf": {"raw": 100e6}}`)
	wait("retune", func() bool { cf, _ := rx.Tuning(); return cf == 100e6 })

	cancel()
	<-done
	if a.CenterFreq() != 100e6 {
		t.Fatalf("expected center frequency 100e6, got %v", a.CenterFreq())
	}
}
