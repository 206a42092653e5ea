package remote

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/chzchzchz/specan/analyzer"
	"github.com/chzchzchz/specan/render"
	"github.com/chzchzchz/specan/store"
)

const DefaultInterval = 500 * time.Millisecond

type ServiceConfig struct {
	// Interval between polls and between measurement cycles.
	Interval time.Duration
	// Optional sinks for every completed sweep.
	Store  *store.SweepStore
	Mirror *Mirror
	// Metrics may be nil.
	Metrics *Metrics
	// ImageWidth and ImageHeight of the posted PNG; zero picks the default.
	ImageWidth, ImageHeight vg.Length
}

// Service keeps a room's parameters in sync and uploads sweeps. The poll
// loop is the only writer of the parameter snapshot; the measurement loop
// is the only user of the analyzer.
type Service struct {
	client *Client
	an     *analyzer.Analyzer
	cfg    ServiceConfig

	params  atomic.Pointer[RemoteParams]
	running atomic.Bool
	sweeps  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
}

func NewService(c *Client, an *analyzer.Analyzer, cfg ServiceConfig) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	s := &Service{client: c, an: an, cfg: cfg}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running.Store(true)
	return s
}

func (s *Service) Running() bool { return s.running.Load() }

// Stop clears the running flag and interrupts blocking calls of both loops.
func (s *Service) Stop() {
	s.running.Store(false)
	s.cancel()
}

// Params is the most recently polled parameter snapshot, or nil.
func (s *Service) Params() *RemoteParams { return s.params.Load() }

// Sweeps counts measurement cycles that posted a result.
func (s *Service) Sweeps() uint64 { return s.sweeps.Load() }

// Run polls parameters in the background and measures on the calling
// goroutine until Stop is called, ctx ends, or either loop exits.
func (s *Service) Run(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pollLoop()
	}()
	s.measureLoop()
	wg.Wait()
}

func (s *Service) sleep() {
	select {
	case <-s.ctx.Done():
	case <-time.After(s.cfg.Interval):
	}
}

func (s *Service) pollLoop() {
	defer s.Stop()
	if !s.Running() {
		return
	}
	if err := s.client.CreateRoom(s.ctx); err != nil {
		log.Printf("[WARN] create room %q: %v", s.client.Room, err)
	}
	for s.Running() {
		if err := s.PollOnce(s.ctx); err != nil && s.Running() {
			log.Printf("[WARN] error polling params: %v", err)
		}
		s.sleep()
	}
}

// PollOnce fetches the parameters and swaps them in. On failure the
// previous snapshot stays.
func (s *Service) PollOnce(ctx context.Context) error {
	p, err := s.client.Params(ctx)
	s.cfg.Metrics.poll(err)
	if err != nil {
		return err
	}
	log.Printf("[DEBUG] polled params %v", p.Keys())
	s.params.Store(p)
	return nil
}

func (s *Service) measureLoop() {
	defer s.Stop()
	for s.Running() {
		if err := s.MeasureOnce(s.ctx); err != nil && s.Running() {
			log.Printf("[WARN] error measuring: %v", err)
		}
		s.sleep()
	}
}

// MeasureOnce applies the current parameters, sweeps both antennas and
// posts the result.
func (s *Service) MeasureOnce(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.cfg.Metrics.cycle(err, time.Since(start)) }()

	if err := s.Params().Apply(s.an); err != nil {
		return err
	}
	first, second, err := s.sweep(ctx)
	if err != nil {
		return err
	}
	traces := []render.Trace{
		{Spectrogram: first, Label: "Antenna " + first.Antenna, Color: render.Green},
		{Spectrogram: second, Label: "Antenna " + second.Antenna, Color: render.Red},
	}
	opts := render.Options{
		VMin:     s.an.VMin(),
		VMax:     s.an.VMax(),
		Width:    s.cfg.ImageWidth,
		Height:   s.cfg.ImageHeight,
		Annotate: true,
	}
	png, err := render.SweepPNG(first, traces, opts)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	rec := store.NewSweepRecord(s.client.Room, s.an, first, second)
	if s.cfg.Store != nil {
		if err := s.cfg.Store.Put(rec, png); err != nil {
			log.Printf("[WARN] storing sweep: %v", err)
		}
	}
	err = s.client.PostResult(ctx, NewResultPayload(s.client.Room, first, png))
	s.cfg.Metrics.post(err)
	if err != nil {
		return fmt.Errorf("post result: %w", err)
	}
	if s.cfg.Mirror != nil {
		if err := s.cfg.Mirror.Publish(rec); err != nil {
			log.Printf("[WARN] mqtt: %v", err)
		}
	}
	s.sweeps.Add(1)
	return nil
}

// sweep acquires on the current antenna, then on its partner (index XOR 1),
// and restores the original antenna. If the partner does not exist the
// second acquisition reuses the current antenna.
func (s *Service) sweep(ctx context.Context) (first, second *analyzer.Spectrogram, err error) {
	prev := s.an.AntennaID()
	if first, err = s.an.Measure(ctx); err != nil {
		return nil, nil, err
	}
	// An invalid partner is logged by the analyzer; the second sweep then
	// reuses the current antenna.
	if err := s.an.SetAntennaID(prev ^ 1); err != nil {
		log.Printf("[DEBUG] no partner antenna, sweeping %s twice: %v", s.an.AntennaName(), err)
	}
	defer func() {
		if s.an.AntennaID() == prev {
			return
		}
		if rerr := s.an.SetAntennaID(prev); rerr != nil && err == nil {
			err = fmt.Errorf("restore antenna %d: %w", prev, rerr)
		}
	}()
	if second, err = s.an.Measure(ctx); err != nil {
		return nil, nil, err
	}
	return first, second, nil
}
