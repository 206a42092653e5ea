package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chzchzchz/specan/analyzer"
)

const (
	imageFile  = "latest.png"
	recordFile = "latest.json"
)

// SweepRecord summarizes one dual antenna sweep.
type SweepRecord struct {
	Time     time.Time         `json:"time"`
	Room     string            `json:"room,omitempty"`
	Settings analyzer.Settings `json:"settings"`
	Derived  analyzer.Derived  `json:"derived"`
	Antennas []string          `json:"antennas"`
	// AvgPower holds one per-bin mean per antenna, in Antennas order.
	AvgPower [][]float64 `json:"avg_power"`
}

func NewSweepRecord(room string, a *analyzer.Analyzer, sweeps ...*analyzer.Spectrogram) *SweepRecord {
	rec := &SweepRecord{
		Time:     time.Now(),
		Room:     room,
		Settings: a.Settings(),
		Derived:  a.Derived(),
	}
	for _, s := range sweeps {
		rec.Antennas = append(rec.Antennas, s.Antenna)
		rec.AvgPower = append(rec.AvgPower, s.AvgPower())
	}
	return rec
}

// SweepStore keeps only the most recent sweep, optionally mirrored to
// baseDir as latest.png and latest.json.
type SweepStore struct {
	baseDir string

	mu  sync.RWMutex
	rec *SweepRecord
	png []byte
}

// NewSweepStore loads any sweep left in dir. An empty dir keeps the sweep
// in memory only.
func NewSweepStore(dir string) (*SweepStore, error) {
	ss := &SweepStore{baseDir: dir}
	if dir == "" {
		return ss, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(dir, recordFile))
	if errors.Is(err, os.ErrNotExist) {
		return ss, nil
	} else if err != nil {
		return nil, err
	}
	var rec SweepRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return ss, nil
	}
	png, err := os.ReadFile(filepath.Join(dir, imageFile))
	if err != nil {
		return ss, nil
	}
	ss.rec, ss.png = &rec, png
	return ss, nil
}

// Put replaces the stored sweep.
func (ss *SweepStore) Put(rec *SweepRecord, png []byte) error {
	ss.mu.Lock()
	ss.rec, ss.png = rec, png
	ss.mu.Unlock()
	if ss.baseDir == "" {
		return nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(ss.baseDir, imageFile), png); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(ss.baseDir, recordFile), b)
}

// Latest returns the stored sweep, if any.
func (ss *SweepStore) Latest() (*SweepRecord, []byte, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.rec, ss.png, ss.rec != nil
}

func writeFileAtomic(fn string, b []byte) error {
	f, err := os.CreateTemp(filepath.Dir(fn), "."+filepath.Base(fn)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), fn)
}
