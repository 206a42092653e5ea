package analyzer

import (
	"math"

	"github.com/runningwild/go-fftw/fftw"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"
)

// Transform turns fixed-size windows of samples into power spectra in dB.
type Transform struct {
	size   int
	window []float64
	arr    *fftw.Array
}

func NewTransform(size int) (*Transform, error) {
	if err := validFFTSize(size); err != nil {
		return nil, err
	}
	w := make([]float64, size)
	for i := range w {
		w[i] = 1
	}
	// Hamming of length one is defined as [1].
	if size > 1 {
		w = window.Hamming(w)
	}
	return &Transform{size: size, window: w, arr: fftw.NewArray(size)}, nil
}

func (t *Transform) Size() int { return t.size }

// Row computes |10·log10(|FFT(hamming·x)|²)| with zero frequency shifted to
// index size/2. Non-finite values become 0 before the absolute value.
func (t *Transform) Row(samples []complex64) ([]float64, error) {
	if len(samples) != t.size {
		return nil, ErrWindowSize
	}
	for i, s := range samples {
		t.arr.Elems[i] = complex128(s) * complex(t.window[i], 0)
	}
	spec := fftw.FFT(t.arr).Elems
	n, row := t.size, make([]float64, t.size)
	for k := range row {
		v := spec[(k+n-n/2)%n]
		db := 10 * math.Log10(real(v)*real(v)+imag(v)*imag(v))
		if math.IsNaN(db) || math.IsInf(db, 0) {
			db = 0
		}
		row[k] = math.Abs(db)
	}
	return row, nil
}

// Axes maps spectrogram cells to time and frequency.
type Axes struct {
	FreqRes   float64 `json:"freq_res"`
	TimeRes   float64 `json:"time_res"`
	StartFreq float64 `json:"start_freq"`
}

func (d Derived) Axes() Axes {
	return Axes{FreqRes: d.FreqRes, TimeRes: d.TimeRes, StartFreq: d.StartFreq}
}

// Spectrogram rows are in time order, each holding negated dB values.
type Spectrogram struct {
	Axes
	Rows    [][]float64
	FFTSize int
	Antenna string
}

// Spectrogram splits block into consecutive non-overlapping windows. A
// trailing partial window is dropped.
func (t *Transform) Spectrogram(block SampleBlock, axes Axes) (*Spectrogram, error) {
	rows := make([][]float64, len(block)/t.size)
	for i := range rows {
		row, err := t.Row(block[i*t.size : (i+1)*t.size])
		if err != nil {
			return nil, err
		}
		for k := range row {
			row[k] = -row[k]
		}
		rows[i] = row
	}
	return &Spectrogram{Axes: axes, Rows: rows, FFTSize: t.size}, nil
}

func (s *Spectrogram) TimeAt(row int) float64 { return float64(row) * s.TimeRes }

func (s *Spectrogram) FreqAt(col int) float64 { return float64(col)*s.FreqRes + s.StartFreq }

// AvgPower is the per-bin mean over all rows.
func (s *Spectrogram) AvgPower() []float64 {
	if len(s.Rows) == 0 {
		return nil
	}
	avg, col := make([]float64, s.FFTSize), make([]float64, len(s.Rows))
	for c := range avg {
		for r, row := range s.Rows {
			col[r] = row[c]
		}
		avg[c] = stat.Mean(col, nil)
	}
	return avg
}
