package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/chzchzchz/specan/analyzer"
)

func testSpectrogram(rows, bins int, v float64) *analyzer.Spectrogram {
	s := &analyzer.Spectrogram{
		Axes:    analyzer.Axes{FreqRes: 9765.625, TimeRes: 1.024e-4, StartFreq: 791e6},
		FFTSize: bins,
	}
	for r := 0; r < rows; r++ {
		row := make([]float64, bins)
		for c := range row {
			row[c] = v - float64(c%7)
		}
		s.Rows = append(s.Rows, row)
	}
	return s
}

func TestScaleColor(t *testing.T) {
	if c := scaleColor(0); c != colorScale[0] {
		t.Fatalf("expected black, got %v", c)
	}
	if c := scaleColor(1); c != colorScale[3] {
		t.Fatalf("expected white, got %v", c)
	}
	if c := scaleColor(1.0 / 3); c.G != 255 || c.R > 1 {
		t.Fatalf("expected green, got %v", c)
	}
	p := newScalePalette(256)
	if len(p.Colors()) != 256 || p[0] != colorScale[0] || p[255] != colorScale[3] {
		t.Fatal("palette does not span the color scale")
	}
}

func TestWithOpacity(t *testing.T) {
	c := withOpacity(Red, 0.5).(color.NRGBA)
	if c.A != 127 || c.R != Red.R {
		t.Fatalf("unexpected color %v", c)
	}
	if withOpacity(Red, 1) != color.Color(Red) {
		t.Fatal("opaque trace changed color")
	}
}

func TestSweepPNG(t *testing.T) {
	first, second := testSpectrogram(12, 64, -20), testSpectrogram(12, 64, -30)
	traces := []Trace{
		{Spectrogram: first, Label: "Antenna RX2", Color: Green},
		{Spectrogram: second, Label: "Antenna TX/RX", Color: Red},
	}
	b, err := SweepPNG(first, traces, Options{VMin: -45, VMax: 0, Annotate: true})
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		t.Fatalf("empty image %v", img.Bounds())
	}
	if _, err := SweepPNG(&analyzer.Spectrogram{FFTSize: 64}, traces, Options{}); !errors.Is(err, ErrEmptySpectrogram) {
		t.Fatalf("expected ErrEmptySpectrogram, got %v", err)
	}
}

func TestAnnotation(t *testing.T) {
	s := testSpectrogram(1, 4, 0)
	if a := Annotation(s); a != "Sweep time: 0.10 ms    Resolution: 9.77 kHz" {
		t.Fatalf("unexpected annotation %q", a)
	}
}

func TestEncodeBase64Lines(t *testing.T) {
	b := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 50)
	enc := EncodeBase64Lines(b)
	if !strings.HasSuffix(enc, "\n") {
		t.Fatal("expected trailing newline")
	}
	lines := strings.Split(strings.TrimSuffix(enc, "\n"), "\n")
	for i, l := range lines[:len(lines)-1] {
		if len(l) != 76 {
			t.Fatalf("line %d: expected 76 columns, got %d", i, len(l))
		}
	}
	dec, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(enc, "\n", ""))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, b) {
		t.Fatal("round trip mismatch")
	}
	if EncodeBase64Lines(nil) != "" {
		t.Fatal("expected empty encoding")
	}
}
