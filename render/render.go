package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"
	"io"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/chzchzchz/specan/analyzer"
)

var ErrEmptySpectrogram = errors.New("spectrogram has no rows")

var (
	Green = color.NRGBA{0, 200, 0, 255}
	Red   = color.NRGBA{220, 40, 40, 255}
)

var (
	background = color.NRGBA{0, 0, 0, 255}
	foreground = color.NRGBA{255, 255, 255, 255}
)

type Options struct {
	// VMin and VMax clip the heatmap color scale.
	VMin, VMax float64
	Width      vg.Length
	Height     vg.Length
	// Annotate adds sweep time and resolution to the title.
	Annotate bool
}

func (o Options) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 8 * vg.Inch
	}
	if h <= 0 {
		h = 6 * vg.Inch
	}
	return w, h
}

// Trace is one average power line.
type Trace struct {
	Spectrogram *analyzer.Spectrogram
	Label       string
	Color       color.Color
	// Opacity in [0, 1]; zero means opaque.
	Opacity float64
}

// spectrogramGrid presents a Spectrogram as a heatmap grid, x in MHz and
// y in ms.
type spectrogramGrid struct{ s *analyzer.Spectrogram }

func (g spectrogramGrid) Dims() (c, r int)   { return g.s.FFTSize, len(g.s.Rows) }
func (g spectrogramGrid) Z(c, r int) float64 { return g.s.Rows[r][c] }
func (g spectrogramGrid) X(c int) float64    { return g.s.FreqAt(c) / 1e6 }
func (g spectrogramGrid) Y(r int) float64    { return g.s.TimeAt(r) * 1e3 }

func darken(p *plot.Plot) {
	p.BackgroundColor = background
	p.Title.TextStyle.Color = foreground
	p.Legend.TextStyle.Color = foreground
	for _, ax := range []*plot.Axis{&p.X, &p.Y} {
		ax.LineStyle.Color = foreground
		ax.Label.TextStyle.Color = foreground
		ax.Tick.Label.Color = foreground
		ax.Tick.LineStyle.Color = foreground
	}
}

// SpectrogramPlot draws s as a heatmap clipped to [vmin, vmax].
func SpectrogramPlot(s *analyzer.Spectrogram, vmin, vmax float64) (*plot.Plot, error) {
	if s == nil || len(s.Rows) == 0 {
		return nil, ErrEmptySpectrogram
	}
	pal := newScalePalette(256)
	h := plotter.NewHeatMap(spectrogramGrid{s}, pal)
	h.Min, h.Max = vmin, vmax
	h.Underflow, h.Overflow = pal[0], pal[len(pal)-1]

	p := plot.New()
	darken(p)
	p.Add(h)
	p.Y.Label.Text = "Time [ms]"
	p.X.Min, p.X.Max = s.FreqAt(0)/1e6, s.FreqAt(s.FFTSize)/1e6
	return p, nil
}

// AvgPowerPlot draws the per-bin mean of every trace.
func AvgPowerPlot(traces ...Trace) (*plot.Plot, error) {
	p := plot.New()
	darken(p)
	p.X.Label.Text = "Frequency [MHz]"
	p.Y.Label.Text = "Power [dB]"
	for _, tr := range traces {
		if tr.Spectrogram == nil || len(tr.Spectrogram.Rows) == 0 {
			return nil, ErrEmptySpectrogram
		}
		avg := tr.Spectrogram.AvgPower()
		xys := make(plotter.XYs, len(avg))
		for c, v := range avg {
			xys[c].X, xys[c].Y = tr.Spectrogram.FreqAt(c)/1e6, v
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		l.LineStyle.Color = withOpacity(tr.Color, tr.Opacity)
		p.Add(l)
		if tr.Label != "" {
			p.Legend.Add(tr.Label, l)
		}
	}
	p.Legend.Top = true
	return p, nil
}

func withOpacity(c color.Color, opacity float64) color.Color {
	if c == nil {
		c = Green
	}
	if opacity <= 0 || opacity >= 1 {
		return c
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(255 * opacity)
	return n
}

// Annotation is the sweep time and resolution caption for s.
func Annotation(s *analyzer.Spectrogram) string {
	return fmt.Sprintf("Sweep time: %.2f ms    Resolution: %.2f kHz", s.TimeRes*1e3, s.FreqRes/1e3)
}

// Sweep writes a PNG with the spectrogram of main above the average power
// of every trace, sharing the frequency axis.
func Sweep(w io.Writer, main *analyzer.Spectrogram, traces []Trace, opts Options) error {
	top, err := SpectrogramPlot(main, opts.VMin, opts.VMax)
	if err != nil {
		return err
	}
	bottom, err := AvgPowerPlot(traces...)
	if err != nil {
		return err
	}
	bottom.X.Min, bottom.X.Max = top.X.Min, top.X.Max
	if opts.Annotate {
		top.Title.Text = Annotation(main)
	}

	width, height := opts.size()
	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseBackgroundColor(background))
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadTop: vg.Points(4), PadBottom: vg.Points(4), PadX: vg.Points(4)}
	plots := [][]*plot.Plot{{top}, {bottom}}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		plots[j][0].Draw(canvases[j][0])
	}
	_, err = vgimg.PngCanvas{Canvas: img}.WriteTo(w)
	return err
}

// SweepPNG renders Sweep into memory.
func SweepPNG(main *analyzer.Spectrogram, traces []Trace, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Sweep(&buf, main, traces, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeBase64Lines encodes b as MIME base64: 76 column lines, each ending
// in a newline.
func EncodeBase64Lines(b []byte) string {
	enc := base64.StdEncoding.EncodeToString(b)
	var sb strings.Builder
	sb.Grow(len(enc) + len(enc)/76 + 1)
	for len(enc) > 76 {
		sb.WriteString(enc[:76])
		sb.WriteByte('\n')
		enc = enc[76:]
	}
	if len(enc) > 0 {
		sb.WriteString(enc)
		sb.WriteByte('\n')
	}
	return sb.String()
}
