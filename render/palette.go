package render

import (
	"image/color"
)

// black, green, yellow, white
var colorScale = []color.NRGBA{
	{0, 0, 0, 255},
	{0, 255, 0, 255},
	{255, 255, 0, 255},
	{255, 255, 255, 255},
}

func interpolate(t float64, a, b uint8) uint8 { return uint8(float64(a)*(1-t) + float64(b)*t) }

// scaleColor maps v in [0, 1] onto colorScale.
func scaleColor(v float64) color.NRGBA {
	if v <= 0 {
		return colorScale[0]
	} else if v >= 1 {
		return colorScale[len(colorScale)-1]
	}
	idx := float64(len(colorScale)-1) * v
	t := idx - float64(int(idx))
	prev, next := colorScale[int(idx)], colorScale[int(idx)+1]
	return color.NRGBA{
		interpolate(t, prev.R, next.R),
		interpolate(t, prev.G, next.G),
		interpolate(t, prev.B, next.B),
		255,
	}
}

// scalePalette is a palette.Palette sampled from colorScale.
type scalePalette []color.Color

func newScalePalette(n int) scalePalette {
	if n < 2 {
		n = 2
	}
	p := make(scalePalette, n)
	for i := range p {
		p[i] = scaleColor(float64(i) / float64(n-1))
	}
	return p
}

func (p scalePalette) Colors() []color.Color { return p }
