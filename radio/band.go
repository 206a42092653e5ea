package radio

// FreqBand is a band in MHz.
type FreqBand struct {
	Center float64
	Width  float64
}

func (f FreqBand) BeginMHz() float64     { return f.Center - f.Width/2.0 }
func (f FreqBand) EndMHz() float64       { return f.Center + f.Width/2.0 }
func (f FreqBand) BandwidthKHz() float64 { return f.Width * 1e3 }
