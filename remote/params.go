package remote

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/chzchzchz/specan/analyzer"
)

var ErrMalformedParams = errors.New("malformed params")

// Remote parameter keys, in the order they are applied.
const (
	KeyCenterFreq   = "cf"
	KeyGain         = "antennaGain"
	KeyFFTSize      = "fftSize"
	KeySamplingRate = "samplingRate"
	KeyPowerMin     = "powerMin"
	KeyPowerMax     = "powerMax"
)

// RemoteParams is one poll's parameter document, {"name": {"raw": value}}.
// It is never modified after parsing.
type RemoteParams struct {
	values map[string]gjson.Result
}

func ParseParams(body []byte) (*RemoteParams, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedParams)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: expected an object, got %s", ErrMalformedParams, doc.Type)
	}
	p := &RemoteParams{values: make(map[string]gjson.Result)}
	doc.ForEach(func(k, v gjson.Result) bool {
		p.values[k.String()] = v
		return true
	})
	return p, nil
}

// Raw returns the wrapper's raw value. Missing keys, wrappers without raw
// and a null raw are all absent.
func (p *RemoteParams) Raw(key string) (gjson.Result, bool) {
	if p == nil {
		return gjson.Result{}, false
	}
	w, ok := p.values[key]
	if !ok || !w.IsObject() {
		return gjson.Result{}, false
	}
	raw := w.Get("raw")
	if !raw.Exists() || raw.Type == gjson.Null {
		return gjson.Result{}, false
	}
	return raw, true
}

// Float returns the raw value of key as a number. Numeric strings are
// accepted.
func (p *RemoteParams) Float(key string) (float64, bool, error) {
	raw, ok := p.Raw(key)
	if !ok {
		return 0, false, nil
	}
	switch raw.Type {
	case gjson.Number:
		return raw.Num, true, nil
	case gjson.String:
		v, err := strconv.ParseFloat(raw.Str, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s: %v", ErrMalformedParams, key, err)
		}
		return v, true, nil
	}
	return 0, false, fmt.Errorf("%w: %s: unexpected %s", ErrMalformedParams, key, raw.Type)
}

// Keys lists the keys present in the document, sorted.
func (p *RemoteParams) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type paramSetter struct {
	key   string
	get   func(a *analyzer.Analyzer) float64
	apply func(a *analyzer.Analyzer, v float64) error
	// norm converts the raw value to what the setter stores, if set.
	norm func(v float64) (float64, error)
}

// fftSizeParam truncates like an int conversion after checking the value
// fits a transform.
func fftSizeParam(v float64) (float64, error) {
	if math.IsNaN(v) || v < 1 || v > analyzer.MaxFFTSize {
		return 0, fmt.Errorf("%w: fft size %v", analyzer.ErrInvalidSetting, v)
	}
	return math.Trunc(v), nil
}

var paramSetters = []paramSetter{
	{KeyCenterFreq, (*analyzer.Analyzer).CenterFreq, (*analyzer.Analyzer).SetCenterFreq, nil},
	{KeyGain, (*analyzer.Analyzer).Gain, (*analyzer.Analyzer).SetGain, nil},
	{
		KeyFFTSize,
		func(a *analyzer.Analyzer) float64 { return float64(a.FFTSize()) },
		func(a *analyzer.Analyzer, v float64) error { return a.SetFFTSize(int(v)) },
		fftSizeParam,
	},
	{KeySamplingRate, (*analyzer.Analyzer).Bandwidth, (*analyzer.Analyzer).SetBandwidth, nil},
	{
		KeyPowerMin,
		(*analyzer.Analyzer).VMin,
		func(a *analyzer.Analyzer, v float64) error { a.SetVMin(v); return nil },
		nil,
	},
	{
		KeyPowerMax,
		(*analyzer.Analyzer).VMax,
		func(a *analyzer.Analyzer, v float64) error { a.SetVMax(v); return nil },
		nil,
	},
}

// Apply pushes every present parameter that differs from the analyzer's
// current value. It stops at the first failing setter.
func (p *RemoteParams) Apply(a *analyzer.Analyzer) error {
	for _, ps := range paramSetters {
		v, ok, err := p.Float(ps.key)
		if err != nil {
			return err
		} else if !ok {
			continue
		}
		if ps.norm != nil {
			if v, err = ps.norm(v); err != nil {
				return fmt.Errorf("apply %s: %w", ps.key, err)
			}
		}
		if ps.get(a) == v {
			continue
		}
		log.Printf("[DEBUG] param %s: %v -> %v", ps.key, ps.get(a), v)
		if err := ps.apply(a, v); err != nil {
			return fmt.Errorf("apply %s=%v: %w", ps.key, v, err)
		}
	}
	return nil
}
