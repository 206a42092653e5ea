package http

import (
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"path"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chzchzchz/specan/radio"
	"github.com/chzchzchz/specan/store"
)

type httpHandler struct {
	ss         *store.SweepStore
	metrics    http.Handler
	serverTmpl *template.Template
}

const serverTmplStr = `<!DOCTYPE html>
<html>
<head>
<title>specan</title>
<meta http-equiv="refresh" content="{{.Refresh}}">
<style>
body { background: black; color: white; }
table, th, td {
  border: 1px solid white;
  text-align: right;
}
</style>
</head>
<body>
<h1>specan</h1>
<hr/>
{{with .Sweep}}
<h2>Receiver &#x1F4FB;</h2>
<ul>
<li>Band: {{printf "%.3f" .Band.BeginMHz}}--{{printf "%.3f" .Band.EndMHz}}MHz ({{printf "%.0f" .Band.BandwidthKHz}}kHz)</li>
<li>Gain: {{printf "%.1f" .Settings.Gain}}dB</li>
<li>FFT: {{.Settings.FFTSize}} bins, {{printf "%.2f" .ResolutionKHz}}kHz, {{printf "%.3f" .SweepMs}}ms per row</li>
<li>Antennas: {{range $i, $a := .Antennas}}{{if $i}}, {{end}}{{$a}}{{end}}</li>
<li>Room: {{.Room}}</li>
<li>Time: {{.Time}}</li>
</ul>
<img src="latest.png" />
{{else}}
<p>No sweep yet.</p>
{{end}}
</body>
</html>
`

type sweepInfo struct {
	*store.SweepRecord
}

func (si sweepInfo) Band() radio.FreqBand {
	return radio.FreqBand{Center: si.Settings.CenterFreq / 1e6, Width: si.Settings.Bandwidth / 1e6}
}
func (si sweepInfo) ResolutionKHz() float64 { return si.Derived.FreqRes / 1e3 }
func (si sweepInfo) SweepMs() float64       { return si.Derived.TimeRes * 1e3 }

type indexPage struct {
	Refresh int
	Sweep   *sweepInfo
}

// NewHandler serves the latest sweep from ss and, if g is non-nil, its
// metrics on /metrics.
func NewHandler(ss *store.SweepStore, g prometheus.Gatherer) http.Handler {
	h := &httpHandler{
		ss:         ss,
		serverTmpl: template.Must(template.New("server").Parse(serverTmplStr)),
	}
	if g != nil {
		h.metrics = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return h
}

func ServeHttp(h http.Handler, serv string) error {
	return http.ListenAndServe(serv, h)
}

func (h *httpHandler) handleIndex(w http.ResponseWriter) {
	page := indexPage{Refresh: 1}
	if rec, _, ok := h.ss.Latest(); ok {
		page.Sweep = &sweepInfo{rec}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.serverTmpl.Execute(w, page); err != nil {
		io.WriteString(w, err.Error())
	}
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch path.Base(r.URL.Path) {
	case "latest.png":
		_, png, ok := h.ss.Latest()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	case "latest.json":
		rec, _, ok := h.ss.Latest()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	case "metrics":
		if h.metrics == nil {
			http.NotFound(w, r)
			return
		}
		h.metrics.ServeHTTP(w, r)
	default:
		h.handleIndex(w)
	}
}
