package remote

import (
	"github.com/chzchzchz/specan/analyzer"
	"github.com/chzchzchz/specan/render"
)

// ResultPayload is the body posted to the result endpoint.
type ResultPayload struct {
	Room string `json:"room"`
	// Freq holds the spectrogram rows in time order.
	Freq [][]float64 `json:"freq"`
	// Image is the base64 PNG, MIME line-wrapped.
	Image string `json:"image"`
}

func NewResultPayload(room string, s *analyzer.Spectrogram, png []byte) *ResultPayload {
	freq := make([][]float64, len(s.Rows))
	for i, row := range s.Rows {
		freq[i] = append([]float64(nil), row...)
	}
	return &ResultPayload{Room: room, Freq: freq, Image: render.EncodeBase64Lines(png)}
}
