package storage

import (
	"encoding/json"
	"io"
	"math"

	"github.com/san-kum/velctl/internal/loop"
)

type ExportData struct {
	Run      RunMetadata `json:"run"`
	Times    []float64   `json:"times"`
	Targets  []*float64  `json:"targets"`
	Measured []*float64  `json:"measured"`
	Throttle []float64   `json:"throttle"`
}

// ExportJSON writes a run as column arrays; unknown speeds become null.
func ExportJSON(w io.Writer, meta RunMetadata, ticks []loop.Tick) error {
	data := ExportData{
		Run:      meta,
		Times:    make([]float64, len(ticks)),
		Targets:  make([]*float64, len(ticks)),
		Measured: make([]*float64, len(ticks)),
		Throttle: make([]float64, len(ticks)),
	}
	for i, t := range ticks {
		data.Times[i] = t.Elapsed.Seconds()
		data.Throttle[i] = t.Throttle
		if t.Target.OK {
			v := t.Target.Value
			data.Targets[i] = &v
		}
		if t.Measured.OK && !math.IsNaN(t.Measured.Value) {
			v := t.Measured.Value
			data.Measured[i] = &v
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
