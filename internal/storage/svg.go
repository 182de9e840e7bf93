package storage

import (
	"fmt"
	"io"
	"strings"

	"github.com/san-kum/velctl/internal/loop"
	"github.com/san-kum/velctl/internal/velocity"
)

const (
	targetStroke   = "#ffaa00"
	measuredStroke = "#00ff88"
)

// ExportSVG plots target and measured speed against time. Unknown samples
// break the measured path.
func ExportSVG(w io.Writer, ticks []loop.Tick, width, height int) error {
	if len(ticks) < 2 {
		return fmt.Errorf("need at least 2 ticks to plot, have %d", len(ticks))
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid plot size %dx%d", width, height)
	}

	minX, maxX := ticks[0].Elapsed.Seconds(), ticks[len(ticks)-1].Elapsed.Seconds()
	minY, maxY := 0.0, 0.0
	for _, t := range ticks {
		for _, s := range []velocity.Sample{t.Target, t.Measured} {
			if !s.OK {
				continue
			}
			if s.Value < minY {
				minY = s.Value
			}
			if s.Value > maxY {
				maxY = s.Value
			}
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	project := func(t loop.Tick, v float64) (float64, float64) {
		x := (t.Elapsed.Seconds() - minX) / rangeX * float64(width)
		y := float64(height) - (v-minY)/rangeY*float64(height)
		return x, y
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	_, zero := project(ticks[0], 0)
	fmt.Fprintf(&sb, `<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="#333333" stroke-width="1"/>
`, zero, width, zero)

	for _, series := range []struct {
		stroke string
		pick   func(loop.Tick) velocity.Sample
	}{
		{targetStroke, func(t loop.Tick) velocity.Sample { return t.Target }},
		{measuredStroke, func(t loop.Tick) velocity.Sample { return t.Measured }},
	} {
		var d strings.Builder
		pen := false
		for _, t := range ticks {
			s := series.pick(t)
			if !s.OK {
				pen = false
				continue
			}
			x, y := project(t, s.Value)
			if pen {
				fmt.Fprintf(&d, " L%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&d, " M%.1f,%.1f", x, y)
				pen = true
			}
		}
		if d.Len() == 0 {
			continue
		}
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="%s"/>
`, series.stroke, strings.TrimSpace(d.String()))
	}

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
