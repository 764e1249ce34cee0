// Package export renders stored trajectories for use outside the terminal.
package export

import (
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Trace is one time series with the times of its root triggers.
type Trace struct {
	Label    string
	Times    []float64
	Values   []float64
	Triggers []float64
}

// TraceSVG writes trace as an SVG line chart with a dashed marker at every
// trigger time.
func TraceSVG(w io.Writer, tr Trace, width, height int, stroke string) error {
	n := min(len(tr.Times), len(tr.Values))
	if n < 2 {
		return fmt.Errorf("export: %s needs at least 2 samples, got %d", tr.Label, n)
	}
	times, values := tr.Times[:n], tr.Values[:n]

	minX, maxX := times[0], times[n-1]
	minY, maxY := floats.Min(values), floats.Max(values)
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

	px := func(t float64) float64 { return (t - minX) / rangeX * float64(width) }
	py := func(v float64) float64 { return float64(height) - (v-minY)/rangeY*float64(height) }

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for _, t := range tr.Triggers {
		if t < minX || t > maxX {
			continue
		}
		sb.WriteString(fmt.Sprintf(`<line x1="%.1f" y1="0" x2="%.1f" y2="%d" stroke="#ffcc00" stroke-dasharray="4 3"/>
`, px(t), px(t), height))
	}

	sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, stroke))
	for i := range times {
		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", px(times[i]), py(values[i])))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", px(times[i]), py(values[i])))
		}
	}
	sb.WriteString(fmt.Sprintf(`"/>
<text x="6" y="16" fill="#aaaaaa" font-family="monospace" font-size="12">%s  [%.4g, %.4g]</text>
</svg>
`, tr.Label, floats.Min(values), floats.Max(values)))

	_, err := io.WriteString(w, sb.String())
	return err
}
