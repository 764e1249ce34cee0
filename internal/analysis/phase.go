package analysis

import (
	"strings"

	"gonum.org/v1/gonum/floats"
)

// PhasePortrait draws ys against xs on a width×height character grid, with
// the axes where they cross the visible area.
func PhasePortrait(xs, ys []float64, width, height int) string {
	n := min(len(xs), len(ys))
	if n == 0 || width < 2 || height < 2 {
		return ""
	}
	xs, ys = xs[:n], ys[:n]

	minX, maxX := floats.Min(xs), floats.Max(xs)
	minY, maxY := floats.Min(ys), floats.Max(ys)
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	for i := range xs {
		col := int((xs[i] - minX) / rangeX * float64(width-1))
		row := height - 1 - int((ys[i]-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}
	// the last point marks where the trajectory ended
	col := int((xs[n-1] - minX) / rangeX * float64(width-1))
	row := height - 1 - int((ys[n-1]-minY)/rangeY*float64(height-1))
	canvas[row][col] = '◆'

	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

// Column extracts state idx from every row long enough to hold it.
func Column(states [][]float64, idx int) []float64 {
	out := make([]float64, 0, len(states))
	for _, x := range states {
		if idx >= 0 && idx < len(x) {
			out = append(out, x[idx])
		}
	}
	return out
}
