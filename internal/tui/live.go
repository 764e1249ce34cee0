package tui

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/san-kum/griddae/internal/dae"
	"github.com/san-kum/griddae/internal/sim"
)

const (
	width       = 70
	height      = 16
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer draws the global state vector as a bar chart while a run is
// in progress. It is a sim.Observer.
type LiveRenderer struct {
	name      string
	out       io.Writer
	frameRate int
	lastFrame time.Time
	canvas    [][]rune
	labels    []string
	kinds     []dae.VarKind
}

func NewLiveRenderer(name string, out io.Writer, frameRate int) *LiveRenderer {
	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
	}
	if frameRate <= 0 {
		frameRate = 30
	}
	return &LiveRenderer{
		name:      name,
		out:       out,
		frameRate: frameRate,
		canvas:    canvas,
	}
}

// SetLayout names the bars; call it again after a relayout.
func (r *LiveRenderer) SetLayout(root dae.Component, mode dae.SolverMode) {
	r.labels = StateLabels(root, mode)
	r.kinds = dae.VariableKinds(root, mode)
}

func (r *LiveRenderer) OnStep(t float64, x sim.State) {
	if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()

	r.clear()
	r.drawBars(x)
	r.render(t, x)
}

func (r *LiveRenderer) clear() {
	for y := range r.canvas {
		for x := range r.canvas[y] {
			r.canvas[y][x] = ' '
		}
	}
}

func (r *LiveRenderer) set(x, y int, c rune) {
	if x >= 0 && x < width && y >= 0 && y < height {
		r.canvas[y][x] = c
	}
}

func (r *LiveRenderer) drawBars(x sim.State) {
	cy := height / 2
	for i := 2; i < width-2; i++ {
		r.set(i, cy, '-')
	}
	if len(x) == 0 {
		return
	}

	bw := (width - 8) / len(x)
	if bw < 2 {
		bw = 2
	}
	scale := math.Max(1, x.MaxAbs())

	for i, v := range x {
		c := '#'
		if i < len(r.kinds) && r.kinds[i] == dae.Algebraic {
			c = '='
		}
		bx := 4 + i*bw
		bh := int((v / scale) * float64(height/2-1))
		if bh > 0 {
			for y := cy - 1; y >= cy-bh && y >= 0; y-- {
				r.set(bx, y, c)
			}
		} else {
			for y := cy + 1; y <= cy-bh && y < height; y++ {
				r.set(bx, y, c)
			}
		}
	}
}

func (r *LiveRenderer) render(t float64, x sim.State) {
	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(fmt.Sprintf("  %s  t=%.2fs  |x|=%.3g\n", r.name, t, x.Norm()))
	b.WriteString("  " + strings.Repeat("-", width) + "\n")

	for _, row := range r.canvas {
		b.WriteString("  ")
		b.WriteString(string(row))
		b.WriteString("\n")
	}

	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	b.WriteString("  " + formatState(r.labels, x, 4) + "\n")

	fmt.Fprint(r.out, b.String())
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }

// StateLabels names every global state index "<component>.a<i>" or
// "<component>.d<i>" in offset order.
func StateLabels(root dae.Component, mode dae.SolverMode) []string {
	n := dae.TotalSizes(root, mode).States()
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("x%d", i)
	}
	for _, e := range dae.Describe(root, mode) {
		if !e.Enabled {
			continue
		}
		for i := 0; i < e.Local.AlgSize; i++ {
			if at := e.AlgOffset + i; at >= 0 && at < n {
				labels[at] = fmt.Sprintf("%s.a%d", e.Name, i)
			}
		}
		for i := 0; i < e.Local.DiffSize; i++ {
			if at := e.DiffOffset + i; at >= 0 && at < n {
				labels[at] = fmt.Sprintf("%s.d%d", e.Name, i)
			}
		}
	}
	return labels
}

func formatState(labels []string, x sim.State, limit int) string {
	var b strings.Builder
	for i, v := range x {
		if i >= limit {
			b.WriteString("...")
			break
		}
		label := fmt.Sprintf("x%d", i)
		if i < len(labels) {
			label = labels[i]
		}
		b.WriteString(fmt.Sprintf("%s=%.3f ", label, v))
	}
	return strings.TrimSpace(b.String())
}
