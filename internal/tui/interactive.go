package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/griddae/internal/config"
	"github.com/san-kum/griddae/internal/experiment"
	"github.com/san-kum/griddae/internal/sim"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

var caseInfo = map[string]string{
	"generator":     "machine, exciter and governor on a sagging bus",
	"exciter_limit": "deep sag driving the exciter into its limit",
	"motor_stall":   "induction motor stalling under low voltage",
	"zip_sag":       "ZIP load switching to constant impedance",
	"fmu_lag":       "model-exchange lag unit",
}

type state int

const (
	stateMenu state = iota
	stateSim
)

const historyLen = 60

type model struct {
	state  state
	cursor int
	cases  []string
	load   func(name string) *config.Case
	reg    *experiment.Registry

	selected string
	c        *config.Case
	sim      *sim.Simulator
	labels   []string
	variable int
	history  []float64
	err      error

	running   bool
	paused    bool
	speed     float64
	lastFrame time.Time
	fps       float64

	width  int
	height int
}

// NewWatchApp lists the presets and steps the chosen one.
func NewWatchApp(reg *experiment.Registry) *model {
	return &model{
		state:  stateMenu,
		cases:  config.ListPresets(),
		load:   config.GetPreset,
		reg:    reg,
		speed:  1,
		width:  80,
		height: 24,
	}
}

// NewCaseApp steps a single case, starting in the simulation view.
func NewCaseApp(reg *experiment.Registry, c *config.Case) *model {
	m := NewWatchApp(reg)
	m.cases = []string{c.Name}
	m.load = func(string) *config.Case { return c }
	m.selected = c.Name
	m.state = stateSim
	m.start()
	return m
}

func (m model) Init() tea.Cmd {
	if m.state == stateSim {
		return tick()
	}
	return nil
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(16*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.state != stateSim {
			return m, nil
		}
		if m.running && !m.paused && m.sim != nil {
			now := time.Now()
			if !m.lastFrame.IsZero() {
				if dt := now.Sub(m.lastFrame).Seconds(); dt > 0 {
					m.fps = 1 / dt
				}
			}
			m.lastFrame = now
			steps := int(m.speed)
			if steps < 1 {
				steps = 1
			}
			for i := 0; i < steps && m.running; i++ {
				m.step()
			}
		}
		if m.running {
			return m, tick()
		}
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	if m.state == stateMenu {
		return m.menuKey(msg)
	}
	return m.simKey(msg)
}

func (m model) menuKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.cases)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.selected = m.cases[m.cursor]
		m.start()
		m.state = stateSim
		return m, tea.Batch(tea.ClearScreen, tick())
	}
	return m, nil
}

func (m model) simKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q", "esc":
		if len(m.cases) == 1 {
			return m, tea.Quit
		}
		m.running = false
		m.state = stateMenu
		m.reset()
		return m, tea.ClearScreen
	case " ", "p":
		m.paused = !m.paused
	case "r":
		wasRunning := m.running
		m.start()
		if !wasRunning {
			return m, tea.Batch(tea.ClearScreen, tick())
		}
		return m, tea.ClearScreen
	case "left", "h":
		if m.variable > 0 {
			m.variable--
			m.history = m.history[:0]
		}
	case "right", "l":
		if m.variable < len(m.labels)-1 {
			m.variable++
			m.history = m.history[:0]
		}
	case "+", "=":
		m.speed = math.Min(m.speed*2, 16)
	case "-", "_":
		m.speed = math.Max(m.speed/2, 0.25)
	case "0":
		m.speed = 1
	}
	return m, nil
}

func (m *model) start() {
	m.reset()
	m.c = m.load(m.selected)
	if m.c == nil {
		m.err = fmt.Errorf("unknown case: %s", m.selected)
		return
	}
	e := experiment.New(m.c, m.reg)
	if err := e.Setup(); err != nil {
		m.err = err
		return
	}
	m.sim = e.GetSimulator()
	if err := m.sim.Initialize(); err != nil {
		m.err = err
		return
	}
	m.labels = StateLabels(m.sim.Root(), m.sim.Mode())
	m.running = true
	m.paused = false
	m.speed = 1
}

func (m *model) reset() {
	m.sim = nil
	m.labels = nil
	m.variable = 0
	m.history = make([]float64, 0, historyLen)
	m.err = nil
	m.lastFrame = time.Time{}
}

func (m *model) step() {
	cfg := m.sim.Config()
	if m.sim.Time() >= cfg.Duration-cfg.Dt/2 {
		m.running = false
		return
	}
	before := m.sim.Relayouts()
	if _, err := m.sim.Step(cfg.Dt); err != nil {
		m.err = err
		m.running = false
		return
	}
	if m.sim.Relayouts() != before {
		m.labels = StateLabels(m.sim.Root(), m.sim.Mode())
		if m.variable >= len(m.labels) {
			m.variable = 0
		}
		m.history = m.history[:0]
	}
	x := m.sim.State()
	if m.variable < len(x) {
		m.history = append(m.history, x[m.variable])
		if len(m.history) > historyLen {
			m.history = m.history[1:]
		}
	}
}

func (m model) View() string {
	if m.state == stateMenu {
		return m.viewMenu()
	}
	return m.viewSim()
}

func (m model) viewMenu() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("           " + cyan.Render("g r i d d a e") + "\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("\n")

	for i, name := range m.cases {
		desc := caseInfo[name]
		if i == m.cursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-16s", name)) + dim.Render(desc) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-16s", name)) + dimmer.Render(desc) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dim.Render("      ↑↓ select   enter start   q quit") + "\n")

	return b.String()
}

func (m model) viewSim() string {
	var b strings.Builder

	statusIcon := green.Render("●")
	statusText := green.Render("running")
	switch {
	case m.err != nil:
		statusIcon = red.Render("✕")
		statusText = red.Render("failed")
	case !m.running:
		statusIcon = dim.Render("■")
		statusText = dim.Render("done")
	case m.paused:
		statusIcon = yellow.Render("○")
		statusText = yellow.Render("paused")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s\n", statusIcon, cyan.Render(m.selected), statusText))

	if m.sim == nil {
		if m.err != nil {
			b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
		}
		b.WriteString("\n" + dim.Render("   r retry  q quit") + "\n")
		return b.String()
	}

	cfg := m.sim.Config()
	progress := math.Min(m.sim.Time()/cfg.Duration, 1)
	barWidth := 36
	filled := int(progress * float64(barWidth))
	timeStr := fmt.Sprintf("%.2fs/%.1fs", m.sim.Time(), cfg.Duration)
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	b.WriteString(fmt.Sprintf("   %s %s  %s\n\n", bar, dim.Render(timeStr), dim.Render(fmt.Sprintf("%.0ffps", m.fps))))

	sizes := m.sim.Sizes()
	b.WriteString(fmt.Sprintf("   %s %d alg  %d diff  %d roots  %s %d\n\n",
		dim.Render("states"), sizes.AlgSize, sizes.DiffSize, sizes.Roots(),
		dim.Render("relayouts"), m.sim.Relayouts()))

	x := m.sim.State()
	rows := m.height - 18
	if rows < 4 {
		rows = 4
	}
	first := 0
	if m.variable >= rows {
		first = m.variable - rows + 1
	}
	for i := first; i < len(x) && i < first+rows; i++ {
		label := fmt.Sprintf("%-20s", m.labels[i])
		val := fmt.Sprintf("%12.6f", x[i])
		if i == m.variable {
			b.WriteString("   " + cyan.Render("▸ ") + white.Render(label) + magenta.Render(val) + "\n")
		} else {
			b.WriteString("     " + dim.Render(label) + dim.Render(val) + "\n")
		}
	}

	if len(m.history) > 1 {
		b.WriteString(fmt.Sprintf("\n   %s %s\n", dim.Render(m.labels[m.variable]), cyan.Render(sparkline(m.history, 40))))
	}

	triggers := m.sim.Triggers()
	if len(triggers) > 0 {
		b.WriteString("\n")
		from := len(triggers) - 3
		if from < 0 {
			from = 0
		}
		for _, tr := range triggers[from:] {
			b.WriteString(fmt.Sprintf("   %s %s %s %s\n",
				yellow.Render(fmt.Sprintf("t=%.2f", tr.Time)), white.Render(tr.Name),
				dim.Render(tr.Mode), dimmer.Render(tr.Code.String())))
		}
	}

	if m.err != nil {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + dim.Render("   space pause  ←→ variable  ±speed  r reset  q quit") + "\n")

	return b.String()
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	step := len(data) / width
	if step < 1 {
		step = 1
	}
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		idx := int((data[i*step] - minVal) / rang * 7)
		if idx > 7 {
			idx = 7
		}
		if idx < 0 {
			idx = 0
		}
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}

func RunWatch(reg *experiment.Registry, c *config.Case) error {
	var app *model
	if c == nil {
		app = NewWatchApp(reg)
	} else {
		app = NewCaseApp(reg, c)
	}
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
