// Package tui is the interactive terminal view of a running experiment.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/tanksim/internal/dynamo"
	"github.com/san-kum/tanksim/internal/experiment"
	"github.com/san-kum/tanksim/internal/sim"
)

const (
	historyLen = 120
	maxSpeed   = 1024
	frameTime  = 33 * time.Millisecond
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(frameTime, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model steps a simulator a few control ticks per frame and charts the
// recent temperature and setpoint.
type Model struct {
	name   string
	sim    *sim.Simulator
	cfg    sim.Config
	minPow float64
	maxPow float64

	paused bool
	speed  int
	last   dynamo.Sample
	temps  []float64
	sps    []float64
	err    error

	width  int
	height int
}

func NewLive(exp *experiment.Experiment) Model {
	cfg := exp.Config()
	m := Model{
		name:   cfg.Name,
		sim:    exp.GetSimulator(),
		cfg:    cfg.SimConfig(),
		minPow: cfg.HeaterMinPower,
		maxPow: cfg.HeaterMaxPower,
		speed:  1,
		width:  80,
		height: 24,
	}
	if m.name == "" {
		m.name = "tanksim"
	}
	m.record(m.sim.Trajectory().Last())
	return m
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if !m.paused && m.err == nil {
			m.advance()
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ", "p":
		m.paused = !m.paused
	case "+", "=":
		m.speed = min(m.speed*2, maxSpeed)
	case "-", "_":
		m.speed = max(m.speed/2, 1)
	case "0":
		m.speed = 1
	case "r":
		m.restart()
	}
	return m, nil
}

func (m *Model) advance() {
	for i := 0; i < m.speed && m.sim.Status() == dynamo.StatusRunning; i++ {
		s, err := m.sim.Step()
		if err != nil {
			m.err = err
			return
		}
		m.record(s)
	}
}

func (m *Model) restart() {
	m.sim.Reset()
	m.err = m.sim.Init(m.cfg)
	m.temps, m.sps = nil, nil
	if m.err == nil {
		m.record(m.sim.Trajectory().Last())
	}
}

func (m *Model) record(s dynamo.Sample) {
	m.last = s
	m.temps = append(m.temps, s.Temperature)
	m.sps = append(m.sps, s.Setpoint)
	if len(m.temps) > historyLen {
		m.temps = m.temps[len(m.temps)-historyLen:]
		m.sps = m.sps[len(m.sps)-historyLen:]
	}
}

func (m Model) Paused() bool          { return m.paused }
func (m Model) Speed() int            { return m.speed }
func (m Model) Last() dynamo.Sample   { return m.last }
func (m Model) Status() dynamo.Status { return m.sim.Status() }
func (m Model) Err() error            { return m.err }

func (m Model) View() string {
	var b strings.Builder

	status := green.Render(m.sim.Status().String())
	switch {
	case m.err != nil:
		status = red.Render("failed")
	case m.paused:
		status = yellow.Render("paused")
	}
	fmt.Fprintf(&b, "%s  %s  %s\n\n", title.Render(m.name), status, dim.Render(fmt.Sprintf("x%d", m.speed)))

	if len(m.temps) > 1 {
		w := max(m.width-14, 20)
		h := max(m.height-14, 5)
		chart := asciigraph.PlotMany([][]float64{m.temps, m.sps},
			asciigraph.Height(h),
			asciigraph.Width(w),
			asciigraph.Precision(2),
			asciigraph.SeriesColors(asciigraph.Red, asciigraph.Green),
			asciigraph.Caption("temperature / setpoint"))
		b.WriteString(chart)
		b.WriteString("\n\n")
	}

	s := m.last
	stats := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		dim.Render("t"), white.Render(fmt.Sprintf("%.1fs", s.Time)),
		dim.Render("T"), cyan.Render(fmt.Sprintf("%.3f", s.Temperature)),
		dim.Render("sp"), green.Render(fmt.Sprintf("%.3f", s.Setpoint)),
		dim.Render("u"), magenta.Render(fmt.Sprintf("%.4g %s", s.Command, powerBar(s.Command, m.minPow, m.maxPow, 10))))
	b.WriteString(box.Render(stats))
	b.WriteString("\n")

	for _, w := range m.sim.Warnings() {
		b.WriteString(yellow.Render("! "+w.String()) + "\n")
	}
	if m.err != nil {
		b.WriteString(red.Render(m.err.Error()) + "\n")
	}

	b.WriteString(dim.Render("space pause  +/- speed  r restart  q quit"))
	return b.String()
}

func powerBar(u, lo, hi float64, n int) string {
	if hi <= lo {
		return ""
	}
	frac := math.Max(0, math.Min(1, (u-lo)/(hi-lo)))
	filled := int(math.Round(frac * float64(n)))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", n-filled) + "]"
}
