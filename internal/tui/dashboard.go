// Package tui is the terminal dashboard for a running control loop.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/velctl/internal/loop"
)

const (
	historyCapacity = 240
	graphWidth      = 60
	graphHeight     = 10
	defaultNudge    = 0.1
)

type tickMsg loop.Tick

type doneMsg struct{}

type Options struct {
	Title string
	// Manual, when set, lets ↑/↓ change the target by Nudge.
	Manual *loop.Manual
	Nudge  float64
}

// Model renders ticks read from a loop.Feed channel. Pausing freezes the
// display; the loop keeps running.
type Model struct {
	ticks <-chan loop.Tick
	opts  Options

	last     loop.Tick
	started  bool
	paused   bool
	done     bool
	fresh    int
	stale    int
	measured []float64
	targets  []float64
	throttle []float64
}

func New(ticks <-chan loop.Tick, opts Options) Model {
	if opts.Nudge <= 0 {
		opts.Nudge = defaultNudge
	}
	if opts.Title == "" {
		opts.Title = "velctl"
	}
	return Model{ticks: ticks, opts: opts}
}

// Run shows the dashboard until the user quits or ctx ends.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.wait()
}

func (m Model) wait() tea.Cmd {
	return func() tea.Msg {
		t, ok := <-m.ticks
		if !ok {
			return doneMsg{}
		}
		return tickMsg(t)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "up", "k":
			if m.opts.Manual != nil {
				m.opts.Manual.Nudge(m.opts.Nudge)
			}
		case "down", "j":
			if m.opts.Manual != nil {
				m.opts.Manual.Nudge(-m.opts.Nudge)
			}
		case "0":
			if m.opts.Manual != nil {
				m.opts.Manual.Set(0)
			}
		}
	case tickMsg:
		if !m.paused {
			m.record(loop.Tick(msg))
		}
		return m, m.wait()
	case doneMsg:
		m.done = true
	}
	return m, nil
}

func (m *Model) record(t loop.Tick) {
	m.started = true
	m.last = t
	if t.Fresh {
		m.fresh++
	} else {
		m.stale++
	}

	measured := 0.0
	if t.Measured.OK {
		measured = t.Measured.Value
	} else if n := len(m.measured); n > 0 {
		measured = m.measured[n-1]
	}
	m.measured = push(m.measured, measured)
	m.targets = push(m.targets, t.Target.Value)
	m.throttle = push(m.throttle, t.Throttle)
}

func push(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[len(s)-historyCapacity:]
	}
	return s
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.opts.Title)) + "\n")
	switch {
	case m.done:
		s.WriteString(statusDone.Render("FINISHED"))
	case m.paused:
		s.WriteString(statusPaused.Render("PAUSED"))
	default:
		s.WriteString(statusRunning.Render("RUNNING"))
	}
	s.WriteString("\n\n")

	if !m.started {
		s.WriteString(labelStyle.Render("waiting for the first tick") + "\n")
		return panelStyle.Render(s.String())
	}

	t := m.last
	s.WriteString(row("Time", fmt.Sprintf("%.2fs", t.Elapsed.Seconds())))
	s.WriteString(row("Target", formatSpeed(t.Target.OK, t.Target.Value)))
	s.WriteString(row("Measured", formatSpeed(t.Measured.OK, t.Measured.Value)))
	if t.Measured.OK && t.Target.OK {
		s.WriteString(row("Error", fmt.Sprintf("%+.3f m/s", t.Target.Value-t.Measured.Value)))
	}
	s.WriteString(row("Throttle", fmt.Sprintf("%+.3f", t.Throttle)))
	s.WriteString(row("Telemetry", fmt.Sprintf("%d fresh, %d stale", m.fresh, m.stale)))

	if len(m.measured) > 1 {
		chart := asciigraph.PlotMany([][]float64{m.targets, m.measured},
			asciigraph.Height(graphHeight),
			asciigraph.Width(graphWidth),
			asciigraph.SeriesColors(asciigraph.Yellow, asciigraph.Green),
			asciigraph.Caption("target (yellow) / measured (green) m/s"),
		)
		s.WriteString(graphStyle.Render(chart) + "\n")
	}
	s.WriteString(labelStyle.Render("throttle") + sparkline(m.throttle, graphWidth, -1, 1) + "\n\n")

	help := "SPACE pause  Q quit"
	if m.opts.Manual != nil {
		help = "↑/↓ target  0 stop  " + help
	}
	s.WriteString(helpStyle.Render(help))
	return panelStyle.Render(s.String())
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

func formatSpeed(ok bool, v float64) string {
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%+.3f m/s", v)
}
