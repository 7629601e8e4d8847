package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/satsim/internal/sim"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	canvasWidth     = 60
	canvasHeight    = 22
	historyCapacity = 600
	frameInterval   = time.Second / 30
)

var tunable = []string{"kd", "ki", "kp", "max_torque"}

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// LiveModel steps a session by Dt on every frame and draws it.
type LiveModel struct {
	host     *sim.Host
	title    string
	Dt       float64
	orbit    *OrbitView
	history  *History
	running  bool
	selected int
	showHelp bool
	message  string
}

// NewLiveModel wraps an initialized session.
func NewLiveModel(h *sim.Host, title string, dt float64) LiveModel {
	m := LiveModel{
		host:    h,
		title:   title,
		Dt:      dt,
		orbit:   NewOrbitView(canvasWidth, canvasHeight, historyCapacity),
		history: NewHistory(historyCapacity),
		running: true,
	}
	m.observe(h.Session().Last())
	return m
}

func (m LiveModel) Init() tea.Cmd { return tick() }

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "tab":
			m.selected = (m.selected + 1) % len(tunable)
		case "up", "k":
			m.adjust(1.1)
		case "down", "j":
			m.adjust(1 / 1.1)
		case "?":
			m.showHelp = !m.showHelp
		case "x":
			m.orbit.Camera.RotateX(0.1)
		case "X":
			m.orbit.Camera.RotateX(-0.1)
		case "y":
			m.orbit.Camera.RotateY(0.1)
		case "Y":
			m.orbit.Camera.RotateY(-0.1)
		case "z":
			m.orbit.Camera.RotateZ(0.1)
		case "Z":
			m.orbit.Camera.RotateZ(-0.1)
		case "+", "=":
			m.orbit.Camera.ZoomIn()
		case "-", "_":
			m.orbit.Camera.ZoomOut()
		}
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, tick()
	}
	return m, nil
}

func (m *LiveModel) step() {
	s := m.host.Session()
	rep, err := s.Step(m.Dt)
	if err != nil {
		m.running = false
		m.message = err.Error()
		return
	}
	m.observe(rep)
}

func (m *LiveModel) observe(rep sim.Report) {
	m.orbit.Push(rep.Position)
	m.history.OnStep(rep)
}

func (m *LiveModel) reset() {
	m.message = m.host.HandleAction(sim.ActionReset)
	m.orbit.Reset()
	m.history.Reset()
	m.observe(m.host.Session().Last())
	m.running = true
}

// adjust scales the selected parameter. A zero gain is nudged off zero
// so it can grow.
func (m *LiveModel) adjust(factor float64) {
	name := tunable[m.selected]
	val := m.host.Session().Controller().GetParams()[name]
	if val == 0 && factor > 1 {
		val = 0.01
	} else {
		val *= factor
	}
	if !m.host.SetParameter(name, val) {
		m.message = fmt.Sprintf("rejected %s=%g", name, val)
		return
	}
	m.message = ""
}

func (m LiveModel) status() string {
	s := m.host.Session()
	switch {
	case s.Status() == sim.StatusFailed:
		return StatusFailed.Render("FAILED")
	case !m.running:
		return StatusPaused.Render("PAUSED")
	}
	return StatusRunning.Render("RUNNING")
}

func (m LiveModel) View() string {
	s := m.host.Session()
	last := s.Last()

	canvasView := canvasStyle.Render(m.orbit.Draw(last.Quaternion))

	var b strings.Builder
	b.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")
	b.WriteString(m.status() + "\n\n")
	b.WriteString(RenderReport(last))

	limit := s.Controller().MaxTorque
	b.WriteString(row("Saturation", SaturationBar(r3.Norm(last.Torque)/limit, 16)))
	b.WriteString(row("Error trend", Sparkline(m.history.AttitudeError.Values(), 24)))

	if chart := Plot("attitude error (deg)", m.history.AttitudeError.Values(), 30, 4); chart != "" {
		b.WriteString(graphStyle.Render(chart) + "\n")
	}

	b.WriteString("\nCONTROLLER\n")
	b.WriteString(RenderParams(s.Controller().GetParams(), tunable[m.selected]))
	if m.message != "" {
		b.WriteString("\n" + m.message + "\n")
	}
	b.WriteString(helpStyle.Render("SP:Pause R:Reset Q:Quit\nTab:Param ↑↓:Tune XYZ:Rotate ?:Help"))

	main := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(b.String()))
	if m.showHelp {
		return helpText + "\n" + main
	}
	return main
}

const helpText = `
  Space    Pause/Resume
  R        Reset to initial configuration
  Q        Quit
  Tab      Cycle controller parameter
  Up/K     Increase parameter (+10%)
  Down/J   Decrease parameter (-10%)
  x/y/z    Rotate camera (X/Y/Z reverses)
  +/-      Zoom
  ?        Toggle this help
`

// RunLive runs the live view until the user quits.
func RunLive(h *sim.Host, title string, dt float64) error {
	_, err := tea.NewProgram(NewLiveModel(h, title, dt), tea.WithAltScreen()).Run()
	return err
}
