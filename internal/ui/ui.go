package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ectherm/fancontrold/internal/ipcbus"
)

// ---------------------------------------------------------
// AESTHETICS: same vaporwave palette as the original client.
// ---------------------------------------------------------

var (
	colorPink   = lipgloss.Color("#FF71CE")
	colorCyan   = lipgloss.Color("#01CDFE")
	colorPurple = lipgloss.Color("#B967FF")
	colorYellow = lipgloss.Color("#FFFFB6")
	colorDark   = lipgloss.Color("#1A1A2E")
	colorGray   = lipgloss.Color("#6E6E80")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple).
			Background(colorDark)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Background(colorPurple).
			Padding(0, 1).
			Bold(true).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true).
			MarginBottom(1)

	statLabelStyle = lipgloss.NewStyle().
			Foreground(colorPink).
			Width(14)

	statValueStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	itemStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Foreground(colorCyan)

	selectedItemStyle = lipgloss.NewStyle().
				PaddingLeft(2).
				Foreground(colorDark).
				Background(colorPink).
				Bold(true)

	statusMessageStyle = lipgloss.NewStyle().
				Foreground(colorYellow).
				Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			MarginTop(1)
)

// ---------------------------------------------------------
// MODEL — driven entirely over the ipcbus.Client, no hardware access.
// ---------------------------------------------------------

type configsLoadedMsg struct {
	names []string
	err   error
}

type subscribedMsg struct {
	ch  <-chan ipcbus.Event
	err error
}

type eventMsg struct {
	ev  ipcbus.Event
	err error
}

type actionDoneMsg struct {
	status string
	err    error
}

type model struct {
	client *ipcbus.Client
	ctx    context.Context
	cancel context.CancelFunc
	events <-chan ipcbus.Event

	spinner spinner.Model
	cursor  int
	configs []string

	fanNames    []string
	fanSpeeds   []float64
	targets     []float64
	auto        bool
	temperature float64
	critical    bool
	configName  string

	statusMsg string
	err       error
	width     int
	height    int
}

// NewModel builds the TUI model over an already-dialed ipcbus client.
func NewModel(client *ipcbus.Client) model {
	ctx, cancel := context.WithCancel(context.Background())
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(colorPink)
	return model{client: client, ctx: ctx, cancel: cancel, spinner: s}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadConfigsCmd(m.ctx, m.client), subscribeCmd(m))
}

func loadConfigsCmd(ctx context.Context, c *ipcbus.Client) tea.Cmd {
	return func() tea.Msg {
		qctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		names, err := c.ListConfigs(qctx)
		return configsLoadedMsg{names: names, err: err}
	}
}

func subscribeCmd(m model) tea.Cmd {
	return func() tea.Msg {
		ch, err := m.client.Subscribe(m.ctx)
		return subscribedMsg{ch: ch, err: err}
	}
}

func waitForEvent(ch <-chan ipcbus.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{ev: ev}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			} else if len(m.configs) > 0 {
				m.cursor = len(m.configs) - 1
			}
		case "down", "j":
			if len(m.configs) > 0 {
				m.cursor = (m.cursor + 1) % len(m.configs)
			}
		case "enter", " ":
			if m.cursor < len(m.configs) {
				name := m.configs[m.cursor]
				cmds = append(cmds, setConfigCmd(m.ctx, m.client, name))
			}
		case "a":
			cmds = append(cmds, setAutoCmd(m.ctx, m.client, !m.auto))
		}

	case configsLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.configs = msg.names
		}

	case subscribedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.events = msg.ch
			cmds = append(cmds, waitForEvent(m.events))
		}

	case eventMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.applyEvent(msg.ev)
			if m.events != nil {
				cmds = append(cmds, waitForEvent(m.events))
			}
		}

	case actionDoneMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("error: %v", msg.err)
		} else {
			m.statusMsg = msg.status
		}

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) applyEvent(ev ipcbus.Event) {
	switch ev.Kind {
	case "FansNames":
		json.Unmarshal(ev.Value, &m.fanNames)
	case "FansSpeeds":
		json.Unmarshal(ev.Value, &m.fanSpeeds)
	case "TargetFansSpeeds":
		json.Unmarshal(ev.Value, &m.targets)
	case "Auto":
		json.Unmarshal(ev.Value, &m.auto)
	case "Critical":
		json.Unmarshal(ev.Value, &m.critical)
	case "Config":
		json.Unmarshal(ev.Value, &m.configName)
	case "Temperatures":
		var sample map[string]struct {
			Value float64 `json:"Value"`
			IsCPU bool    `json:"IsCPU"`
		}
		if json.Unmarshal(ev.Value, &sample) == nil {
			var sum float64
			var n int
			for _, r := range sample {
				sum += r.Value
				n++
			}
			if n > 0 {
				m.temperature = sum / float64(n)
			}
		}
	}
}

func setConfigCmd(ctx context.Context, c *ipcbus.Client, name string) tea.Cmd {
	return func() tea.Msg {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := c.SetConfig(rctx, name)
		status := fmt.Sprintf("applied config %q", name)
		return actionDoneMsg{status: status, err: err}
	}
}

func setAutoCmd(ctx context.Context, c *ipcbus.Client, auto bool) tea.Cmd {
	return func() tea.Msg {
		rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		err := c.SetAuto(rctx, auto)
		status := "switched to manual control"
		if auto {
			status = "switched to automatic control"
		}
		return actionDoneMsg{status: status, err: err}
	}
}

// ---------------------------------------------------------
// VIEW
// ---------------------------------------------------------

func (m model) View() string {
	title := titleStyle.Render(" FANCONTROLD MONITOR ")

	mode := "MANUAL"
	if m.auto {
		mode = "AUTO"
	}
	if m.critical {
		mode = "CRITICAL"
	}

	statsContent := lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("SYSTEM STATUS"),
		renderStat("Config", m.configName),
		renderStat("Mode", mode),
		renderStat("Temp", fmt.Sprintf("%.1f°C", m.temperature)),
		renderStat("Fans", strings.Join(m.fanNames, ", ")),
		renderStat("Speeds", formatFloats(m.fanSpeeds)),
		"",
		m.spinner.View()+" monitoring...",
	)
	statsBox := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(colorCyan).
		Padding(1).
		Width(36).
		Render(statsContent)

	var profileItems []string
	profileItems = append(profileItems, headerStyle.Render("FAN CONFIGS"))
	for i, name := range m.configs {
		if m.cursor == i {
			profileItems = append(profileItems, selectedItemStyle.Render("> "+strings.ToUpper(name)))
		} else {
			profileItems = append(profileItems, itemStyle.Render(name))
		}
	}
	if m.statusMsg != "" {
		profileItems = append(profileItems, "\n"+statusMessageStyle.Render(m.statusMsg))
	}
	if m.err != nil {
		profileItems = append(profileItems, "\n"+statusMessageStyle.Render(fmt.Sprintf("error: %v", m.err)))
	}

	profilesBox := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(colorPink).
		Padding(1).
		Width(30).
		Height(lipgloss.Height(statsBox)).
		Render(lipgloss.JoinVertical(lipgloss.Left, profileItems...))

	var mainContent string
	if m.width > 0 && m.width < 70 {
		mainContent = lipgloss.JoinVertical(lipgloss.Left, statsBox, profilesBox)
	} else {
		mainContent = lipgloss.JoinHorizontal(lipgloss.Top, statsBox, profilesBox)
	}

	footer := helpStyle.Render("keys: up/down select - enter apply - a toggle auto - q quit")

	ui := lipgloss.JoinVertical(lipgloss.Center, title, mainContent, footer)
	return appStyle.Render(lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, ui))
}

func renderStat(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Bottom,
		statLabelStyle.Render(label),
		statValueStyle.Render(value),
	)
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%.0f%%", v)
	}
	return strings.Join(parts, " ")
}

// Run starts the Bubble Tea program against an already-dialed client.
func Run(client *ipcbus.Client) error {
	p := tea.NewProgram(NewModel(client), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
