package display

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/lox/tablesync/internal/notify"
	"github.com/lox/tablesync/internal/session"
)

const (
	refreshInterval = 200 * time.Millisecond
	maxLogLines     = 500
)

// Source supplies the snapshot to draw.
type Source interface {
	Snapshot() *session.Snapshot
}

// Actions are the operations bound to keys. A nil action is reported as
// unavailable.
type Actions struct {
	NewRound         func(ctx context.Context) error
	Ready            func(ctx context.Context) error
	StartRecognition func(ctx context.Context) error
}

type tickMsg time.Time

type eventMsg struct{ event notify.Event }

type eventsClosedMsg struct{}

type actionDoneMsg struct {
	name string
	err  error
}

// Model is the live table view: the rendered snapshot above a scrolling log
// of notifications.
type Model struct {
	ctx     context.Context
	source  Source
	events  <-chan notify.Event
	actions Actions
	logger  *log.Logger

	snap     *session.Snapshot
	log      []string
	viewport viewport.Model
	width    int
	height   int
	quitting bool
}

func NewModel(ctx context.Context, source Source, events <-chan notify.Event, actions Actions, logger *log.Logger) *Model {
	vp := viewport.New(10, 5)
	vp.SetContent("")
	return &Model{
		ctx:      ctx,
		source:   source,
		events:   events,
		actions:  actions,
		logger:   logger.WithPrefix("tui"),
		snap:     source.Snapshot(),
		viewport: vp,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.waitForEvent())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: e}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.snap = m.source.Snapshot()
		return m, tick()

	case eventMsg:
		m.appendLog(InfoStyle.Render(time.Now().Format("15:04:05")) + " " + msg.event.String())
		return m, m.waitForEvent()

	case eventsClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case actionDoneMsg:
		if msg.err != nil {
			m.appendLog(ErrorStyle.Render(fmt.Sprintf("%s failed: %v", msg.name, msg.err)))
		} else {
			m.appendLog(SuccessStyle.Render(msg.name + " sent"))
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.run("new round", m.actions.NewRound)
		case "g":
			return m, m.run("ready", m.actions.Ready)
		case "s":
			return m, m.run("start recognition", m.actions.StartRecognition)
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) run(name string, action func(context.Context) error) tea.Cmd {
	if action == nil {
		return func() tea.Msg {
			return actionDoneMsg{name: name, err: fmt.Errorf("not available")}
		}
	}
	ctx := m.ctx
	return func() tea.Msg {
		m.logger.Debug("Running action", "action", name)
		return actionDoneMsg{name: name, err: action(ctx)}
	}
}

func (m *Model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
	m.viewport.SetContent(strings.Join(m.log, "\n"))
	m.viewport.GotoBottom()
}

// Log returns the notification log lines.
func (m *Model) Log() []string { return m.log }

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	board := Render(m.snap)
	help := InfoStyle.Render("r new round • g ready • s start bot recognition • q quit")

	if m.width == 0 || m.height == 0 {
		return board + "\n\n" + help
	}

	logHeight := max(m.height-lipgloss.Height(board)-lipgloss.Height(help)-4, 1)
	m.viewport.Width = max(m.width-2, 1)
	m.viewport.Height = logHeight

	logPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(m.viewport.Width).
		Height(logHeight).
		Render(m.viewport.View())

	return lipgloss.JoinVertical(lipgloss.Left, board, logPane, help)
}

// Run shows the model full screen until the user quits or ctx ends.
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
