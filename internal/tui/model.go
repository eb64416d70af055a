// Package tui renders the recording session in the terminal and forwards key
// presses to the session as actions.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/audiolibrelab/screencapture/internal/session"
)

// Actions are the session requests the UI can make
type Actions interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	StopAndSave(ctx context.Context) error
	Delete(ctx context.Context) error
	Replay(ctx context.Context) error
}

type viewMsg session.View

type confirmMsg struct {
	prompt string
	answer chan bool
}

type actionDoneMsg struct {
	action string
	err    error
}

// Model is the bubbletea model of the recording screen
type Model struct {
	ctx     context.Context
	actions Actions
	keys    keyMap

	view    session.View
	confirm *confirmMsg
	lastErr string
	width   int
}

// NewModel creates a model showing the idle layout
func NewModel(ctx context.Context, actions Actions) Model {
	return Model{
		ctx:     ctx,
		actions: actions,
		keys:    defaultKeyMap(),
		view:    session.IdleView(session.StateIdle),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case viewMsg:
		m.view = session.View(msg)
		return m, nil

	case confirmMsg:
		m.confirm = &msg
		return m, nil

	case actionDoneMsg:
		m.lastErr = ""
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.lastErr = msg.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		if m.confirm != nil {
			return m.handleConfirmKeys(msg)
		}
		return m.handleKeys(msg)
	}
	return m, nil
}

func (m Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Yes):
		m.confirm.answer <- true
		m.confirm = nil
	case key.Matches(msg, m.keys.No):
		m.confirm.answer <- false
		m.confirm = nil
	case key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c"))):
		m.confirm.answer <- false
		m.confirm = nil
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Start):
		if m.view.Layout == session.LayoutIdle {
			return m, m.run("start", m.actions.Start)
		}
	case key.Matches(msg, m.keys.Pause):
		if m.view.PauseVisible {
			return m, m.run("pause", m.actions.Pause)
		}
	case key.Matches(msg, m.keys.Resume):
		if m.view.ResumeVisible {
			return m, m.run("resume", m.actions.Resume)
		}
	case key.Matches(msg, m.keys.Stop):
		return m, m.run("stop", m.actions.StopAndSave)
	case key.Matches(msg, m.keys.Delete):
		return m, m.run("delete", m.actions.Delete)
	case key.Matches(msg, m.keys.Replay):
		return m, m.run("replay", m.actions.Replay)
	}
	return m, nil
}

// run performs the action off the UI goroutine; delete and replay block on confirmation
func (m Model) run(name string, action func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: name, err: action(ctx)}
	}
}

func (m Model) View() string {
	sections := []string{titleStyle.Render("● ScreenCapture")}

	switch m.view.Layout {
	case session.LayoutControls:
		if m.view.Countdown != "" {
			sections = append(sections, countdownStyle.Render(m.view.Countdown))
		}
		sections = append(sections,
			counterStyle.Render(m.view.Counter),
			m.renderButtons(),
		)
	default:
		sections = append(sections, helpStyle.Render("Press enter to start recording"))
	}

	sections = append(sections, stateStyle.Render(string(m.view.State)))

	if m.confirm != nil {
		sections = append(sections, promptStyle.Render(m.confirm.prompt+" (y/n)"))
	}
	if m.lastErr != "" {
		sections = append(sections, errorStyle.Render(m.lastErr))
	}

	content := lipgloss.JoinVertical(lipgloss.Center, sections...)
	if m.width > 0 {
		content = lipgloss.PlaceHorizontal(m.width, lipgloss.Center, content)
	}
	return content + "\n"
}

func (m Model) renderButtons() string {
	var buttons []string
	if m.view.PauseVisible {
		buttons = append(buttons, renderButton(m.keys.Pause))
	}
	if m.view.ResumeVisible {
		buttons = append(buttons, renderButton(m.keys.Resume))
	}
	buttons = append(buttons,
		renderButton(m.keys.Stop),
		renderButton(m.keys.Delete),
		renderButton(m.keys.Replay),
		renderButton(m.keys.Quit),
	)
	return lipgloss.JoinHorizontal(lipgloss.Center, buttons...)
}

func renderButton(b key.Binding) string {
	help := b.Help()
	return buttonStyle.Render(strings.ToUpper(help.Key) + " " + help.Desc)
}
