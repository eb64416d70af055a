package tui

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/audiolibrelab/screencapture/internal/session"
)

var errNotRunning = errors.New("terminal UI is not running")

// UI is a session.Surface and session.Confirmer backed by a bubbletea program.
// It is created before the service and bound to it afterwards.
type UI struct {
	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// New creates an unbound UI
func New() *UI {
	return &UI{}
}

// Bind creates the program driving actions
func (u *UI) Bind(ctx context.Context, actions Actions, opts ...tea.ProgramOption) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	program := tea.NewProgram(NewModel(ctx, actions), opts...)

	u.mu.Lock()
	u.program = program
	u.done = make(chan struct{})
	u.mu.Unlock()
}

func (u *UI) get() (*tea.Program, chan struct{}) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.program, u.done
}

// Run blocks until the user quits or the bound context is done
func (u *UI) Run() error {
	program, done := u.get()
	if program == nil {
		return errNotRunning
	}
	defer close(done)

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// Render forwards the view to the program
func (u *UI) Render(v session.View) {
	if program, _ := u.get(); program != nil {
		program.Send(viewMsg(v))
	}
}

// Confirm shows the prompt and waits for y or n
func (u *UI) Confirm(ctx context.Context, prompt string) (bool, error) {
	program, done := u.get()
	if program == nil {
		return false, errNotRunning
	}

	answer := make(chan bool, 1)
	program.Send(confirmMsg{prompt: prompt, answer: answer})

	select {
	case confirmed := <-answer:
		return confirmed, nil
	case <-done:
		return false, errNotRunning
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
