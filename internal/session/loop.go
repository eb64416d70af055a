package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrLoopStopped is returned by Dispatch after Run has returned
var ErrLoopStopped = errors.New("session loop stopped")

// shutdownTimeout bounds how long Run waits for stopped handles to deliver their data
const shutdownTimeout = 10 * time.Second

// Action is a user request handled by the loop
type Action string

const (
	ActionStart  Action = "start"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionStop   Action = "stop"
	ActionDelete Action = "delete"
	ActionReplay Action = "replay"

	actionSync Action = "sync"
)

// Status is a snapshot of the controller published after every step
type Status struct {
	Session      Session `json:"session"`
	View         View    `json:"view"`
	LastError    string  `json:"last_error,omitempty"`
	PendingSaves int     `json:"pending_saves"`
}

type request struct {
	ctx    context.Context
	action Action
	done   chan error
}

// Loop runs a controller on a single goroutine. Actions, capture notifications
// and ticks are handled one at a time; pending notifications always go first.
type Loop struct {
	controller *Controller
	actions    chan request
	stopped    chan struct{}

	mu     sync.RWMutex
	status Status
}

// NewLoop creates a loop for the controller
func NewLoop(controller *Controller) *Loop {
	l := &Loop{
		controller: controller,
		actions:    make(chan request),
		stopped:    make(chan struct{}),
	}
	l.publish()
	return l
}

// Run processes work until ctx is done, then stops and saves the active recording
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)

	c := l.controller
	c.Render()

	for {
		if ev, ok := c.NextEvent(); ok {
			c.HandleEvent(ctx, ev)
			l.publish()
			continue
		}

		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case req := <-l.actions:
			l.drainEvents(ctx)
			req.done <- l.perform(req)
		case <-c.EventReady():
			continue
		case <-c.TickC():
			c.Tick(ctx)
		}
		l.publish()
	}
}

func (l *Loop) perform(req request) error {
	c := l.controller
	slog.Debug("Handling action", "action", req.action, "state", c.Session().State)

	var err error
	switch req.action {
	case ActionStart:
		err = c.RequestStart(req.ctx)
	case ActionPause:
		err = c.RequestPause()
	case ActionResume:
		err = c.RequestResume()
	case ActionStop:
		err = c.RequestStopAndSave()
	case ActionDelete:
		err = c.RequestDelete(req.ctx)
	case ActionReplay:
		err = c.RequestReplay(req.ctx)
	case actionSync:
	default:
		err = fmt.Errorf("unknown action: %s", req.action)
	}
	return err
}

// shutdown stops the active recording and waits for its data to be saved
func (l *Loop) shutdown() {
	c := l.controller
	c.Shutdown()
	l.publish()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for c.Draining() {
		if l.drainEvents(ctx) {
			continue
		}
		select {
		case <-c.EventReady():
		case <-ctx.Done():
			slog.Warn("Timed out waiting for recordings to finish", "pending_saves", c.PendingSaves())
			return
		}
	}
}

// drainEvents handles every pending event and reports whether there were any
func (l *Loop) drainEvents(ctx context.Context) bool {
	c := l.controller
	handled := false
	for {
		ev, ok := c.NextEvent()
		if !ok {
			return handled
		}
		c.HandleEvent(ctx, ev)
		l.publish()
		handled = true
	}
}

// Dispatch hands an action to the loop and waits for it to be handled.
// Confirmation prompts receive ctx.
func (l *Loop) Dispatch(ctx context.Context, action Action) error {
	req := request{ctx: ctx, action: action, done: make(chan error, 1)}

	select {
	case l.actions <- req:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync returns once every notification delivered before the call has been handled
func (l *Loop) Sync(ctx context.Context) error {
	return l.Dispatch(ctx, actionSync)
}

// Snapshot returns the last published status
func (l *Loop) Snapshot() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

func (l *Loop) publish() {
	c := l.controller
	status := Status{
		Session:      c.Session(),
		View:         c.View(),
		PendingSaves: c.PendingSaves(),
	}
	if err := c.LastError(); err != nil {
		status.LastError = err.Error()
	}

	l.mu.Lock()
	l.status = status
	l.mu.Unlock()
}
