package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when an operation is not allowed in the current state
var ErrInvalidTransition = errors.New("invalid state transition")

// State represents the current state of a recording session
type State string

const (
	StateIdle         State = "IDLE"
	StateCountingDown State = "COUNTING_DOWN"
	StateRecording    State = "RECORDING"
	StatePaused       State = "PAUSED"
	StateStopped      State = "STOPPED"
)

// Session is the value owned by the controller. Transitions return a new value
// and never modify the receiver.
type Session struct {
	ID             string `json:"id,omitempty"`
	State          State  `json:"state"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	Countdown      int    `json:"countdown"`

	// Set only while a capture handle is alive
	HandleID string `json:"handle_id,omitempty"`
	StreamID string `json:"stream_id,omitempty"`
}

// New returns an idle session
func New() Session {
	return Session{State: StateIdle}
}

// Active reports whether the session holds or is about to acquire a capture handle
func (s Session) Active() bool {
	switch s.State {
	case StateCountingDown, StateRecording, StatePaused:
		return true
	}
	return false
}

func (s Session) invalid(op string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, op, s.State)
}

// Start begins a new attempt with a countdown of the given number of ticks
func (s Session) Start(countdown int) (Session, error) {
	if s.State != StateIdle && s.State != StateStopped {
		return s, s.invalid("start")
	}
	if countdown < 0 {
		countdown = 0
	}
	return Session{
		ID:        uuid.NewString(),
		State:     StateCountingDown,
		Countdown: countdown,
	}, nil
}

// CountdownTick consumes one countdown tick
func (s Session) CountdownTick() (Session, error) {
	if s.State != StateCountingDown || s.Countdown == 0 || s.HandleID != "" {
		return s, s.invalid("count down")
	}
	s.Countdown--
	return s, nil
}

// Attach records the capture handle opened once the countdown completed
func (s Session) Attach(handleID, streamID string) (Session, error) {
	if s.State != StateCountingDown || s.Countdown != 0 || s.HandleID != "" {
		return s, s.invalid("attach handle")
	}
	if handleID == "" {
		return s, fmt.Errorf("handle id is required")
	}
	s.HandleID = handleID
	s.StreamID = streamID
	return s, nil
}

// Started enters Recording once the handle reported it started
func (s Session) Started() (Session, error) {
	if s.State != StateCountingDown || s.HandleID == "" {
		return s, s.invalid("start recording")
	}
	s.State = StateRecording
	s.ElapsedSeconds = 0
	return s, nil
}

// Tick counts one elapsed second. Only allowed while recording.
func (s Session) Tick() (Session, error) {
	if s.State != StateRecording {
		return s, s.invalid("tick")
	}
	s.ElapsedSeconds++
	return s, nil
}

func (s Session) Pause() (Session, error) {
	if s.State != StateRecording {
		return s, s.invalid("pause")
	}
	s.State = StatePaused
	return s, nil
}

func (s Session) Resume() (Session, error) {
	if s.State != StatePaused {
		return s, s.invalid("resume")
	}
	s.State = StateRecording
	return s, nil
}

// Stop releases the handle and resets the elapsed time
func (s Session) Stop() (Session, error) {
	switch {
	case s.State == StateRecording, s.State == StatePaused:
	case s.State == StateCountingDown && s.HandleID != "":
		// Handle opened but its start notification has not arrived yet
	default:
		return s, s.invalid("stop")
	}
	s.State = StateStopped
	s.ElapsedSeconds = 0
	s.Countdown = 0
	s.HandleID = ""
	s.StreamID = ""
	return s, nil
}

// Abort returns a failed attempt to Idle
func (s Session) Abort() (Session, error) {
	if !s.Active() {
		return s, s.invalid("abort")
	}
	return Session{ID: s.ID, State: StateIdle}, nil
}
