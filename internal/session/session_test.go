package session

import (
	"errors"
	"testing"
)

func TestSessionTransitions(t *testing.T) {
	counting := Session{ID: "s", State: StateCountingDown, Countdown: 2}
	attachable := Session{ID: "s", State: StateCountingDown}
	attached := Session{ID: "s", State: StateCountingDown, HandleID: "h", StreamID: "st"}
	recording := Session{ID: "s", State: StateRecording, ElapsedSeconds: 4, HandleID: "h", StreamID: "st"}
	paused := Session{ID: "s", State: StatePaused, ElapsedSeconds: 4, HandleID: "h", StreamID: "st"}

	tests := []struct {
		name    string
		op      func() (Session, error)
		want    State
		wantErr bool
	}{
		{"start from idle", func() (Session, error) { return New().Start(3) }, StateCountingDown, false},
		{"start from stopped", func() (Session, error) { return Session{State: StateStopped}.Start(3) }, StateCountingDown, false},
		{"start while recording", func() (Session, error) { return recording.Start(3) }, StateRecording, true},
		{"countdown tick", func() (Session, error) { return counting.CountdownTick() }, StateCountingDown, false},
		{"countdown tick at zero", func() (Session, error) { return attachable.CountdownTick() }, StateCountingDown, true},
		{"attach during countdown", func() (Session, error) { return counting.Attach("h", "st") }, StateCountingDown, true},
		{"attach", func() (Session, error) { return attachable.Attach("h", "st") }, StateCountingDown, false},
		{"started without handle", func() (Session, error) { return attachable.Started() }, StateCountingDown, true},
		{"started", func() (Session, error) { return attached.Started() }, StateRecording, false},
		{"pause", func() (Session, error) { return recording.Pause() }, StatePaused, false},
		{"pause while paused", func() (Session, error) { return paused.Pause() }, StatePaused, true},
		{"resume", func() (Session, error) { return paused.Resume() }, StateRecording, false},
		{"resume while recording", func() (Session, error) { return recording.Resume() }, StateRecording, true},
		{"pause while idle", func() (Session, error) { return New().Pause() }, StateIdle, true},
		{"stop recording", func() (Session, error) { return recording.Stop() }, StateStopped, false},
		{"stop paused", func() (Session, error) { return paused.Stop() }, StateStopped, false},
		{"stop attached", func() (Session, error) { return attached.Stop() }, StateStopped, false},
		{"stop during countdown", func() (Session, error) { return counting.Stop() }, StateCountingDown, true},
		{"stop while idle", func() (Session, error) { return New().Stop() }, StateIdle, true},
		{"abort countdown", func() (Session, error) { return counting.Abort() }, StateIdle, false},
		{"abort idle", func() (Session, error) { return New().Abort() }, StateIdle, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op()
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Expected ErrInvalidTransition, got %v", err)
			}
			if got.State != tt.want {
				t.Errorf("Expected state %s, got %s", tt.want, got.State)
			}
		})
	}
}

func TestSessionStart_ResetsElapsedAndID(t *testing.T) {
	old := Session{ID: "old", State: StateStopped, ElapsedSeconds: 12}

	next, err := old.Start(3)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if next.ElapsedSeconds != 0 {
		t.Errorf("Expected elapsed reset to 0, got %d", next.ElapsedSeconds)
	}
	if next.ID == "" || next.ID == old.ID {
		t.Errorf("Expected a fresh session id, got %q", next.ID)
	}
	if next.Countdown != 3 {
		t.Errorf("Expected countdown 3, got %d", next.Countdown)
	}
	if old.State != StateStopped {
		t.Error("Start must not modify the receiver")
	}
}

func TestSessionTick_OnlyWhileRecording(t *testing.T) {
	s := Session{State: StateRecording, HandleID: "h"}
	for i := 0; i < 5; i++ {
		s, _ = s.Tick()
	}
	s, _ = s.Pause()
	for i := 0; i < 3; i++ {
		if _, err := s.Tick(); err == nil {
			t.Error("Expected tick while paused to fail")
		}
	}
	s, _ = s.Resume()
	s, _ = s.Tick()
	s, _ = s.Tick()

	if s.ElapsedSeconds != 7 {
		t.Errorf("Expected 7 elapsed seconds, got %d", s.ElapsedSeconds)
	}

	stopped, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if stopped.ElapsedSeconds != 0 || stopped.HandleID != "" {
		t.Errorf("Expected elapsed and handle cleared, got %+v", stopped)
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := map[int]string{
		0:    "0:00",
		7:    "0:07",
		59:   "0:59",
		60:   "1:00",
		61:   "1:01",
		4503: "75:03",
		-3:   "0:00",
	}
	for seconds, want := range tests {
		if got := FormatElapsed(seconds); got != want {
			t.Errorf("FormatElapsed(%d) = %s, want %s", seconds, got, want)
		}
	}
}

func TestCountdownText(t *testing.T) {
	if got := CountdownText(3); got != "Starting in 3" {
		t.Errorf("Expected 'Starting in 3', got %q", got)
	}
	if got := CountdownText(0); got != "" {
		t.Errorf("Expected hidden countdown, got %q", got)
	}
}

func TestSurfaces_FanOut(t *testing.T) {
	a := &recordingSurface{}
	b := &recordingSurface{}
	surfaces := NewSurfaces(a, nil)
	surfaces.Add(b)

	surfaces.Render(IdleView(StateIdle))

	if len(a.views) != 1 || len(b.views) != 1 {
		t.Errorf("Expected both surfaces to render once, got %d and %d", len(a.views), len(b.views))
	}
}
