package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/audiolibrelab/screencapture/internal/capture"
)

func TestController_CountdownThenRecording(t *testing.T) {
	h := newHarness(t)

	if err := h.c.RequestStart(context.Background()); err != nil {
		t.Fatalf("RequestStart failed: %v", err)
	}
	if got := h.c.Session().State; got != StateCountingDown {
		t.Fatalf("Expected COUNTING_DOWN, got %s", got)
	}
	if got := h.c.View().Layout; got != LayoutControls {
		t.Errorf("Expected controls layout during countdown, got %s", got)
	}

	h.ticks(2)
	if len(h.svc.handles) != 0 {
		t.Fatal("Capture must not start before the countdown completes")
	}
	h.ticks(1)

	expected := []string{"Starting in 3", "Starting in 2", "Starting in 1"}
	got := h.surface.countdowns()
	if strings.Join(got, ",") != strings.Join(expected, ",") {
		t.Errorf("Expected countdown %v, got %v", expected, got)
	}
	if h.c.View().Countdown != "" {
		t.Errorf("Expected countdown hidden, got %q", h.c.View().Countdown)
	}

	// Recording begins only on the started notification
	if got := h.c.Session().State; got != StateCountingDown {
		t.Errorf("Expected COUNTING_DOWN before started notification, got %s", got)
	}
	h.drain()
	if got := h.c.Session().State; got != StateRecording {
		t.Errorf("Expected RECORDING, got %s", got)
	}
	if h.clock.active() == nil {
		t.Error("Expected elapsed ticker to run")
	}

	handle := h.svc.lastHandle()
	if len(handle.stream.VideoTracks()) != 1 || len(handle.stream.AudioTracks()) != 1 {
		t.Errorf("Expected merged stream with 1 video and 1 audio track, got %d/%d",
			len(handle.stream.VideoTracks()), len(handle.stream.AudioTracks()))
	}
	if handle.stream.AudioTracks()[0].ID() != h.svc.audios[0].AudioTracks()[0].ID() {
		t.Error("Expected microphone audio in merged stream")
	}
	if h.svc.codecs[0].MIMEType() != "video/webm;codecs=vp8,opus" {
		t.Errorf("Unexpected codec %s", h.svc.codecs[0].MIMEType())
	}
	if h.c.Session().HandleID != handle.id {
		t.Errorf("Expected session to reference handle %s", handle.id)
	}
}

func TestController_PauseResumePreservesElapsed(t *testing.T) {
	h := newHarness(t)
	h.record(t)

	h.ticks(5)

	if err := h.c.RequestPause(); err != nil {
		t.Fatalf("RequestPause failed: %v", err)
	}
	h.drain()
	if got := h.c.Session().State; got != StatePaused {
		t.Fatalf("Expected PAUSED, got %s", got)
	}
	v := h.c.View()
	if v.PauseVisible || !v.ResumeVisible {
		t.Errorf("Expected resume control only, got %+v", v)
	}
	if h.clock.active() != nil {
		t.Error("Expected ticker stopped while paused")
	}

	h.ticks(3)

	if err := h.c.RequestResume(); err != nil {
		t.Fatalf("RequestResume failed: %v", err)
	}
	h.drain()
	v = h.c.View()
	if !v.PauseVisible || v.ResumeVisible {
		t.Errorf("Expected pause control only, got %+v", v)
	}

	h.ticks(2)

	if got := h.c.Session().ElapsedSeconds; got != 7 {
		t.Errorf("Expected 7 elapsed seconds, got %d", got)
	}
	if got := h.c.View().Counter; got != "0:07" {
		t.Errorf("Expected counter 0:07, got %s", got)
	}

	if err := h.c.RequestStopAndSave(); err != nil {
		t.Fatalf("RequestStopAndSave failed: %v", err)
	}
	h.drain()

	s := h.c.Session()
	if s.State != StateStopped || s.ElapsedSeconds != 0 {
		t.Errorf("Expected STOPPED with 0 elapsed, got %+v", s)
	}
	if got := h.c.View().Counter; got != "0:00" {
		t.Errorf("Expected counter reset, got %s", got)
	}
}

func TestController_StopAndSaveSavesOnce(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	handle := h.svc.lastHandle()
	streamID := handle.stream.ID()

	if err := h.c.RequestStopAndSave(); err != nil {
		t.Fatalf("RequestStopAndSave failed: %v", err)
	}
	if h.c.PendingSaves() != 1 {
		t.Errorf("Expected 1 pending save before data arrives, got %d", h.c.PendingSaves())
	}
	h.drain()

	if h.saver.count() != 1 {
		t.Fatalf("Expected exactly 1 save, got %d", h.saver.count())
	}
	saved := h.saver.saves[0]
	if saved.payload == nil || saved.payload.Size == 0 {
		t.Error("Expected non-empty payload")
	}
	if saved.name != streamID+".webm" {
		t.Errorf("Expected name %s.webm, got %s", streamID, saved.name)
	}
	if h.c.PendingSaves() != 0 || h.c.Draining() {
		t.Error("Expected handle fully drained")
	}
	if h.c.View().Layout != LayoutIdle {
		t.Errorf("Expected idle layout after stop, got %s", h.c.View().Layout)
	}

	// A duplicate data notification does not save twice
	handle.notify(capture.Notification{Type: capture.NotificationDataReady, HandleID: handle.id, Payload: &capture.Payload{Size: 1}})
	h.drain()
	if h.saver.count() != 1 {
		t.Errorf("Expected still 1 save, got %d", h.saver.count())
	}

	for _, s := range append(h.svc.videos, h.svc.audios...) {
		for _, track := range s.Tracks() {
			if !track.(*capture.BaseTrack).Stopped() {
				t.Errorf("Expected track %s stopped", track.ID())
			}
		}
	}
}

func TestController_StopFromPaused(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	h.ticks(4)
	h.c.RequestPause()
	h.drain()

	if err := h.c.RequestStopAndSave(); err != nil {
		t.Fatalf("RequestStopAndSave failed: %v", err)
	}
	h.drain()

	if s := h.c.Session(); s.State != StateStopped || s.ElapsedSeconds != 0 {
		t.Errorf("Expected STOPPED with 0 elapsed, got %+v", s)
	}
	if h.saver.count() != 1 {
		t.Errorf("Expected 1 save, got %d", h.saver.count())
	}
}

func TestController_PermissionDenied(t *testing.T) {
	h := newHarness(t)
	h.svc.videoErr = capture.ErrPermissionDenied

	h.c.RequestStart(context.Background())
	h.ticks(3)

	if got := h.c.Session().State; got != StateIdle {
		t.Errorf("Expected IDLE, got %s", got)
	}
	if got := h.c.View(); got.Layout != LayoutIdle || got.Countdown != "" {
		t.Errorf("Expected pre-recording layout restored, got %+v", got)
	}
	if h.c.LastError() != nil {
		t.Errorf("Permission denial should not be kept as an error, got %v", h.c.LastError())
	}
	if h.clock.active() != nil {
		t.Error("Expected no ticker after denial")
	}

	// A fresh start is allowed
	h.svc.videoErr = nil
	h.record(t)
}

func TestController_MicrophoneFailureReleasesScreen(t *testing.T) {
	h := newHarness(t)
	h.svc.audioErr = errors.New("device busy")

	h.c.RequestStart(context.Background())
	h.ticks(3)

	if got := h.c.Session().State; got != StateIdle {
		t.Errorf("Expected IDLE, got %s", got)
	}
	if h.c.LastError() == nil || !strings.Contains(h.c.LastError().Error(), "device busy") {
		t.Errorf("Expected last error to be kept, got %v", h.c.LastError())
	}
	for _, track := range h.svc.videos[0].Tracks() {
		if !track.(*capture.BaseTrack).Stopped() {
			t.Error("Expected screen tracks to be stopped")
		}
	}
}

func TestController_WithoutMicrophone(t *testing.T) {
	h := newHarness(t)
	h.c.opts.Microphone = false
	h.record(t)

	if len(h.svc.audios) != 0 {
		t.Error("Expected no microphone acquisition")
	}
	if h.svc.lastHandle().stream != h.svc.videos[0] {
		t.Error("Expected screen stream to be recorded as is")
	}
}

func TestController_InvalidTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for name, op := range map[string]func() error{
		"pause":  h.c.RequestPause,
		"resume": h.c.RequestResume,
		"stop":   h.c.RequestStopAndSave,
		"delete": func() error { return h.c.RequestDelete(ctx) },
		"replay": func() error { return h.c.RequestReplay(ctx) },
	} {
		if err := op(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s while idle: expected ErrInvalidTransition, got %v", name, err)
		}
	}

	h.record(t)
	if err := h.c.RequestStart(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected second start to fail, got %v", err)
	}
	if err := h.c.RequestResume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected resume while recording to fail, got %v", err)
	}
	if len(h.svc.handles) != 1 {
		t.Errorf("Expected a single capture handle, got %d", len(h.svc.handles))
	}
}

func TestController_DeleteConfirmed(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	h.ticks(3)
	h.answer = true

	if err := h.c.RequestDelete(context.Background()); err != nil {
		t.Fatalf("RequestDelete failed: %v", err)
	}
	h.drain()

	if len(h.prompts) != 1 || h.prompts[0] != "Are you sure you want to Delete recording?" {
		t.Errorf("Unexpected prompts %v", h.prompts)
	}
	if s := h.c.Session(); s.State != StateStopped || s.ElapsedSeconds != 0 {
		t.Errorf("Expected STOPPED with 0 elapsed, got %+v", s)
	}
	if h.saver.count() != 0 {
		t.Errorf("Expected no save after delete, got %d", h.saver.count())
	}
	if h.c.View().Layout != LayoutIdle {
		t.Error("Expected idle layout after delete")
	}
}

func TestController_DeleteDeclined(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	h.ticks(4)
	h.answer = false

	if err := h.c.RequestDelete(context.Background()); err != nil {
		t.Fatalf("RequestDelete failed: %v", err)
	}
	h.drain()

	handle := h.svc.lastHandle()
	if handle.pauses != 1 || handle.resumes != 1 {
		t.Errorf("Expected pause then resume, got %d/%d", handle.pauses, handle.resumes)
	}
	s := h.c.Session()
	if s.State != StateRecording || s.ElapsedSeconds != 4 {
		t.Errorf("Expected RECORDING with 4 elapsed, got %+v", s)
	}
	if handle.stopped {
		t.Error("Handle must not be stopped when delete is declined")
	}
}

func TestController_DeclineFromPausedResumes(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	h.ticks(2)
	h.c.RequestPause()
	h.drain()

	h.answer = false
	if err := h.c.RequestReplay(context.Background()); err != nil {
		t.Fatalf("RequestReplay failed: %v", err)
	}
	h.drain()

	if s := h.c.Session(); s.State != StateRecording || s.ElapsedSeconds != 2 {
		t.Errorf("Expected RECORDING with 2 elapsed, got %+v", s)
	}
}

func TestController_ConfirmErrorCountsAsDeclined(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	h.confErr = context.Canceled
	h.answer = true

	if err := h.c.RequestDelete(context.Background()); err != nil {
		t.Fatalf("RequestDelete failed: %v", err)
	}
	h.drain()

	if got := h.c.Session().State; got != StateRecording {
		t.Errorf("Expected RECORDING, got %s", got)
	}
}

func TestController_ReplayConfirmed(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	h.ticks(6)
	first := h.svc.lastHandle()
	h.answer = true

	if err := h.c.RequestReplay(context.Background()); err != nil {
		t.Fatalf("RequestReplay failed: %v", err)
	}
	h.drain()

	if h.prompts[0] != "Are you sure you want to Restart Recording?" {
		t.Errorf("Unexpected prompt %q", h.prompts[0])
	}
	s := h.c.Session()
	if s.State != StateCountingDown || s.ElapsedSeconds != 0 {
		t.Errorf("Expected COUNTING_DOWN with 0 elapsed, got %+v", s)
	}
	if h.c.View().Countdown != "Starting in 3" {
		t.Errorf("Expected new countdown, got %q", h.c.View().Countdown)
	}
	if !first.stopped || h.saver.count() != 0 {
		t.Error("Expected first handle discarded without save")
	}

	h.ticks(3)
	h.drain()
	if got := h.c.Session().State; got != StateRecording {
		t.Errorf("Expected RECORDING after replay countdown, got %s", got)
	}
	if h.svc.lastHandle() == first {
		t.Error("Expected a new handle after replay")
	}
}

func TestController_TrackEndedStopsAndSaves(t *testing.T) {
	h := newHarness(t)
	h.record(t)

	h.svc.videos[0].VideoTracks()[0].(*capture.BaseTrack).End()

	h.await(t)

	if got := h.c.Session().State; got != StateStopped {
		t.Errorf("Expected STOPPED, got %s", got)
	}
	if h.saver.count() != 1 {
		t.Errorf("Expected 1 save, got %d", h.saver.count())
	}
}

func TestController_UnsolicitedStopSaves(t *testing.T) {
	h := newHarness(t)
	h.record(t)
	handle := h.svc.lastHandle()

	// The handle finalizes on its own
	handle.stopped = true
	handle.notify(capture.Notification{
		Type:     capture.NotificationDataReady,
		HandleID: handle.id,
		Payload:  &capture.Payload{Path: "/tmp/x.webm", Size: 4096},
	})
	handle.notify(capture.Notification{Type: capture.NotificationStopped, HandleID: handle.id})
	h.drain()

	if got := h.c.Session().State; got != StateStopped {
		t.Errorf("Expected STOPPED, got %s", got)
	}
	if h.saver.count() != 1 {
		t.Errorf("Expected 1 save, got %d", h.saver.count())
	}
	if h.c.Draining() {
		t.Error("Expected no draining handles")
	}
}

func TestController_IgnoresUnknownHandles(t *testing.T) {
	h := newHarness(t)
	h.record(t)

	h.c.HandleEvent(context.Background(), NotificationEvent(capture.Notification{
		Type:     capture.NotificationStopped,
		HandleID: "somebody-else",
	}))
	h.c.HandleEvent(context.Background(), Event{HandleID: "somebody-else", TrackEnded: true})

	if got := h.c.Session().State; got != StateRecording {
		t.Errorf("Expected RECORDING, got %s", got)
	}
}

func TestController_SaveFailureKeptAsLastError(t *testing.T) {
	h := newHarness(t)
	h.saver.err = errors.New("disk full")
	h.record(t)

	h.c.RequestStopAndSave()
	h.drain()

	if h.c.LastError() == nil || !strings.Contains(h.c.LastError().Error(), "disk full") {
		t.Errorf("Expected save failure as last error, got %v", h.c.LastError())
	}
}

func TestController_ShutdownSavesActiveRecording(t *testing.T) {
	h := newHarness(t)
	h.record(t)

	h.c.Shutdown()
	h.drain()

	if h.saver.count() != 1 {
		t.Errorf("Expected 1 save on shutdown, got %d", h.saver.count())
	}
}

func TestController_HandleFailureKeptAsLastError(t *testing.T) {
	h := newHarness(t)
	h.svc.exitErr = errors.New("ffmpeg process failed: exit status 1")
	h.record(t)

	h.svc.videos[0].VideoTracks()[0].(*capture.BaseTrack).End()
	h.await(t)

	if got := h.c.Session().State; got != StateStopped {
		t.Errorf("Expected STOPPED, got %s", got)
	}
	if h.saver.count() != 0 {
		t.Errorf("Expected nothing saved, got %d", h.saver.count())
	}
	if h.c.LastError() == nil || !strings.Contains(h.c.LastError().Error(), "exit status 1") {
		t.Errorf("Expected handle failure as last error, got %v", h.c.LastError())
	}
	if h.c.Draining() {
		t.Error("Expected no draining handles")
	}
}

func TestController_StopWithoutDataKeptAsLastError(t *testing.T) {
	h := newHarness(t)
	h.record(t)

	// The handle finalizes without delivering data
	handle := h.svc.lastHandle()
	handle.stopped = true
	if err := h.c.RequestStopAndSave(); err != nil {
		t.Fatalf("RequestStopAndSave failed: %v", err)
	}
	handle.notify(capture.Notification{Type: capture.NotificationStopped, HandleID: handle.id})
	h.drain()

	if h.c.LastError() == nil || !strings.Contains(h.c.LastError().Error(), "without data") {
		t.Errorf("Expected missing data as last error, got %v", h.c.LastError())
	}
	if h.c.PendingSaves() != 0 {
		t.Errorf("Expected no pending saves, got %d", h.c.PendingSaves())
	}
}

func TestController_StartFailureDiscardsHandle(t *testing.T) {
	h := newHarness(t)
	h.svc.startErr = errors.New("recorder page gone")

	if err := h.c.RequestStart(context.Background()); err != nil {
		t.Fatalf("RequestStart failed: %v", err)
	}
	h.ticks(3)
	h.drain()

	handle := h.svc.lastHandle()
	if handle == nil || !handle.stopped {
		t.Fatal("Expected the handle that failed to start to be stopped")
	}
	if got := h.c.Session().State; got != StateIdle {
		t.Errorf("Expected IDLE, got %s", got)
	}
	if h.saver.count() != 0 {
		t.Errorf("Expected nothing saved, got %d", h.saver.count())
	}
	if h.c.LastError() == nil || !strings.Contains(h.c.LastError().Error(), "recorder page gone") {
		t.Errorf("Expected start failure as last error, got %v", h.c.LastError())
	}
}
