package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/audiolibrelab/screencapture/internal/capture"
)

const (
	DeletePrompt = "Are you sure you want to Delete recording?"
	ReplayPrompt = "Are you sure you want to Restart Recording?"
)

// Options configures the controller
type Options struct {
	// Countdown is the number of visible countdown ticks before capture starts
	Countdown    int
	TickInterval time.Duration

	Microphone bool
	Video      capture.VideoConstraints
	Audio      capture.AudioConstraints
	Codec      capture.CodecSpec

	DeletePrompt string
	ReplayPrompt string

	Clock Clock
}

// DefaultOptions returns a 3 second countdown, microphone on and webm/vp8/opus output
func DefaultOptions() Options {
	return Options{
		Countdown:    3,
		TickInterval: time.Second,
		Microphone:   true,
		Video:        capture.VideoConstraints{FrameRate: 30},
		Audio:        capture.AudioConstraints{Channels: 2},
		Codec:        capture.CodecSpec{Container: "webm", Video: "vp8", Audio: "opus"},
		DeletePrompt: DeletePrompt,
		ReplayPrompt: ReplayPrompt,
		Clock:        RealClock{},
	}
}

// Event is a capture notification or the end of a handle's video track
type Event struct {
	HandleID     string
	TrackEnded   bool
	Notification capture.Notification
}

// NotificationEvent wraps a handle notification
func NotificationEvent(n capture.Notification) Event {
	return Event{HandleID: n.HandleID, Notification: n}
}

type drainingHandle struct {
	handle capture.Handle
	save   bool
	saved  bool
	name   string
}

// Controller owns the session and the capture handle. It is not safe for
// concurrent use; Loop serializes access to it.
type Controller struct {
	capture   capture.Service
	saver     Saver
	surface   Surface
	confirmer Confirmer
	opts      Options

	session Session
	view    View

	handle  capture.Handle
	sources []*capture.Stream
	stream  *capture.Stream
	watch   context.CancelFunc
	ticker  Ticker

	events   *eventQueue
	draining map[string]*drainingHandle

	lastError error
}

// NewController creates a controller in the Idle state
func NewController(svc capture.Service, saver Saver, surface Surface, confirmer Confirmer, opts Options) *Controller {
	defaults := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaults.TickInterval
	}
	if opts.Clock == nil {
		opts.Clock = defaults.Clock
	}
	if opts.DeletePrompt == "" {
		opts.DeletePrompt = defaults.DeletePrompt
	}
	if opts.ReplayPrompt == "" {
		opts.ReplayPrompt = defaults.ReplayPrompt
	}
	if opts.Countdown < 0 {
		opts.Countdown = 0
	}
	if surface == nil {
		surface = SurfaceFunc(func(View) {})
	}
	if confirmer == nil {
		confirmer = AlwaysConfirm
	}

	s := New()
	return &Controller{
		capture:   svc,
		saver:     saver,
		surface:   surface,
		confirmer: confirmer,
		opts:      opts,
		session:   s,
		view:      IdleView(s.State),
		events:    newEventQueue(),
		draining:  make(map[string]*drainingHandle),
	}
}

// Session returns the current session value
func (c *Controller) Session() Session {
	return c.session
}

// View returns the last rendered view
func (c *Controller) View() View {
	return c.view
}

// LastError returns the last capture or save failure, nil after a clean start
func (c *Controller) LastError() error {
	return c.lastError
}

// PendingSaves counts stopped handles whose recording has not been saved yet
func (c *Controller) PendingSaves() int {
	n := 0
	for _, d := range c.draining {
		if d.save && !d.saved {
			n++
		}
	}
	return n
}

// Draining reports whether stopped handles still owe notifications
func (c *Controller) Draining() bool {
	return len(c.draining) > 0
}

// NextEvent pops the oldest pending event, to be passed to HandleEvent
func (c *Controller) NextEvent() (Event, bool) {
	return c.events.pop()
}

// EventReady is signalled after events are posted. Pending events must be
// drained with NextEvent since one signal may cover several events.
func (c *Controller) EventReady() <-chan struct{} {
	return c.events.ready
}

// TickC returns the active ticker channel, nil when no ticker runs
func (c *Controller) TickC() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C()
}

// Render pushes the current view to the surface
func (c *Controller) Render() {
	c.surface.Render(c.view)
}

func (c *Controller) post(ev Event) {
	c.events.push(ev)
}

func (c *Controller) notify(n capture.Notification) {
	c.post(NotificationEvent(n))
}

func (c *Controller) startTicker() {
	c.stopTicker()
	c.ticker = c.opts.Clock.NewTicker(c.opts.TickInterval)
}

func (c *Controller) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Controller) setState(s Session) {
	c.session = s
	c.view.State = s.State
}

// RequestStart begins the countdown
func (c *Controller) RequestStart(ctx context.Context) error {
	next, err := c.session.Start(c.opts.Countdown)
	if err != nil {
		return err
	}
	c.lastError = nil
	c.setState(next)

	slog.Info("Starting recording countdown", "session", next.ID, "countdown", next.Countdown)

	c.view = View{
		Layout:       LayoutControls,
		Countdown:    CountdownText(next.Countdown),
		PauseVisible: true,
		Counter:      FormatElapsed(0),
		State:        next.State,
	}
	c.Render()

	if next.Countdown == 0 {
		c.beginCapture(ctx)
		return nil
	}
	c.startTicker()
	return nil
}

// Tick handles one ticker interval
func (c *Controller) Tick(ctx context.Context) {
	switch {
	case c.session.State == StateCountingDown && c.session.HandleID == "":
		next, err := c.session.CountdownTick()
		if err != nil {
			return
		}
		c.setState(next)
		c.view.Countdown = CountdownText(next.Countdown)
		if next.Countdown > 0 {
			c.Render()
			return
		}
		c.stopTicker()
		c.Render()
		c.beginCapture(ctx)

	case c.session.State == StateRecording:
		next, err := c.session.Tick()
		if err != nil {
			return
		}
		c.setState(next)
		c.view.Counter = FormatElapsed(next.ElapsedSeconds)
		c.Render()
	}
}

// beginCapture acquires the streams and starts a record handle
func (c *Controller) beginCapture(ctx context.Context) {
	screen, err := c.capture.AcquireVideoStream(ctx, c.opts.Video)
	if err != nil {
		c.fail(fmt.Errorf("failed to acquire screen: %w", err))
		return
	}

	var mic *capture.Stream
	if c.opts.Microphone {
		mic, err = c.capture.AcquireAudioStream(ctx, c.opts.Audio)
		if err != nil {
			screen.Stop()
			c.fail(fmt.Errorf("failed to acquire microphone: %w", err))
			return
		}
	}

	stream := capture.Merge(screen, mic)
	handle, err := c.capture.OpenRecordHandle(stream, c.opts.Codec, c.notify)
	if err != nil {
		screen.Stop()
		mic.Stop()
		c.fail(fmt.Errorf("failed to open record handle: %w", err))
		return
	}

	next, err := c.session.Attach(handle.ID(), stream.ID())
	if err != nil {
		screen.Stop()
		mic.Stop()
		c.fail(err)
		return
	}
	c.setState(next)
	c.handle = handle
	c.stream = stream
	c.sources = []*capture.Stream{screen, mic}
	c.watchVideo(handle.ID(), stream)

	if err := handle.Start(); err != nil {
		c.releaseHandle()
		if stopErr := handle.Stop(); stopErr != nil {
			slog.Warn("Failed to discard record handle", "handle", handle.ID(), "error", stopErr)
		}
		c.fail(fmt.Errorf("failed to start recording: %w", err))
		return
	}

	slog.Info("Capture started", "session", next.ID, "stream", stream.ID(), "microphone", mic != nil)
}

// watchVideo turns the end of the video track into an event
func (c *Controller) watchVideo(handleID string, stream *capture.Stream) {
	tracks := stream.VideoTracks()
	if len(tracks) == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.watch = cancel

	ended := tracks[0].Ended()
	go func() {
		select {
		case <-ended:
			c.post(Event{HandleID: handleID, TrackEnded: true})
		case <-ctx.Done():
		}
	}()
}

// releaseHandle stops the tracks and forgets the live handle
func (c *Controller) releaseHandle() {
	if c.watch != nil {
		c.watch()
		c.watch = nil
	}
	c.stream.Stop()
	for _, s := range c.sources {
		s.Stop()
	}
	c.handle = nil
	c.stream = nil
	c.sources = nil
}

// fail returns the session to Idle after a failed start
func (c *Controller) fail(err error) {
	c.stopTicker()
	if next, abortErr := c.session.Abort(); abortErr == nil {
		c.setState(next)
	}

	if errors.Is(err, capture.ErrPermissionDenied) {
		slog.Info("Capture permission denied, returning to idle", "error", err)
	} else {
		slog.Error("Recording failed to start", "error", err)
		c.lastError = err
	}

	c.view = IdleView(c.session.State)
	c.Render()
}

// RequestPause pauses the record handle. The session follows on the paused notification.
func (c *Controller) RequestPause() error {
	if _, err := c.session.Pause(); err != nil {
		return err
	}
	if err := c.handle.Pause(); err != nil {
		return fmt.Errorf("failed to pause recording: %w", err)
	}
	return nil
}

// RequestResume resumes the record handle. The session follows on the resumed notification.
func (c *Controller) RequestResume() error {
	if _, err := c.session.Resume(); err != nil {
		return err
	}
	if err := c.handle.Resume(); err != nil {
		return fmt.Errorf("failed to resume recording: %w", err)
	}
	return nil
}

// RequestStopAndSave stops capture and saves the recording once its data arrives
func (c *Controller) RequestStopAndSave() error {
	if _, err := c.session.Stop(); err != nil {
		return err
	}
	c.stopHandle(true)
	return nil
}

// RequestDelete discards the recording after confirmation
func (c *Controller) RequestDelete(ctx context.Context) error {
	confirmed, err := c.pauseAndConfirm(ctx, c.opts.DeletePrompt)
	if err != nil {
		return err
	}
	if !confirmed {
		return c.resumeDeclined()
	}

	slog.Info("Deleting recording", "session", c.session.ID)
	c.stopHandle(false)
	return nil
}

// RequestReplay discards the recording and starts a new countdown after confirmation
func (c *Controller) RequestReplay(ctx context.Context) error {
	confirmed, err := c.pauseAndConfirm(ctx, c.opts.ReplayPrompt)
	if err != nil {
		return err
	}
	if !confirmed {
		return c.resumeDeclined()
	}

	slog.Info("Restarting recording", "session", c.session.ID)
	c.stopHandle(false)
	return c.RequestStart(ctx)
}

func (c *Controller) pauseAndConfirm(ctx context.Context, prompt string) (bool, error) {
	if c.session.State != StateRecording && c.session.State != StatePaused {
		return false, c.session.invalid("confirm")
	}
	if err := c.handle.Pause(); err != nil {
		return false, fmt.Errorf("failed to pause recording: %w", err)
	}

	confirmed, err := c.confirmer.Confirm(ctx, prompt)
	if err != nil {
		slog.Warn("Confirmation failed, treating as declined", "prompt", prompt, "error", err)
		return false, nil
	}
	return confirmed, nil
}

// resumeDeclined resumes the handle even if it was paused before the request
func (c *Controller) resumeDeclined() error {
	if c.handle == nil {
		return nil
	}
	if err := c.handle.Resume(); err != nil {
		return fmt.Errorf("failed to resume recording: %w", err)
	}
	return nil
}

// stopHandle moves the live handle to the draining set and stops it
func (c *Controller) stopHandle(save bool) {
	next, err := c.session.Stop()
	if err != nil || c.handle == nil {
		return
	}

	handle := c.handle
	name := c.stream.ID() + "." + c.opts.Codec.Extension()

	// Registered before Stop so synchronous notifications find it
	c.draining[handle.ID()] = &drainingHandle{handle: handle, save: save, name: name}
	c.releaseHandle()
	if err := handle.Stop(); err != nil {
		slog.Error("Failed to stop record handle", "handle", handle.ID(), "error", err)
		c.lastError = fmt.Errorf("failed to stop recording: %w", err)
		delete(c.draining, handle.ID())
	}

	c.stopTicker()
	c.setState(next)
	c.view = IdleView(next.State)
	c.Render()

	slog.Info("Recording stopped", "handle", handle.ID(), "save", save)
}

// HandleEvent applies a capture notification or a track end
func (c *Controller) HandleEvent(ctx context.Context, ev Event) {
	live := c.handle != nil && ev.HandleID == c.handle.ID()

	if ev.TrackEnded {
		if live {
			slog.Info("Video track ended, stopping recording", "handle", ev.HandleID)
			c.stopHandle(true)
		}
		return
	}

	n := ev.Notification
	if live {
		c.handleLive(ctx, n)
		return
	}
	if d, ok := c.draining[ev.HandleID]; ok {
		c.handleDraining(ctx, d, n)
		return
	}
	slog.Debug("Ignoring notification from unknown handle", "handle", ev.HandleID, "type", n.Type)
}

func (c *Controller) handleLive(ctx context.Context, n capture.Notification) {
	switch n.Type {
	case capture.NotificationStarted:
		next, err := c.session.Started()
		if err != nil {
			slog.Debug("Ignoring started notification", "error", err)
			return
		}
		c.setState(next)
		c.startTicker()
		c.view.Countdown = ""
		c.view.Counter = FormatElapsed(0)
		c.view.PauseVisible = true
		c.view.ResumeVisible = false
		c.Render()
		slog.Info("Recording started", "session", next.ID)

	case capture.NotificationPaused:
		next, err := c.session.Pause()
		if err != nil {
			slog.Debug("Ignoring paused notification", "error", err)
			return
		}
		c.setState(next)
		c.stopTicker()
		c.view.PauseVisible = false
		c.view.ResumeVisible = true
		c.Render()
		slog.Debug("Recording paused", "elapsed", next.ElapsedSeconds)

	case capture.NotificationResumed:
		next, err := c.session.Resume()
		if err != nil {
			slog.Debug("Ignoring resumed notification", "error", err)
			return
		}
		c.setState(next)
		c.startTicker()
		c.view.PauseVisible = true
		c.view.ResumeVisible = false
		c.Render()
		slog.Debug("Recording resumed", "elapsed", next.ElapsedSeconds)

	case capture.NotificationDataReady, capture.NotificationStopped:
		// The handle finished on its own
		slog.Warn("Record handle stopped unexpectedly", "handle", n.HandleID, "type", n.Type, "error", n.Err)
		d := &drainingHandle{handle: c.handle, save: true, name: c.stream.ID() + "." + c.opts.Codec.Extension()}
		c.stopHandle(true)
		if existing, ok := c.draining[n.HandleID]; ok {
			d = existing
		}
		c.handleDraining(ctx, d, n)
	}
}

func (c *Controller) handleDraining(ctx context.Context, d *drainingHandle, n capture.Notification) {
	switch n.Type {
	case capture.NotificationDataReady:
		if n.Payload == nil || n.Payload.Size == 0 {
			slog.Warn("Recording produced no data", "handle", n.HandleID)
			return
		}
		if !d.save {
			slog.Debug("Discarding recording", "handle", n.HandleID)
			if err := n.Payload.Discard(); err != nil {
				slog.Warn("Failed to discard recording", "error", err)
			}
			return
		}
		if d.saved {
			return
		}
		d.saved = true
		c.save(ctx, n.Payload, d.name)

	case capture.NotificationStopped:
		delete(c.draining, n.HandleID)
		if n.Err != nil {
			slog.Error("Record handle stopped with error", "handle", n.HandleID, "error", n.Err)
			c.lastError = fmt.Errorf("recording failed: %w", n.Err)
		}
		if d.save && !d.saved {
			slog.Error("Recording stopped without data, nothing saved", "handle", n.HandleID)
			if n.Err == nil {
				c.lastError = errors.New("recording stopped without data, nothing saved")
			}
		}
	}
}

func (c *Controller) save(ctx context.Context, payload *capture.Payload, name string) {
	if c.saver == nil {
		slog.Warn("No saver configured, recording left in place", "path", payload.Path)
		return
	}
	if err := c.saver.Save(ctx, payload, name); err != nil {
		slog.Error("Failed to save recording", "name", name, "error", err)
		c.lastError = fmt.Errorf("failed to save recording: %w", err)
		return
	}
	slog.Info("Recording saved", "name", name, "size", payload.Size)
}

// Shutdown stops the live handle and keeps its recording
func (c *Controller) Shutdown() {
	c.stopTicker()
	if c.handle != nil {
		slog.Info("Shutting down, saving active recording")
		c.stopHandle(true)
		return
	}
	if c.session.State == StateCountingDown {
		if next, err := c.session.Abort(); err == nil {
			c.setState(next)
			c.view = IdleView(next.State)
			c.Render()
		}
	}
}
