package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/screencapture/internal/capture"
)

type fakeHandle struct {
	id     string
	stream *capture.Stream
	notify capture.NotifyFunc
	dir    string

	// startErr fails Start; exitErr makes Stop end with an error and no data
	startErr error
	exitErr  error

	started bool
	paused  bool
	stopped bool
	pauses  int
	resumes int
}

func (h *fakeHandle) ID() string              { return h.id }
func (h *fakeHandle) Stream() *capture.Stream { return h.stream }

func (h *fakeHandle) Start() error {
	if h.startErr != nil {
		return h.startErr
	}
	h.started = true
	h.notify(capture.Notification{Type: capture.NotificationStarted, HandleID: h.id})
	return nil
}

func (h *fakeHandle) Pause() error {
	h.pauses++
	if h.paused || h.stopped {
		return nil
	}
	h.paused = true
	h.notify(capture.Notification{Type: capture.NotificationPaused, HandleID: h.id})
	return nil
}

func (h *fakeHandle) Resume() error {
	h.resumes++
	if !h.paused || h.stopped {
		return nil
	}
	h.paused = false
	h.notify(capture.Notification{Type: capture.NotificationResumed, HandleID: h.id})
	return nil
}

func (h *fakeHandle) Stop() error {
	if h.stopped {
		return nil
	}
	h.stopped = true
	if h.exitErr != nil {
		h.notify(capture.Notification{Type: capture.NotificationStopped, HandleID: h.id, Err: h.exitErr})
		return nil
	}
	h.notify(capture.Notification{
		Type:     capture.NotificationDataReady,
		HandleID: h.id,
		Payload: &capture.Payload{
			Path:     filepath.Join(h.dir, h.id+".webm"),
			Size:     2048,
			MIMEType: "video/webm;codecs=vp8,opus",
		},
	})
	h.notify(capture.Notification{Type: capture.NotificationStopped, HandleID: h.id})
	return nil
}

type fakeService struct {
	dir      string
	videoErr error
	audioErr error
	startErr error
	exitErr  error

	videos  []*capture.Stream
	audios  []*capture.Stream
	handles []*fakeHandle
	codecs  []capture.CodecSpec
}

func (s *fakeService) AcquireVideoStream(ctx context.Context, _ capture.VideoConstraints) (*capture.Stream, error) {
	if s.videoErr != nil {
		return nil, s.videoErr
	}
	stream := capture.NewStream("",
		capture.NewBaseTrack("", capture.KindVideo, nil),
		capture.NewBaseTrack("", capture.KindAudio, nil),
	)
	s.videos = append(s.videos, stream)
	return stream, nil
}

func (s *fakeService) AcquireAudioStream(ctx context.Context, _ capture.AudioConstraints) (*capture.Stream, error) {
	if s.audioErr != nil {
		return nil, s.audioErr
	}
	stream := capture.NewStream("", capture.NewBaseTrack("", capture.KindAudio, nil))
	s.audios = append(s.audios, stream)
	return stream, nil
}

func (s *fakeService) OpenRecordHandle(stream *capture.Stream, codec capture.CodecSpec, notify capture.NotifyFunc) (capture.Handle, error) {
	h := &fakeHandle{
		id:     fmt.Sprintf("handle-%d", len(s.handles)+1),
		stream: stream,
		notify:   notify,
		dir:      s.dir,
		startErr: s.startErr,
		exitErr:  s.exitErr,
	}
	s.handles = append(s.handles, h)
	s.codecs = append(s.codecs, codec)
	return h, nil
}

func (s *fakeService) ListSources() ([]string, error) { return nil, nil }
func (s *fakeService) Close() error                   { return nil }

func (s *fakeService) lastHandle() *fakeHandle {
	if len(s.handles) == 0 {
		return nil
	}
	return s.handles[len(s.handles)-1]
}

type savedRecording struct {
	payload *capture.Payload
	name    string
}

type fakeSaver struct {
	mu    sync.Mutex
	saves []savedRecording
	err   error
}

func (s *fakeSaver) Save(ctx context.Context, payload *capture.Payload, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, savedRecording{payload: payload, name: name})
	return s.err
}

func (s *fakeSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

type recordingSurface struct {
	mu    sync.Mutex
	views []View
}

func (s *recordingSurface) Render(v View) {
	s.mu.Lock()
	s.views = append(s.views, v)
	s.mu.Unlock()
}

func (s *recordingSurface) countdowns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, v := range s.views {
		if v.Countdown != "" && (len(out) == 0 || out[len(out)-1] != v.Countdown) {
			out = append(out, v.Countdown)
		}
	}
	return out
}

type fakeTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

// active returns the running ticker, nil when none runs
func (c *fakeClock) active() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	t := c.tickers[len(c.tickers)-1]
	if t.isStopped() {
		return nil
	}
	return t
}

// fire delivers n ticks to a loop selecting on the active ticker
func (c *fakeClock) fire(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ticker := c.active()
		if ticker == nil {
			t.Fatal("No active ticker to fire")
		}
		select {
		case ticker.c <- time.Now():
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out delivering tick")
		}
	}
}

type harness struct {
	svc     *fakeService
	saver   *fakeSaver
	surface *recordingSurface
	clock   *fakeClock
	prompts []string
	answer  bool
	confErr error
	c       *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		svc:     &fakeService{dir: t.TempDir()},
		saver:   &fakeSaver{},
		surface: &recordingSurface{},
		clock:   &fakeClock{},
	}
	opts := DefaultOptions()
	opts.Clock = h.clock
	confirm := ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
		h.prompts = append(h.prompts, prompt)
		return h.answer, h.confErr
	})
	h.c = NewController(h.svc, h.saver, h.surface, confirm, opts)
	return h
}

// drain handles every pending event synchronously and returns how many there were
func (h *harness) drain() int {
	n := 0
	for {
		ev, ok := h.c.NextEvent()
		if !ok {
			return n
		}
		h.c.HandleEvent(context.Background(), ev)
		n++
	}
}

// await waits for an event posted from another goroutine, then drains
func (h *harness) await(t *testing.T) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case <-h.c.EventReady():
			if h.drain() > 0 {
				return
			}
		case <-timeout:
			t.Fatal("Timed out waiting for event")
		}
	}
}

func (h *harness) ticks(n int) {
	for i := 0; i < n; i++ {
		h.c.Tick(context.Background())
	}
}

// record drives the controller from idle to recording
func (h *harness) record(t *testing.T) {
	t.Helper()
	if err := h.c.RequestStart(context.Background()); err != nil {
		t.Fatalf("RequestStart failed: %v", err)
	}
	h.ticks(3)
	h.drain()
	if got := h.c.Session().State; got != StateRecording {
		t.Fatalf("Expected RECORDING, got %s", got)
	}
}
