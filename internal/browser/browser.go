// Package browser records through a Chrome/Chromium instance driven by rod.
// The browser's own screen picker, getUserMedia and MediaRecorder do the capture
// and encoding; chunks are streamed back to Go and written to a temp file.
package browser

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/ysmood/gson"

	"github.com/audiolibrelab/screencapture/internal/capture"
)

//go:embed assets
var assets embed.FS

const (
	bindingName = "screencaptureNotify"

	// chunkInterval is the MediaRecorder timeslice in milliseconds
	chunkInterval = 1000
)

// Options configures the browser backend
type Options struct {
	// Bin is the browser executable, empty lets rod find or download one
	Bin      string
	Headless bool

	// CaptureSource is the title of the screen picker entry chosen automatically
	CaptureSource string
	TempDir       string
}

// Backend implements capture.Service on top of a browser
type Backend struct {
	opts Options

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
	server  *http.Server
	tracks  map[string]*capture.BaseTrack
	handles map[string]*handle
}

// New creates a browser backend. The browser is launched on first use.
func New(opts Options) *Backend {
	if opts.CaptureSource == "" {
		opts.CaptureSource = "Entire screen"
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Backend{
		opts:    opts,
		tracks:  make(map[string]*capture.BaseTrack),
		handles: make(map[string]*handle),
	}
}

// ensure launches the browser and loads the recorder page
func (b *Backend) ensure() (*rod.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page != nil {
		return b.page, nil
	}

	pageURL, err := b.serveAssets()
	if err != nil {
		return nil, err
	}

	l := launcher.New().
		Headless(b.opts.Headless).
		Set("auto-select-desktop-capture-source", b.opts.CaptureSource).
		Set("use-fake-ui-for-media-stream").
		Set("enable-usermedia-screen-capturing").
		Set("autoplay-policy", "no-user-gesture-required").
		Set("disable-notifications")
	if b.opts.Bin != "" {
		l = l.Bin(b.opts.Bin)
	}

	u, err := l.Launch()
	if err != nil {
		b.closeServer()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		b.closeServer()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	origin := strings.TrimSuffix(pageURL, "/recorder.html")
	if err := (proto.BrowserGrantPermissions{
		Origin: origin,
		Permissions: []proto.BrowserPermissionType{
			proto.BrowserPermissionTypeAudioCapture,
			proto.BrowserPermissionTypeVideoCapture,
		},
	}).Call(browser); err != nil {
		slog.Warn("Failed to grant capture permissions", "error", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		browser.Close()
		b.closeServer()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if _, err := page.Expose(bindingName, b.receive); err != nil {
		browser.Close()
		b.closeServer()
		return nil, fmt.Errorf("failed to expose notification binding: %w", err)
	}

	if err := page.Navigate(pageURL); err != nil {
		browser.Close()
		b.closeServer()
		return nil, fmt.Errorf("failed to load recorder page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		browser.Close()
		b.closeServer()
		return nil, fmt.Errorf("failed to load recorder page: %w", err)
	}

	b.browser = browser
	b.page = page
	slog.Info("Browser capture backend ready", "url", pageURL, "headless", b.opts.Headless)
	return page, nil
}

// serveAssets serves the recorder page on loopback; getDisplayMedia needs a secure context
func (b *Backend) serveAssets() (string, error) {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		return "", err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to listen for recorder page: %w", err)
	}

	b.server = &http.Server{
		Handler:           http.FileServer(http.FS(sub)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := b.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Recorder page server failed", "error", err)
		}
	}()

	return fmt.Sprintf("http://%s/recorder.html", ln.Addr().String()), nil
}

func (b *Backend) closeServer() {
	if b.server != nil {
		b.server.Close()
		b.server = nil
	}
}

// eval runs a page function and decodes its result into out
func (b *Backend) eval(ctx context.Context, out interface{}, js string, args ...interface{}) error {
	page, err := b.ensure()
	if err != nil {
		return err
	}
	res, err := page.Context(ctx).Eval(js, args...)
	if err != nil {
		return mapError(err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), out); err != nil {
		return fmt.Errorf("failed to decode page result: %w", err)
	}
	return nil
}

// mapError translates DOMException names into capture errors
func mapError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NotAllowedError"):
		return fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
	case strings.Contains(msg, "NotFoundError"), strings.Contains(msg, "OverconstrainedError"):
		return fmt.Errorf("%w: %v", capture.ErrSourceUnavailable, err)
	}
	return err
}

type acquiredStream struct {
	ID     string `json:"id"`
	Tracks []struct {
		ID   string `json:"id"`
		Kind string `json:"kind"`
	} `json:"tracks"`
}

func (b *Backend) register(acquired acquiredStream) *capture.Stream {
	b.mu.Lock()
	defer b.mu.Unlock()

	tracks := make([]capture.Track, 0, len(acquired.Tracks))
	for _, t := range acquired.Tracks {
		id := t.ID
		track := capture.NewBaseTrack(id, capture.Kind(t.Kind), func() {
			if err := b.eval(context.Background(), nil, `(id) => window.recorder.stopTrack(id)`, id); err != nil {
				slog.Debug("Failed to stop browser track", "track", id, "error", err)
			}
		})
		b.tracks[id] = track
		tracks = append(tracks, track)
	}
	return capture.NewStream(acquired.ID, tracks...)
}

// AcquireVideoStream asks the browser for the screen. The picker entry is chosen automatically.
func (b *Backend) AcquireVideoStream(ctx context.Context, constraints capture.VideoConstraints) (*capture.Stream, error) {
	frameRate := constraints.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}

	var acquired acquiredStream
	if err := b.eval(ctx, &acquired, `(frameRate) => window.recorder.acquireVideo(frameRate)`, frameRate); err != nil {
		return nil, err
	}
	slog.Debug("Browser screen stream acquired", "stream", acquired.ID, "tracks", len(acquired.Tracks))
	return b.register(acquired), nil
}

// AcquireAudioStream asks the browser for a microphone
func (b *Backend) AcquireAudioStream(ctx context.Context, constraints capture.AudioConstraints) (*capture.Stream, error) {
	deviceID := constraints.Source
	if deviceID == "default" {
		deviceID = ""
	}
	channels := constraints.Channels
	if channels <= 0 {
		channels = 2
	}

	var acquired acquiredStream
	err := b.eval(ctx, &acquired,
		`(deviceId, channels, ec, ns) => window.recorder.acquireAudio(deviceId, channels, ec, ns)`,
		deviceID, channels, constraints.EchoCancellation, constraints.NoiseSuppression)
	if err != nil {
		return nil, err
	}
	slog.Debug("Browser microphone stream acquired", "stream", acquired.ID)
	return b.register(acquired), nil
}

// OpenRecordHandle creates a MediaRecorder on the stream's tracks
func (b *Backend) OpenRecordHandle(stream *capture.Stream, codec capture.CodecSpec, notify capture.NotifyFunc) (capture.Handle, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream is required")
	}
	if notify == nil {
		notify = func(capture.Notification) {}
	}

	trackIDs := make([]string, 0)
	b.mu.Lock()
	for _, t := range stream.Tracks() {
		if _, ok := b.tracks[t.ID()]; !ok {
			b.mu.Unlock()
			return nil, fmt.Errorf("track %s was not acquired by the browser backend", t.ID())
		}
		trackIDs = append(trackIDs, t.ID())
	}
	b.mu.Unlock()

	id := uuid.NewString()
	file, err := os.CreateTemp(b.opts.TempDir, "screencapture-*."+codec.Extension())
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	h := &handle{
		id:       id,
		stream:   stream,
		backend:  b,
		notify:   notify,
		file:     file,
		mimeType: codec.MIMEType(),
	}

	b.mu.Lock()
	b.handles[id] = h
	b.mu.Unlock()

	if err := b.eval(context.Background(), nil, `(id, tracks, mime) => window.recorder.open(id, tracks, mime)`, id, trackIDs, codec.MIMEType()); err != nil {
		b.forget(id)
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to open media recorder: %w", err)
	}
	return h, nil
}

// ListSources returns the browser's audio input device ids
func (b *Backend) ListSources() ([]string, error) {
	var sources []string
	if err := b.eval(context.Background(), &sources, `() => window.recorder.listSources()`); err != nil {
		return nil, err
	}
	return sources, nil
}

// Close shuts the browser and the page server down
func (b *Backend) Close() error {
	b.mu.Lock()
	browser := b.browser
	server := b.server
	handles := make([]*handle, 0, len(b.handles))
	for _, h := range b.handles {
		handles = append(handles, h)
	}
	b.browser = nil
	b.page = nil
	b.server = nil
	b.mu.Unlock()

	for _, h := range handles {
		h.discard()
	}

	var errs []error
	if browser != nil {
		if err := browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if server != nil {
		if err := server.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) lookup(id string) *handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles[id]
}

func (b *Backend) forget(id string) {
	b.mu.Lock()
	delete(b.handles, id)
	b.mu.Unlock()
}

// receive is the exposed binding called by the page for every event
func (b *Backend) receive(payload gson.JSON) (interface{}, error) {
	msg, err := decodeMessage(payload)
	if err != nil {
		slog.Warn("Invalid message from recorder page", "error", err)
		return nil, nil
	}
	b.dispatch(msg)
	return nil, nil
}

func (b *Backend) dispatch(msg message) {
	if msg.Type == messageEnded {
		b.mu.Lock()
		track := b.tracks[msg.Track]
		b.mu.Unlock()
		if track != nil {
			slog.Info("Browser track ended", "track", msg.Track)
			track.End()
		}
		return
	}

	h := b.lookup(msg.Handle)
	if h == nil {
		slog.Debug("Message for unknown handle", "handle", msg.Handle, "type", msg.Type)
		return
	}
	h.handle(msg)
}
