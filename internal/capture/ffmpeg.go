package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// minPayloadSize is the smallest output accepted as a recording
	minPayloadSize = 1024
	stopTimeout    = 5 * time.Second
)

// FFmpegBackend implements Service by running one ffmpeg process per record handle.
// Video comes from x11grab, audio from the pulse input.
type FFmpegBackend struct {
	tempDir string
	sources *PulseSources

	// command builds the process for a handle; replaced in tests
	command  func(args []string) *exec.Cmd
	lookPath func(file string) (string, error)

	mu      sync.Mutex
	handles map[string]*ffmpegHandle
}

// NewFFmpegBackend creates an ffmpeg backend writing in-progress recordings to tempDir
func NewFFmpegBackend(tempDir string) *FFmpegBackend {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &FFmpegBackend{
		tempDir: tempDir,
		sources: NewPulseSources(),
		command: func(args []string) *exec.Cmd {
			return exec.Command("ffmpeg", args...)
		},
		lookPath: exec.LookPath,
		handles:  make(map[string]*ffmpegHandle),
	}
}

// ffmpegTrack is a capture source expressed as ffmpeg input arguments
type ffmpegTrack struct {
	*BaseTrack
	inputArgs []string
	filters   []string
}

// AcquireVideoStream validates the X display and returns a screen stream
func (b *FFmpegBackend) AcquireVideoStream(ctx context.Context, constraints VideoConstraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := b.lookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	display := constraints.Display
	if display == "" {
		display = os.Getenv("DISPLAY")
	}
	if display == "" {
		return nil, fmt.Errorf("%w: no X display configured", ErrSourceUnavailable)
	}

	frameRate := constraints.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}

	track := &ffmpegTrack{
		BaseTrack: NewBaseTrack("", KindVideo, nil),
		inputArgs: []string{"-f", "x11grab", "-framerate", strconv.Itoa(frameRate), "-i", display},
	}

	slog.Debug("Screen stream acquired", "display", display, "frame_rate", frameRate)
	return NewStream("", track), nil
}

// AcquireAudioStream validates the pulse source and returns a microphone stream
func (b *FFmpegBackend) AcquireAudioStream(ctx context.Context, constraints AudioConstraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source := constraints.Source
	if source == "" {
		source = "default"
	}
	if err := b.sources.ValidateSource(source); err != nil {
		return nil, err
	}

	channels := constraints.Channels
	if channels <= 0 {
		channels = 2
	}

	track := &ffmpegTrack{
		BaseTrack: NewBaseTrack("", KindAudio, nil),
		inputArgs: []string{"-f", "pulse", "-ac", strconv.Itoa(channels), "-i", source},
	}
	if constraints.NoiseSuppression {
		track.filters = append(track.filters, "afftdn")
	}
	if constraints.EchoCancellation {
		slog.Warn("Echo cancellation is not supported by the ffmpeg backend, ignoring", "source", source)
	}

	slog.Debug("Microphone stream acquired", "source", source, "channels", channels)
	return NewStream("", track), nil
}

// OpenRecordHandle prepares an ffmpeg process recording the given stream
func (b *FFmpegBackend) OpenRecordHandle(stream *Stream, codec CodecSpec, notify NotifyFunc) (Handle, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream is required")
	}
	if notify == nil {
		notify = func(Notification) {}
	}

	var video, audio []*ffmpegTrack
	for _, t := range stream.Tracks() {
		ft, ok := t.(*ffmpegTrack)
		if !ok {
			return nil, fmt.Errorf("track %s was not acquired by the ffmpeg backend", t.ID())
		}
		if ft.Kind() == KindVideo {
			video = append(video, ft)
		} else {
			audio = append(audio, ft)
		}
	}
	if len(video) == 0 {
		return nil, fmt.Errorf("stream %s has no video track", stream.ID())
	}

	if err := os.MkdirAll(b.tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	output := filepath.Join(b.tempDir, "screencapture-"+stream.ID()+"."+codec.Extension())

	h := &ffmpegHandle{
		id:       stream.ID(),
		stream:   stream,
		args:     buildFFmpegArgs(video, audio, codec),
		output:   output,
		mimeType: codec.MIMEType(),
		notify:   notify,
		video:    video,
		command:  b.command,
		release:  b.release,
	}

	b.mu.Lock()
	b.handles[h.id] = h
	b.mu.Unlock()

	return h, nil
}

// ListSources returns available audio sources
func (b *FFmpegBackend) ListSources() ([]string, error) {
	return b.sources.ListSources()
}

// Close kills every ffmpeg process still running
func (b *FFmpegBackend) Close() error {
	b.mu.Lock()
	handles := make([]*ffmpegHandle, 0, len(b.handles))
	for _, h := range b.handles {
		handles = append(handles, h)
	}
	b.mu.Unlock()

	for _, h := range handles {
		h.kill()
	}

	slog.Debug("ffmpeg backend cleaned up", "handles", len(handles))
	return nil
}

func (b *FFmpegBackend) release(id string) {
	b.mu.Lock()
	delete(b.handles, id)
	b.mu.Unlock()
}

// buildFFmpegArgs constructs the ffmpeg command line for a recording segment.
// The segment file is appended as the last argument.
func buildFFmpegArgs(video, audio []*ffmpegTrack, codec CodecSpec) []string {
	var args []string
	inputs := append(append([]*ffmpegTrack{}, video...), audio...)
	for _, t := range inputs {
		args = append(args, t.inputArgs...)
	}

	// Map every input to its own stream in the output
	var filters []string
	for i, t := range inputs {
		if t.Kind() == KindVideo {
			args = append(args, "-map", fmt.Sprintf("%d:v", i))
		} else {
			args = append(args, "-map", fmt.Sprintf("%d:a", i))
			filters = append(filters, t.filters...)
		}
	}

	videoCodec := ffmpegVideoEncoder(codec.Video)
	args = append(args, "-c:v", videoCodec)
	if videoCodec == "libvpx" || videoCodec == "libvpx-vp9" {
		args = append(args, "-deadline", "realtime", "-cpu-used", "8")
	}
	if len(audio) > 0 {
		args = append(args, "-c:a", ffmpegAudioEncoder(codec.Audio))
		if len(filters) > 0 {
			args = append(args, "-af", strings.Join(filters, ","))
		}
	}

	args = append(args, "-y") // Overwrite output
	return args
}

func ffmpegVideoEncoder(codec string) string {
	switch strings.ToLower(codec) {
	case "vp9":
		return "libvpx-vp9"
	case "h264", "avc1":
		return "libx264"
	case "av1":
		return "libaom-av1"
	default:
		return "libvpx"
	}
}

func ffmpegAudioEncoder(codec string) string {
	switch strings.ToLower(codec) {
	case "vorbis":
		return "libvorbis"
	case "aac":
		return "aac"
	default:
		return "libopus"
	}
}

type handleState int

const (
	handleInactive handleState = iota
	handleRecording
	handlePaused
	handleStopping
	handleStopped
)

// ffmpegProcess is one ffmpeg run writing one segment of a recording
type ffmpegProcess struct {
	cmd         *exec.Cmd
	segment     string
	exited      chan struct{}
	err         error
	interrupted bool
}

// ffmpegHandle drives one recording. Every recording span is a separate ffmpeg
// process writing its own segment: pause ends the current segment and resume
// starts the next, so paused time never reaches the file. Stop joins the
// segments with the concat demuxer.
type ffmpegHandle struct {
	id       string
	stream   *Stream
	args     []string
	output   string
	mimeType string
	notify   NotifyFunc
	video    []*ffmpegTrack
	command  func(args []string) *exec.Cmd
	release  func(id string)

	mu     sync.Mutex
	state  handleState
	procs  []*ffmpegProcess
	stderr outputLog
}

func (h *ffmpegHandle) ID() string {
	return h.id
}

func (h *ffmpegHandle) Stream() *Stream {
	return h.stream
}

func (h *ffmpegHandle) Start() error {
	h.mu.Lock()
	if h.state != handleInactive {
		h.mu.Unlock()
		return fmt.Errorf("record handle %s already started", h.id)
	}
	os.Remove(h.output)

	if err := h.startSegment(); err != nil {
		h.mu.Unlock()
		return err
	}
	h.state = handleRecording
	h.mu.Unlock()

	h.notify(Notification{Type: NotificationStarted, HandleID: h.id})
	return nil
}

// startSegment launches ffmpeg for the next segment. Called with h.mu held.
func (h *ffmpegHandle) startSegment() error {
	segment := segmentPath(h.output, len(h.procs))
	os.Remove(segment)

	args := append(append([]string{}, h.args...), segment)
	cmd := h.command(args)
	cmd.Stderr = &h.stderr
	slog.Info("Starting ffmpeg", "command", strings.Join(cmd.Args, " "))

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p := &ffmpegProcess{cmd: cmd, segment: segment, exited: make(chan struct{})}
	h.procs = append(h.procs, p)
	go h.wait(p)
	return nil
}

// current returns the running process. Called with h.mu held.
func (h *ffmpegHandle) current() *ffmpegProcess {
	if len(h.procs) == 0 {
		return nil
	}
	return h.procs[len(h.procs)-1]
}

// interrupt asks the process to finalize its segment. Called with h.mu held.
func (h *ffmpegHandle) interrupt(p *ffmpegProcess) {
	p.interrupted = true
	slog.Debug("Sending SIGINT to ffmpeg process", "handle", h.id, "segment", p.segment)
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to send interrupt to ffmpeg", "error", err)
	}
}

// Pause ends the current segment and returns once it is written
func (h *ffmpegHandle) Pause() error {
	h.mu.Lock()
	if h.state != handleRecording {
		h.mu.Unlock()
		return nil
	}
	p := h.current()
	h.interrupt(p)
	h.state = handlePaused
	h.mu.Unlock()

	h.waitExit(p)

	h.notify(Notification{Type: NotificationPaused, HandleID: h.id})
	return nil
}

// Resume starts a new segment
func (h *ffmpegHandle) Resume() error {
	h.mu.Lock()
	if h.state != handlePaused {
		h.mu.Unlock()
		return nil
	}
	if err := h.startSegment(); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("failed to resume ffmpeg: %w", err)
	}
	h.state = handleRecording
	h.mu.Unlock()

	h.notify(Notification{Type: NotificationResumed, HandleID: h.id})
	return nil
}

// Stop asks ffmpeg to finalize the file. DataReady and Stopped follow asynchronously.
func (h *ffmpegHandle) Stop() error {
	h.mu.Lock()
	switch h.state {
	case handleInactive:
		h.state = handleStopped
		h.mu.Unlock()
		h.release(h.id)
		h.notify(Notification{Type: NotificationStopped, HandleID: h.id})
		return nil
	case handleStopping, handleStopped:
		h.mu.Unlock()
		return nil
	case handleRecording:
		h.interrupt(h.current())
	}
	h.state = handleStopping
	h.mu.Unlock()

	go h.finish()
	return nil
}

// wait reaps a process. An exit nobody asked for ends the video tracks.
func (h *ffmpegHandle) wait(p *ffmpegProcess) {
	err := p.cmd.Wait()

	h.mu.Lock()
	p.err = normalizeExitError(err)
	unexpected := !p.interrupted
	h.mu.Unlock()
	close(p.exited)

	if unexpected {
		slog.Warn("ffmpeg exited unexpectedly", "handle", h.id, "error", err, "stderr", h.stderr.String())
		for _, t := range h.video {
			t.End()
		}
	}
}

// waitExit waits for a process to exit, killing it after stopTimeout
func (h *ffmpegHandle) waitExit(p *ffmpegProcess) {
	select {
	case <-p.exited:
	case <-time.After(stopTimeout):
		slog.Warn("ffmpeg did not exit within timeout, force killing", "handle", h.id, "segment", p.segment)
		p.cmd.Process.Kill()
		<-p.exited
	}
}

// finish waits for every segment, joins them and emits the final notifications
func (h *ffmpegHandle) finish() {
	h.mu.Lock()
	procs := append([]*ffmpegProcess{}, h.procs...)
	h.mu.Unlock()

	var exitErr error
	segments := make([]string, 0, len(procs))
	for _, p := range procs {
		h.waitExit(p)
		if p.err != nil && exitErr == nil {
			exitErr = p.err
		}
		if info, err := os.Stat(p.segment); err == nil && info.Size() > 0 {
			segments = append(segments, p.segment)
		}
	}

	if err := h.join(segments); err != nil && exitErr == nil {
		exitErr = err
	}

	h.mu.Lock()
	h.state = handleStopped
	h.mu.Unlock()
	h.release(h.id)

	if payload := h.payload(); payload != nil {
		h.notify(Notification{Type: NotificationDataReady, HandleID: h.id, Payload: payload})
	}
	h.notify(Notification{Type: NotificationStopped, HandleID: h.id, Err: exitErr})
}

// join writes the segments into the output file
func (h *ffmpegHandle) join(segments []string) error {
	switch len(segments) {
	case 0:
		return nil
	case 1:
		if err := os.Rename(segments[0], h.output); err != nil {
			return fmt.Errorf("failed to move segment: %w", err)
		}
		return nil
	}

	defer func() {
		for _, segment := range segments {
			os.Remove(segment)
		}
	}()

	list := h.output + ".txt"
	if err := os.WriteFile(list, []byte(concatList(segments)), 0644); err != nil {
		return fmt.Errorf("failed to write segment list: %w", err)
	}
	defer os.Remove(list)

	cmd := h.command([]string{"-f", "concat", "-safe", "0", "-i", list, "-c", "copy", "-y", h.output})
	cmd.Stderr = &h.stderr
	slog.Debug("Joining ffmpeg segments", "handle", h.id, "segments", len(segments))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to join %d segments: %w", len(segments), err)
	}
	return nil
}

func (h *ffmpegHandle) kill() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p := h.current(); p != nil && p.cmd.Process != nil {
		p.interrupted = true
		p.cmd.Process.Kill()
	}
}

// segmentPath returns the file of the n-th segment next to the output
func segmentPath(output string, n int) string {
	ext := filepath.Ext(output)
	return fmt.Sprintf("%s.part%d%s", strings.TrimSuffix(output, ext), n, ext)
}

// concatList renders segments in the concat demuxer list format
func concatList(segments []string) string {
	var b strings.Builder
	for _, segment := range segments {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(segment, "'", `'\''`))
	}
	return b.String()
}

// payload validates the output file
func (h *ffmpegHandle) payload() *Payload {
	info, err := os.Stat(h.output)
	if err != nil {
		slog.Error("Recording file not found", "file", h.output, "error", err)
		return nil
	}
	if info.Size() < minPayloadSize {
		slog.Error("Recording failed: file too small", "file", h.output, "size", info.Size())
		os.Remove(h.output)
		return nil
	}

	slog.Debug("ffmpeg output file validated", "size", info.Size())
	return &Payload{Path: h.output, Size: info.Size(), MIMEType: h.mimeType}
}

// normalizeExitError treats termination by our own signals as success
func normalizeExitError(err error) error {
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		// Exit code 255 often means the process was interrupted gracefully
		if exitErr.ExitCode() == 255 {
			return nil
		}
		if exitErr.ProcessState != nil {
			state := exitErr.ProcessState.String()
			if state == "signal: interrupt" || state == "signal: killed" {
				return nil
			}
		}
	}
	return fmt.Errorf("ffmpeg process failed: %w", err)
}

// outputLog collects process output and mirrors it to the debug log
type outputLog struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (l *outputLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			slog.Debug("ffmpeg output", "line", line)
		}
	}
	return len(p), nil
}

func (l *outputLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}
