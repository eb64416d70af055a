package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/screencapture/internal/browser"
	"github.com/audiolibrelab/screencapture/internal/capture"
	"github.com/audiolibrelab/screencapture/internal/config"
	"github.com/audiolibrelab/screencapture/internal/save"
	"github.com/audiolibrelab/screencapture/internal/session"
)

// Service represents the core ScreenCapture service interface
type Service interface {
	// Recording operations
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	StopAndSave(ctx context.Context) error
	Delete(ctx context.Context) error
	Replay(ctx context.Context) error
	Status() session.Status

	// Surfaces
	AddSurface(surface session.Surface)

	// Information operations
	GetConfig() *config.Config
	GetLastError() string
	ListSources() ([]string, error)

	// Recording files
	ListRecordings() ([]RecordingInfo, error)
	AnalyzeRecording(filename string) (*RecordingAnalysis, error)

	// Run drives the session until ctx is done
	Run(ctx context.Context) error
}

// RecordingInfo contains information about a saved recording
type RecordingInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	Extension    string    `json:"extension"`
	DownloadURL  string    `json:"download_url"`
	AnalyzeURL   string    `json:"analyze_url"`
}

// RecordingAnalysis contains stream information extracted from a recording
type RecordingAnalysis struct {
	Filename    string       `json:"filename"`
	Duration    float64      `json:"duration"`
	StreamCount int          `json:"stream_count"`
	Streams     []StreamInfo `json:"streams"`
}

// StreamInfo contains information about a single stream within a recording
type StreamInfo struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	FrameRate  string `json:"frame_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// Options replaces collaborators normally built from the configuration
type Options struct {
	// Backend overrides the configured capture backend
	Backend   capture.Service
	Confirmer session.Confirmer
	Surfaces  []session.Surface
	Clock     session.Clock
}

// ScreenCaptureService is the main service implementation
type ScreenCaptureService struct {
	cfg        *config.Config
	configFile string
	backend    capture.Service
	surfaces   *session.Surfaces
	loop       *session.Loop

	probe func(path string) ([]byte, error)

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new ScreenCapture service instance
func New(cfg *config.Config, configFile string, opts Options) (*ScreenCaptureService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	backend := opts.Backend
	if backend == nil {
		var err error
		backend, err = newBackend(cfg)
		if err != nil {
			return nil, err
		}
	}

	surfaces := session.NewSurfaces(opts.Surfaces...)
	sessionOpts := sessionOptions(cfg)
	if opts.Clock != nil {
		sessionOpts.Clock = opts.Clock
	}

	saver := save.NewFileSaver(cfg.Output.Directory)
	controller := session.NewController(backend, saver, surfaces, opts.Confirmer, sessionOpts)

	return &ScreenCaptureService{
		cfg:        cfg,
		configFile: configFile,
		backend:    backend,
		surfaces:   surfaces,
		loop:       session.NewLoop(controller),
		probe:      ffprobe,
	}, nil
}

// newBackend creates the capture backend selected in the configuration
func newBackend(cfg *config.Config) (capture.Service, error) {
	backendType, err := capture.ParseBackend(cfg.Capture.Backend)
	if err != nil {
		return nil, err
	}

	slog.Debug("Creating capture backend", "type", backendType)
	switch backendType {
	case capture.BackendTypeBrowser:
		return browser.New(browser.Options{
			Bin:           cfg.Browser.Bin,
			Headless:      cfg.Browser.Headless,
			CaptureSource: cfg.Browser.CaptureSource,
			TempDir:       cfg.Output.TempDir,
		}), nil
	default:
		return capture.NewFFmpegBackend(cfg.Output.TempDir), nil
	}
}

// sessionOptions maps the resolved configuration onto controller options
func sessionOptions(cfg *config.Config) session.Options {
	opts := session.DefaultOptions()
	opts.Countdown = cfg.Session.Countdown
	opts.Microphone = cfg.Capture.Microphone.Enabled
	opts.Video = capture.VideoConstraints{
		FrameRate: cfg.Capture.FrameRate,
		Display:   cfg.Capture.Display,
	}
	opts.Audio = capture.AudioConstraints{
		Source:           cfg.Capture.Microphone.Source,
		Channels:         cfg.Capture.Microphone.Channels,
		EchoCancellation: cfg.Capture.Microphone.EchoCancellation,
		NoiseSuppression: cfg.Capture.Microphone.NoiseSuppression,
	}
	opts.Codec = capture.CodecSpec{
		Container: cfg.Encoding.Container,
		Video:     cfg.Encoding.VideoCodec,
		Audio:     cfg.Encoding.AudioCodec,
	}
	if cfg.Session.DeletePrompt != "" {
		opts.DeletePrompt = cfg.Session.DeletePrompt
	}
	if cfg.Session.ReplayPrompt != "" {
		opts.ReplayPrompt = cfg.Session.ReplayPrompt
	}
	return opts
}

// Start begins the countdown
func (s *ScreenCaptureService) Start(ctx context.Context) error {
	s.clearLastError() // Clear any previous errors when starting a new recording
	return s.dispatch(ctx, session.ActionStart)
}

// Pause pauses the recording
func (s *ScreenCaptureService) Pause(ctx context.Context) error {
	return s.dispatch(ctx, session.ActionPause)
}

// Resume resumes a paused recording
func (s *ScreenCaptureService) Resume(ctx context.Context) error {
	return s.dispatch(ctx, session.ActionResume)
}

// StopAndSave stops the recording and keeps it
func (s *ScreenCaptureService) StopAndSave(ctx context.Context) error {
	return s.dispatch(ctx, session.ActionStop)
}

// Delete stops and discards the recording once confirmed
func (s *ScreenCaptureService) Delete(ctx context.Context) error {
	return s.dispatch(ctx, session.ActionDelete)
}

// Replay discards the recording and starts over once confirmed
func (s *ScreenCaptureService) Replay(ctx context.Context) error {
	return s.dispatch(ctx, session.ActionReplay)
}

func (s *ScreenCaptureService) dispatch(ctx context.Context, action session.Action) error {
	slog.Debug("Service action requested", "action", action)
	err := s.loop.Dispatch(ctx, action)
	if err == nil {
		// Wait for notifications raised by the action so callers see their effect
		err = s.loop.Sync(ctx)
	}
	if err != nil && !errors.Is(err, session.ErrInvalidTransition) {
		s.setLastError(fmt.Sprintf("Failed to %s recording: %v", action, err))
	}
	return err
}

// Status returns the last published session status
func (s *ScreenCaptureService) Status() session.Status {
	status := s.loop.Snapshot()
	if status.LastError == "" {
		status.LastError = s.getServiceError()
	}
	return status
}

// AddSurface registers another view surface
func (s *ScreenCaptureService) AddSurface(surface session.Surface) {
	s.surfaces.Add(surface)
}

// GetConfig returns the current configuration
func (s *ScreenCaptureService) GetConfig() *config.Config {
	return s.cfg
}

// ListSources lists the capture sources known to the backend
func (s *ScreenCaptureService) ListSources() ([]string, error) {
	return s.backend.ListSources()
}

// Run drives the session loop and closes the backend when it returns
func (s *ScreenCaptureService) Run(ctx context.Context) error {
	defer func() {
		if err := s.backend.Close(); err != nil {
			slog.Warn("Failed to close capture backend", "error", err)
		}
	}()
	return s.loop.Run(ctx)
}

// GetLastError returns the last error message (thread-safe)
func (s *ScreenCaptureService) GetLastError() string {
	if msg := s.getServiceError(); msg != "" {
		return msg
	}
	return s.loop.Snapshot().LastError
}

func (s *ScreenCaptureService) getServiceError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *ScreenCaptureService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *ScreenCaptureService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// ListRecordings returns the saved recordings, newest first
func (s *ScreenCaptureService) ListRecordings() ([]RecordingInfo, error) {
	recordingDir := s.cfg.Output.Directory

	// Create directory if it doesn't exist
	if err := os.MkdirAll(recordingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	files, err := os.ReadDir(recordingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	supportedExts := make(map[string]bool)
	for _, ext := range config.GetSupportedVideoExtensions(s.configFile) {
		supportedExts["."+strings.ToLower(ext)] = true
	}

	recordings := make([]RecordingInfo, 0)
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(file.Name()))
		if !supportedExts[ext] {
			continue
		}

		info, err := file.Info()
		if err != nil {
			slog.Warn("Failed to get file info for recording", "file", file.Name(), "error", err)
			continue
		}

		recordings = append(recordings, RecordingInfo{
			Name:         file.Name(),
			Path:         filepath.Join(recordingDir, file.Name()),
			Size:         info.Size(),
			SizeHuman:    formatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			Extension:    strings.TrimPrefix(ext, "."),
			DownloadURL:  fmt.Sprintf("/api/recordings/download/%s", file.Name()),
			AnalyzeURL:   fmt.Sprintf("/api/recordings/analyze/%s", file.Name()),
		})
	}

	// Sort by modification time (newest first)
	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].ModTime.After(recordings[j].ModTime)
	})

	return recordings, nil
}

// AnalyzeRecording extracts stream information from a recording using ffprobe
func (s *ScreenCaptureService) AnalyzeRecording(filename string) (*RecordingAnalysis, error) {
	if filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		return nil, fmt.Errorf("invalid recording name: %s", filename)
	}

	filePath := filepath.Join(s.cfg.Output.Directory, filename)
	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("recording not found: %s: %w", filename, err)
	}

	output, err := s.probe(filePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", filename, err)
	}

	analysis, err := parseProbeOutput(output)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output for %s: %w", filename, err)
	}
	analysis.Filename = filename

	slog.Debug("Recording analysis completed", "filename", filename, "streams", analysis.StreamCount)
	return analysis, nil
}

func ffprobe(path string) ([]byte, error) {
	cmd := exec.Command("ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	return cmd.Output()
}

func parseProbeOutput(output []byte) (*RecordingAnalysis, error) {
	var probeResult struct {
		Streams []struct {
			Index        int    `json:"index"`
			CodecType    string `json:"codec_type"`
			CodecName    string `json:"codec_name"`
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			AvgFrameRate string `json:"avg_frame_rate"`
			Channels     int    `json:"channels"`
			SampleRate   string `json:"sample_rate"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		return nil, err
	}

	streams := make([]StreamInfo, 0, len(probeResult.Streams))
	for _, stream := range probeResult.Streams {
		if stream.CodecType != "video" && stream.CodecType != "audio" {
			continue
		}

		info := StreamInfo{
			Index:     stream.Index,
			CodecType: stream.CodecType,
			CodecName: stream.CodecName,
		}
		if stream.CodecType == "video" {
			info.Width = stream.Width
			info.Height = stream.Height
			info.FrameRate = stream.AvgFrameRate
		} else {
			info.Channels = stream.Channels
			info.SampleRate, _ = strconv.Atoi(stream.SampleRate)
		}
		streams = append(streams, info)
	}

	duration, _ := strconv.ParseFloat(probeResult.Format.Duration, 64)
	return &RecordingAnalysis{
		Duration:    duration,
		StreamCount: len(streams),
		Streams:     streams,
	}, nil
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

var _ Service = (*ScreenCaptureService)(nil)
