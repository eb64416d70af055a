package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/audiolibrelab/screencapture/internal/config"
	"github.com/audiolibrelab/screencapture/internal/service"
	"github.com/audiolibrelab/screencapture/internal/session"
)

//go:embed static/index.html
var indexHTML []byte

const shutdownTimeout = 5 * time.Second

// Server is the web remote control for a ScreenCapture service
type Server struct {
	service       service.Service
	configFile    string
	activeProfile string
	settings      Settings
	hub           *Hub
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Success       bool                `json:"success"`
	Status        session.Status      `json:"status"`
	Config        *ResolvedConfigInfo `json:"resolved_config"`
	ActiveProfile string              `json:"active_profile"`
}

// ResolvedConfigInfo contains configuration information for the UI
type ResolvedConfigInfo struct {
	Backend    string `json:"backend"`
	OutputDir  string `json:"output_dir"`
	Container  string `json:"container"`
	VideoCodec string `json:"video_codec"`
	AudioCodec string `json:"audio_codec"`
	Microphone string `json:"microphone"`
	Countdown  int    `json:"countdown"`
}

// New creates a server for svc and registers its view hub as a surface.
// The service must be built with RequestConfirmer for delete and replay to honor the page's answer.
func New(svc service.Service, configFile string, settings Settings) *Server {
	if settings.Port == "" {
		settings.Port = "8080"
	}
	if settings.ReadHeaderTimeout <= 0 {
		settings.ReadHeaderTimeout = 10 * time.Second
	}

	hub := NewHub(settings.AllowedOrigins)
	svc.AddSurface(hub)

	return &Server{
		service:       svc,
		configFile:    configFile,
		activeProfile: getActiveProfileName(configFile),
		settings:      settings,
		hub:           hub,
	}
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /start", s.handleAction("start", s.service.Start))
	mux.HandleFunc("POST /pause", s.handleAction("pause", s.service.Pause))
	mux.HandleFunc("POST /resume", s.handleAction("resume", s.service.Resume))
	mux.HandleFunc("POST /stop", s.handleAction("stop", s.service.StopAndSave))
	mux.HandleFunc("POST /delete", s.handleConfirmedAction("delete", s.service.Delete))
	mux.HandleFunc("POST /replay", s.handleConfirmedAction("replay", s.service.Replay))
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /ws", s.hub)
	mux.HandleFunc("GET /api/recordings", s.handleRecordings)
	mux.HandleFunc("GET /api/recordings/download/{name}", s.handleRecordingDownload)
	mux.HandleFunc("GET /api/recordings/analyze/{name}", s.handleRecordingAnalyze)
	return mux
}

// Run serves until ctx is done, then shuts the server down
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.settings.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.settings.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	localIP := getLocalIP()
	slog.Info("Starting ScreenCapture Web Server",
		"port", s.settings.Port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.settings.Port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.settings.Port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown failed: %w", err)
	}
	slog.Info("Web server stopped")
	return nil
}

// handleIndex serves the main web UI
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(indexHTML)
}

// handleAction runs a session action and reports the outcome as JSON
func (s *Server) handleAction(name string, run func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.runAction(w, r.Context(), name, run)
	}
}

// handleConfirmedAction reads the answer the page collected in form field "confirmed"
func (s *Server) handleConfirmedAction(name string, run func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid form data: %v", err),
				"operation", name)
			return
		}

		confirmed := false
		if value := r.FormValue("confirmed"); value != "" {
			parsed, err := strconv.ParseBool(value)
			if err != nil {
				s.sendErrorResponse(w, http.StatusBadRequest,
					fmt.Sprintf("Invalid confirmed value: %s", value),
					"operation", name)
				return
			}
			confirmed = parsed
		}

		s.runAction(w, WithConfirmation(r.Context(), confirmed), name, run)
	}
}

func (s *Server) runAction(w http.ResponseWriter, ctx context.Context, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		statusCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, session.ErrInvalidTransition):
			statusCode = http.StatusConflict
		case errors.Is(err, session.ErrLoopStopped):
			statusCode = http.StatusServiceUnavailable
		}
		s.sendErrorResponse(w, statusCode,
			fmt.Sprintf("Failed to %s: %v", name, err),
			"operation", name)
		return
	}

	status := s.service.Status()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"state":   status.Session.State,
	})
}

// handleStatus returns the current session status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Success:       true,
		Status:        s.service.Status(),
		Config:        s.getResolvedConfigInfo(),
		ActiveProfile: s.activeProfile,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// getResolvedConfigInfo builds configuration information for the UI
func (s *Server) getResolvedConfigInfo() *ResolvedConfigInfo {
	cfg := s.service.GetConfig()
	if cfg == nil {
		return nil
	}

	microphone := "disabled"
	if cfg.Capture.Microphone.Enabled {
		microphone = cfg.Capture.Microphone.Source
	}

	return &ResolvedConfigInfo{
		Backend:    cfg.Capture.Backend,
		OutputDir:  cfg.Output.Directory,
		Container:  cfg.Encoding.Container,
		VideoCodec: cfg.Encoding.VideoCodec,
		AudioCodec: cfg.Encoding.AudioCodec,
		Microphone: microphone,
		Countdown:  cfg.Session.Countdown,
	}
}

// handleRecordings lists saved recordings
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	recordings, err := s.service.ListRecordings()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list recordings: %v", err),
			"operation", "list_recordings")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":    true,
		"recordings": recordings,
	})
}

// validFilename rejects names that could escape the recordings directory
func validFilename(filename string) bool {
	return filename != "" && !strings.Contains(filename, "..") &&
		!strings.Contains(filename, "/") && !strings.Contains(filename, "\\")
}

// handleRecordingDownload serves a recording for download
func (s *Server) handleRecordingDownload(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("name")

	// Validate filename (prevent path traversal)
	if !validFilename(filename) {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid filename", "filename", filename)
		return
	}

	// Verify file extension is supported
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	supported := false
	for _, supportedExt := range config.GetSupportedVideoExtensions(s.configFile) {
		if ext == strings.ToLower(supportedExt) {
			supported = true
			break
		}
	}
	if !supported {
		s.sendErrorResponse(w, http.StatusForbidden, "File type not supported", "filename", filename)
		return
	}

	filePath := filepath.Join(s.service.GetConfig().Output.Directory, filename)
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.sendErrorResponse(w, http.StatusNotFound, "File not found", "filename", filename)
		} else {
			s.sendErrorResponse(w, http.StatusInternalServerError, "Error accessing file", "filename", filename, "error", err)
		}
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Error accessing file", "filename", filename, "error", err)
		return
	}

	contentType := mime.TypeByExtension("." + ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))

	if _, err := io.Copy(w, file); err != nil {
		slog.Error("Error serving file download", "file", filename, "error", err)
	}
}

// handleRecordingAnalyze returns the streams of a recording
func (s *Server) handleRecordingAnalyze(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("name")
	if !validFilename(filename) {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid filename", "filename", filename)
		return
	}

	analysis, err := s.service.AnalyzeRecording(filename)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, fs.ErrNotExist) {
			statusCode = http.StatusNotFound
		}
		s.sendErrorResponse(w, statusCode, err.Error(), "operation", "analyze_recording")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"analysis": analysis,
	})
}

// getActiveProfileName returns the active profile name from config file
func getActiveProfileName(configFile string) string {
	if configFile == "" {
		return ""
	}
	if _, err := os.Stat(configFile); err != nil {
		return ""
	}

	rootConfig, err := config.ValidateConfigurationFormat(configFile)
	if err != nil {
		slog.Warn("Failed to read config file for active profile", "error", err)
		return ""
	}

	if rootConfig.ActiveConfig == "" {
		return "default"
	}
	return rootConfig.ActiveConfig
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	// Log the error with structured context
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	// Send JSON error response
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
