package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/audiolibrelab/screencapture/internal/capture"
)

// handle is a MediaRecorder living in the recorder page
type handle struct {
	id       string
	stream   *capture.Stream
	backend  *Backend
	notify   capture.NotifyFunc
	mimeType string

	mu       sync.Mutex
	file     *os.File
	size     int64
	writeErr error
	started  bool
	finished bool
}

func (h *handle) ID() string {
	return h.id
}

func (h *handle) Stream() *capture.Stream {
	return h.stream
}

func (h *handle) call(method string) error {
	js := fmt.Sprintf(`(id, timeslice) => window.recorder.%s(id, timeslice)`, method)
	if err := h.backend.eval(context.Background(), nil, js, h.id, chunkInterval); err != nil {
		return fmt.Errorf("media recorder %s failed: %w", method, err)
	}
	return nil
}

func (h *handle) Start() error {
	if err := h.call("start"); err != nil {
		return err
	}
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	return nil
}

func (h *handle) Pause() error {
	return h.call("pause")
}

func (h *handle) Resume() error {
	return h.call("resume")
}

// Stop finalizes the recorder. The last chunk and the stopped event follow from the page.
// A recorder that never started, or that the page cannot stop, is finished here.
func (h *handle) Stop() error {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()

	if !started {
		h.finish()
		return nil
	}
	if err := h.call("stop"); err != nil {
		h.finish()
		return err
	}
	return nil
}

// handle applies a page event, in the order the page sent them
func (h *handle) handle(msg message) {
	switch msg.Type {
	case messageStarted:
		h.notify(capture.Notification{Type: capture.NotificationStarted, HandleID: h.id})
	case messagePaused:
		h.notify(capture.Notification{Type: capture.NotificationPaused, HandleID: h.id})
	case messageResumed:
		h.notify(capture.Notification{Type: capture.NotificationResumed, HandleID: h.id})
	case messageData:
		h.write(msg)
	case messageError:
		slog.Error("Media recorder error", "handle", h.id, "error", msg.Error)
		h.mu.Lock()
		if h.writeErr == nil {
			h.writeErr = errors.New(msg.Error)
		}
		h.mu.Unlock()
	case messageStopped:
		h.finish()
	}
}

func (h *handle) write(msg message) {
	data, err := msg.chunkBytes()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		return
	}
	if err == nil {
		_, err = h.file.Write(data)
	}
	if err != nil {
		slog.Error("Failed to write recording chunk", "handle", h.id, "error", err)
		if h.writeErr == nil {
			h.writeErr = err
		}
		return
	}
	h.size += int64(len(data))
}

// finish closes the file and emits dataReady then stopped
func (h *handle) finish() {
	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		return
	}
	h.finished = true
	path := h.file.Name()
	size := h.size
	stopErr := h.writeErr
	if err := h.file.Close(); err != nil && stopErr == nil {
		stopErr = fmt.Errorf("failed to close recording: %w", err)
	}
	h.mu.Unlock()

	h.backend.forget(h.id)

	if size > 0 {
		h.notify(capture.Notification{
			Type:     capture.NotificationDataReady,
			HandleID: h.id,
			Payload:  &capture.Payload{Path: path, Size: size, MIMEType: h.mimeType},
		})
	} else {
		os.Remove(path)
	}
	h.notify(capture.Notification{Type: capture.NotificationStopped, HandleID: h.id, Err: stopErr})
}

// discard drops an unfinished recording when the backend closes
func (h *handle) discard() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		return
	}
	h.finished = true
	h.file.Close()
	os.Remove(h.file.Name())
}
