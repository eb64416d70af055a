package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrPermissionDenied is returned when the user refuses screen or microphone capture
	ErrPermissionDenied = errors.New("capture permission denied")

	// ErrSourceUnavailable is returned when the requested capture source does not exist
	ErrSourceUnavailable = errors.New("capture source unavailable")
)

// VideoConstraints describes the requested screen capture
type VideoConstraints struct {
	FrameRate int
	Display   string
}

// AudioConstraints describes the requested microphone capture
type AudioConstraints struct {
	Source           string
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
}

// CodecSpec selects the container and codecs used by a record handle
type CodecSpec struct {
	Container string
	Video     string
	Audio     string
}

// MIMEType returns the browser style mime type, e.g. video/webm;codecs=vp8,opus
func (c CodecSpec) MIMEType() string {
	codecs := make([]string, 0, 2)
	if c.Video != "" {
		codecs = append(codecs, c.Video)
	}
	if c.Audio != "" {
		codecs = append(codecs, c.Audio)
	}
	if len(codecs) == 0 {
		return "video/" + c.Extension()
	}
	return fmt.Sprintf("video/%s;codecs=%s", c.Extension(), strings.Join(codecs, ","))
}

// Extension returns the file extension of the container without the dot
func (c CodecSpec) Extension() string {
	if c.Container == "" {
		return "webm"
	}
	return strings.ToLower(c.Container)
}

// NotificationType identifies a record handle lifecycle notification
type NotificationType int

const (
	NotificationStarted NotificationType = iota
	NotificationPaused
	NotificationResumed
	NotificationStopped
	NotificationDataReady
)

func (t NotificationType) String() string {
	switch t {
	case NotificationStarted:
		return "started"
	case NotificationPaused:
		return "paused"
	case NotificationResumed:
		return "resumed"
	case NotificationStopped:
		return "stopped"
	case NotificationDataReady:
		return "dataReady"
	default:
		return fmt.Sprintf("notification(%d)", int(t))
	}
}

// Payload is the finalized recording, backed by a file on disk
type Payload struct {
	Path     string
	Size     int64
	MIMEType string
}

// Notification is emitted by a record handle in the order its commands were issued
type Notification struct {
	Type     NotificationType
	HandleID string
	Payload  *Payload
	Err      error
}

// Handle incrementally encodes a stream into a recording file
type Handle interface {
	ID() string
	Stream() *Stream

	Start() error
	Pause() error
	Resume() error
	Stop() error
}

// NotifyFunc receives handle notifications. Implementations must not block for long.
type NotifyFunc func(Notification)

// Service acquires capture streams and opens record handles on them
type Service interface {
	AcquireVideoStream(ctx context.Context, constraints VideoConstraints) (*Stream, error)
	AcquireAudioStream(ctx context.Context, constraints AudioConstraints) (*Stream, error)
	OpenRecordHandle(stream *Stream, codec CodecSpec, notify NotifyFunc) (Handle, error)

	// ListSources lists the capture sources known to the backend
	ListSources() ([]string, error)

	Close() error
}

// Discard removes the payload file
func (p *Payload) Discard() error {
	if p == nil || p.Path == "" {
		return nil
	}
	if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard recording: %w", err)
	}
	return nil
}
