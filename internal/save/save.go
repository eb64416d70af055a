package save

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/screencapture/internal/capture"
)

// ErrEmptyPayload is returned when there is nothing to save
var ErrEmptyPayload = errors.New("recording payload is empty")

// FileSaver moves finalized recordings into a directory
type FileSaver struct {
	Directory string
}

// NewFileSaver creates a saver writing into directory
func NewFileSaver(directory string) *FileSaver {
	return &FileSaver{Directory: directory}
}

// Save moves the payload file to the directory under a cleaned version of
// suggestedName. Existing files are never overwritten.
func (s *FileSaver) Save(ctx context.Context, payload *capture.Payload, suggestedName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if payload == nil || payload.Size == 0 || payload.Path == "" {
		return ErrEmptyPayload
	}

	if err := os.MkdirAll(s.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}

	name := CleanFileName(suggestedName)
	if name == "" {
		name = CleanFileName(filepath.Base(payload.Path))
	}
	target, err := availablePath(s.Directory, name)
	if err != nil {
		return err
	}

	if err := moveFile(payload.Path, target); err != nil {
		return fmt.Errorf("failed to save recording to %s: %w", target, err)
	}

	slog.Info("Recording written", "file", target, "size", payload.Size, "mime_type", payload.MIMEType)
	return nil
}

// CleanFileName keeps letters, digits, dash, underscore and dot; spaces become underscores
func CleanFileName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == ' ' || r == '-' || r == '_' || r == '.' {
			result.WriteRune(r)
		}
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
	return strings.TrimLeft(cleaned, ".")
}

// availablePath returns dir/name, or dir/name-N.ext when taken
func availablePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for i := 1; ; i++ {
		_, err := os.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
	}
}

// moveFile renames src to dst, copying when they are on different devices
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	if err := os.Remove(src); err != nil {
		slog.Warn("Failed to remove temporary recording", "file", src, "error", err)
	}
	return nil
}
