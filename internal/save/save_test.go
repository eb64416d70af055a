package save

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/audiolibrelab/screencapture/internal/capture"
)

func writePayload(t *testing.T, dir, name string, size int) *capture.Payload {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("Failed to write payload: %v", err)
	}
	return &capture.Payload{Path: path, Size: int64(size), MIMEType: "video/webm;codecs=vp8,opus"}
}

func TestFileSaver_Save(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "recordings")
	payload := writePayload(t, tmp, "capture.webm", 2048)

	saver := NewFileSaver(out)
	if err := saver.Save(context.Background(), payload, "3f2c9a.webm"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(out, "3f2c9a.webm"))
	if err != nil {
		t.Fatalf("Expected saved file: %v", err)
	}
	if info.Size() != 2048 {
		t.Errorf("Expected 2048 bytes, got %d", info.Size())
	}
	if _, err := os.Stat(payload.Path); !os.IsNotExist(err) {
		t.Error("Expected temporary file to be moved")
	}
}

func TestFileSaver_NeverOverwrites(t *testing.T) {
	tmp := t.TempDir()
	saver := NewFileSaver(filepath.Join(tmp, "out"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		payload := writePayload(t, tmp, "capture.webm", 1024+i)
		if err := saver.Save(ctx, payload, "session.webm"); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	for _, name := range []string{"session.webm", "session-1.webm", "session-2.webm"} {
		if _, err := os.Stat(filepath.Join(tmp, "out", name)); err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
		}
	}
}

func TestFileSaver_EmptyPayload(t *testing.T) {
	saver := NewFileSaver(t.TempDir())

	if err := saver.Save(context.Background(), nil, "x.webm"); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("Expected ErrEmptyPayload for nil payload, got %v", err)
	}
	if err := saver.Save(context.Background(), &capture.Payload{Path: "/tmp/x"}, "x.webm"); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("Expected ErrEmptyPayload for zero size, got %v", err)
	}
}

func TestFileSaver_CancelledContext(t *testing.T) {
	tmp := t.TempDir()
	payload := writePayload(t, tmp, "capture.webm", 2048)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewFileSaver(tmp).Save(ctx, payload, "x.webm"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFileSaver_FallbackName(t *testing.T) {
	tmp := t.TempDir()
	payload := writePayload(t, tmp, "screencapture-abc.webm", 2048)
	out := filepath.Join(tmp, "out")

	if err := NewFileSaver(out).Save(context.Background(), payload, "///"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "screencapture-abc.webm")); err != nil {
		t.Errorf("Expected payload name to be used: %v", err)
	}
}

func TestCleanFileName(t *testing.T) {
	tests := map[string]string{
		"My Recording.webm": "My_Recording.webm",
		"../../etc/passwd":  "etcpasswd",
		"a1b2-c3_d4.webm":   "a1b2-c3_d4.webm",
		"  spaced  ":        "spaced",
		"{7e3c}.webm":       "7e3c.webm",
		"..hidden":          "hidden",
	}
	for in, want := range tests {
		if got := CleanFileName(in); got != want {
			t.Errorf("CleanFileName(%q) = %q, want %q", in, got, want)
		}
	}
}
