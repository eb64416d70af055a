package capture

import (
	"fmt"
	"strings"
)

// BackendType represents the type of capture backend
type BackendType string

const (
	BackendTypeFFmpeg  BackendType = "ffmpeg"
	BackendTypeBrowser BackendType = "browser"
	BackendTypeAuto    BackendType = "auto"
)

// ParseBackend resolves a configured backend name. Auto resolves to ffmpeg.
func ParseBackend(name string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", string(BackendTypeAuto), string(BackendTypeFFmpeg):
		return BackendTypeFFmpeg, nil
	case string(BackendTypeBrowser):
		return BackendTypeBrowser, nil
	default:
		return "", fmt.Errorf("unknown capture backend: %s (supported: %v)", name, GetAvailableBackends())
	}
}

// GetAvailableBackends returns the list of backends that can be configured
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeFFmpeg, BackendTypeBrowser, BackendTypeAuto}
}
