package capture

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// PulseSources manages PulseAudio/PipeWire-pulse source lookups
type PulseSources struct {
	// list returns the raw `pactl list short sources` output; replaced in tests
	list func() ([]byte, error)
}

// NewPulseSources creates a new PulseSources instance
func NewPulseSources() *PulseSources {
	return &PulseSources{
		list: func() ([]byte, error) {
			return exec.Command("pactl", "list", "short", "sources").Output()
		},
	}
}

// ListSources returns the names of all capture sources
func (ps *PulseSources) ListSources() ([]string, error) {
	output, err := ps.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio sources: %w", err)
	}
	return parseShortSources(string(output)), nil
}

// parseShortSources extracts the name column of `pactl list short sources`
func parseShortSources(output string) []string {
	var sources []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		sources = append(sources, fields[1])
	}
	return sources
}

// ValidateSource checks that a source exists and has no duplicates
func (ps *PulseSources) ValidateSource(name string) error {
	if name == "" || name == "default" {
		return nil
	}

	all, err := ps.ListSources()
	if err != nil {
		return err
	}
	return validateSourceInList(name, all)
}

func validateSourceInList(name string, all []string) error {
	if name == "" || name == "default" {
		return nil
	}

	duplicates := findDuplicatesInList(name, all)
	if len(duplicates) == 0 {
		return fmt.Errorf("%w: source not found: %s", ErrSourceUnavailable, name)
	}
	if len(duplicates) > 1 {
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", name, duplicates)
	}

	slog.Debug("Audio source validated", "source", name)
	return nil
}

// findDuplicatesInList finds all sources with exactly the same name
func findDuplicatesInList(name string, all []string) []string {
	var duplicates []string
	for _, source := range all {
		if source == name {
			duplicates = append(duplicates, source)
		}
	}
	return duplicates
}

// IsMonitorSource reports whether a source captures a sink output rather than a microphone
func IsMonitorSource(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".monitor")
}
