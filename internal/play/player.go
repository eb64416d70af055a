package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// players in order of preference
var players = []string{"mpv", "vlc", "ffplay", "xdg-open"}

// Player opens saved recordings in an external video player
type Player struct {
	directory string
	lookPath  func(string) (string, error)
}

func New(directory string) *Player {
	return &Player{directory: directory, lookPath: exec.LookPath}
}

// Resolve returns the path of a recording inside the recordings directory.
// The name must be a plain file name.
func (p *Player) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid recording name: %q", name)
	}
	path := filepath.Join(p.directory, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("recording not found: %s: %w", path, err)
	}
	return path, nil
}

func (p *Player) Play(ctx context.Context, name string) error {
	path, err := p.Resolve(name)
	if err != nil {
		return err
	}

	player, err := p.findPlayer()
	if err != nil {
		return err
	}

	slog.Info("Playing recording", "file", path, "player", player)
	cmd := exec.CommandContext(ctx, player, playerArgs(player, path)...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}
	return nil
}

func (p *Player) findPlayer() (string, error) {
	for _, player := range players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no video player found (tried: %s)", strings.Join(players, ", "))
}

func playerArgs(player, path string) []string {
	switch player {
	case "vlc":
		return []string{"--play-and-exit", path}
	case "ffplay":
		return []string{"-autoexit", "-loglevel", "error", path}
	default:
		return []string{path}
	}
}
