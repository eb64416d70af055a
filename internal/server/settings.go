package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings holds the web server options read from the environment
type Settings struct {
	Port              string        `env:"PORT"                envDefault:"8080"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`

	// AllowedOrigins lists origins allowed to open the view stream.
	// Empty allows only the server's own host.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// LoadSettings parses SCREENCAPTURE_* environment variables
func LoadSettings() (Settings, error) {
	settings, err := env.ParseAsWithOptions[Settings](env.Options{Prefix: "SCREENCAPTURE_"})
	if err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return settings, nil
}
