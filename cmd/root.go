package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/audiolibrelab/screencapture/internal/config"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int
	logFile      string
)

var rootCmd = &cobra.Command{
	Use:   "screencapture",
	Short: "Screen and microphone recorder with pause, resume and replay",
	Long: `ScreenCapture records the screen together with a microphone into a
single video file.

A short countdown precedes every recording. Recordings can be paused,
resumed, stopped and saved, deleted, or thrown away and restarted, from
the terminal UI or from a web page on the local network.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The terminal UI owns the screen, so record logs only to a file
		setupLogging(verboseLevel, logFile, cmd.Name() != "record")

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		// Switching profiles only touches the file
		if cmd.Name() == "use" {
			return nil
		}

		var err error
		cfg, err = config.LoadOrDefault(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		closeLogFile()
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/screencapture.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug (includes ffmpeg output)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated at 10 MB")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(playCmd)
}

var rotatingLog *lumberjack.Logger

// setupLogging configures slog based on the verbose level
func setupLogging(level int, file string, console bool) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	default:
		slogLevel = slog.LevelDebug
	}

	var writers []io.Writer
	if console {
		writers = append(writers, os.Stderr)
	}
	if file != "" {
		rotatingLog = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}
		writers = append(writers, rotatingLog)
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = io.MultiWriter(writers...)
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(out, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}

func closeLogFile() {
	if rotatingLog != nil {
		rotatingLog.Close()
		rotatingLog = nil
	}
}
