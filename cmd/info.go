package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/screencapture/internal/capture"
	"github.com/audiolibrelab/screencapture/internal/config"
	"github.com/audiolibrelab/screencapture/internal/save"
)

var infoCmd = &cobra.Command{
	Use:   "info [name]",
	Short: "Show resolved configuration and the file path for a recording",
	Long:  `Display the resolved configuration with inheritance indicators. Shows which values are built in, inherited from the default profile or profile-specific. With a name, also shows where that recording would be saved.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inh := cfg.Inheritance
		codec := capture.CodecSpec{
			Container: cfg.Encoding.Container,
			Video:     cfg.Encoding.VideoCodec,
			Audio:     cfg.Encoding.AudioCodec,
		}

		if len(args) == 1 {
			cleanName := save.CleanFileName(args[0])
			fmt.Printf("=== FILE PATHS ===\n")
			fmt.Printf("output: %s\n", filepath.Join(cfg.Output.Directory, cleanName+"."+codec.Extension()))
			fmt.Printf("clean_name: %s\n\n", cleanName)
		}

		fmt.Printf("=== RESOLVED CONFIGURATION ===\n")
		fmt.Printf("config file: %s\n", cfgFile)

		fmt.Printf("\n[Capture]\n")
		fmt.Printf("backend: %s %s\n", cfg.Capture.Backend, getInheritanceIndicator(inh.Capture.Backend))
		fmt.Printf("display: %s %s\n", valueOr(cfg.Capture.Display, "$DISPLAY"), getInheritanceIndicator(inh.Capture.Display))
		fmt.Printf("frame_rate: %d %s\n", cfg.Capture.FrameRate, getInheritanceIndicator(inh.Capture.FrameRate))

		mic := cfg.Capture.Microphone
		fmt.Printf("\n[Microphone] %s\n", getInheritanceIndicator(inh.Capture.Microphone))
		if !mic.Enabled {
			fmt.Printf("disabled\n")
		} else {
			if mic.Name != "" {
				fmt.Printf("name: %s\n", mic.Name)
			}
			fmt.Printf("source: %s\n", mic.Source)
			fmt.Printf("channels: %d\n", mic.Channels)
			fmt.Printf("echo_cancellation: %t\n", mic.EchoCancellation)
			fmt.Printf("noise_suppression: %t\n", mic.NoiseSuppression)
		}

		fmt.Printf("\n[Encoding]\n")
		fmt.Printf("container: %s %s\n", cfg.Encoding.Container, getInheritanceIndicator(inh.Encoding.Container))
		fmt.Printf("video_codec: %s %s\n", cfg.Encoding.VideoCodec, getInheritanceIndicator(inh.Encoding.VideoCodec))
		fmt.Printf("audio_codec: %s %s\n", cfg.Encoding.AudioCodec, getInheritanceIndicator(inh.Encoding.AudioCodec))
		fmt.Printf("mime_type: %s\n", codec.MIMEType())

		fmt.Printf("\n[Session]\n")
		fmt.Printf("countdown: %d %s\n", cfg.Session.Countdown, getInheritanceIndicator(inh.Session.Countdown))
		fmt.Printf("delete_prompt: %s %s\n", cfg.Session.DeletePrompt, getInheritanceIndicator(inh.Session.Prompts))
		fmt.Printf("replay_prompt: %s %s\n", cfg.Session.ReplayPrompt, getInheritanceIndicator(inh.Session.Prompts))

		fmt.Printf("\n[Browser]\n")
		fmt.Printf("bin: %s %s\n", valueOr(cfg.Browser.Bin, "auto"), getInheritanceIndicator(inh.Browser.Bin))
		fmt.Printf("headless: %t %s\n", cfg.Browser.Headless, getInheritanceIndicator(inh.Browser.Headless))
		fmt.Printf("capture_source: %s %s\n", cfg.Browser.CaptureSource, getInheritanceIndicator(inh.Browser.CaptureSource))

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(inh.Output.Directory))

		return nil
	},
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case config.Inherited:
		return "[inherited]"
	case config.ProfileSpecific:
		return "[profile-specific]"
	case config.BuiltIn:
		return "[built-in]"
	default:
		return "[unknown]"
	}
}
