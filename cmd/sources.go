package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/screencapture/internal/capture"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available microphone sources",
	Long:  `List the PulseAudio/PipeWire sources the ffmpeg backend can record from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listAvailableSources(capture.NewPulseSources())
	},
}

func listAvailableSources(pulse *capture.PulseSources) error {
	fmt.Printf("🎙  Audio Sources (%s)\n", runtime.GOOS)
	fmt.Printf("═══════════════════════════════════════\n\n")

	sources, err := pulse.ListSources()
	if err != nil {
		return fmt.Errorf("failed to get audio sources: %w", err)
	}

	fmt.Printf("📋 SOURCES (%d found):\n", len(sources))
	for i, source := range sources {
		marker := ""
		if capture.IsMonitorSource(source) {
			marker = " (monitor)"
		}
		if cfg != nil && cfg.Capture.Microphone.Enabled && source == cfg.Capture.Microphone.Source {
			marker += " [configured]"
		}
		fmt.Printf("  %d. %s%s\n", i+1, source, marker)
	}

	fmt.Printf("\n💡 Usage:\n")
	fmt.Printf("  • Configure in definitions.microphones[].source and reference it from capture.microphone.ref\n")
	fmt.Printf("  • \"default\" uses the system default source\n")
	fmt.Printf("  • The browser backend picks microphones by browser device id instead\n\n")

	return nil
}
