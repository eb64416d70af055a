package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/screencapture/internal/service"
)

var recordingsCmd = &cobra.Command{
	Use:   "recordings [name]",
	Short: "List saved recordings, or show the streams of one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg, cfgFile, service.Options{})
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}

		if len(args) == 1 {
			return showRecordingAnalysis(svc, args[0])
		}

		recordings, err := svc.ListRecordings()
		if err != nil {
			return err
		}

		fmt.Printf("📁 %s (%d recordings)\n", cfg.Output.Directory, len(recordings))
		for _, rec := range recordings {
			fmt.Printf("  %-40s %10s  %s\n", rec.Name, rec.SizeHuman, rec.ModTimeHuman)
		}
		return nil
	},
}

func showRecordingAnalysis(svc service.Service, name string) error {
	analysis, err := svc.AnalyzeRecording(name)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %.1fs, %d streams\n", analysis.Filename, analysis.Duration, analysis.StreamCount)
	for _, stream := range analysis.Streams {
		switch stream.CodecType {
		case "video":
			fmt.Printf("  #%d video %s %dx%d @ %s\n", stream.Index, stream.CodecName, stream.Width, stream.Height, stream.FrameRate)
		default:
			fmt.Printf("  #%d audio %s %d ch @ %d Hz\n", stream.Index, stream.CodecName, stream.Channels, stream.SampleRate)
		}
	}
	return nil
}
