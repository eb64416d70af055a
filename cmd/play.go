package cmd

import (
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/screencapture/internal/play"
)

var playCmd = &cobra.Command{
	Use:   "play <recording>",
	Short: "Play a saved recording",
	Long:  `Open a recording from the recordings directory in mpv, vlc or ffplay.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return play.New(cfg.Output.Directory).Play(cmd.Context(), args[0])
	},
}
