package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/screencapture/internal/service"
	"github.com/audiolibrelab/screencapture/internal/session"
	"github.com/audiolibrelab/screencapture/internal/tui"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the screen from the terminal UI",
	Long: `Open the terminal UI and start recording after the countdown.

Keys: p pause, r resume, s stop & save, d delete, x replay, q quit.
Delete and replay ask for confirmation (y/n). Quitting saves the
current recording. Logs go to --log-file only while the UI is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRecordFlags(cmd)

		ui := tui.New()
		svc, err := service.New(cfg, cfgFile, service.Options{
			Confirmer: ui,
			Surfaces:  []session.Surface{ui},
		})
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gCtx := errgroup.WithContext(ctx)
		ui.Bind(gCtx, svc)

		// The loop outlives the UI so the active recording is saved on quit
		loopCtx, stopLoop := context.WithCancel(context.Background())
		defer stopLoop()

		g.Go(func() error {
			return svc.Run(loopCtx)
		})
		g.Go(func() error {
			defer stopLoop()
			return ui.Run()
		})

		if start, _ := cmd.Flags().GetBool("start"); start {
			g.Go(func() error {
				if err := svc.Start(gCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, session.ErrLoopStopped) {
					return fmt.Errorf("failed to start recording: %w", err)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}

		if msg := svc.GetLastError(); msg != "" {
			fmt.Fprintf(os.Stderr, "Last error: %s\n", msg)
		}
		fmt.Printf("Recordings are saved in %s\n", cfg.Output.Directory)
		return nil
	},
}

// applyRecordFlags overrides the resolved configuration with command line flags
func applyRecordFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("no-mic") {
		if noMic, _ := cmd.Flags().GetBool("no-mic"); noMic {
			cfg.Capture.Microphone.Enabled = false
		}
	}
	if cmd.Flags().Changed("countdown") {
		countdown, _ := cmd.Flags().GetInt("countdown")
		if countdown >= 0 {
			cfg.Session.Countdown = countdown
		}
	}
	if cmd.Flags().Changed("backend") {
		cfg.Capture.Backend, _ = cmd.Flags().GetString("backend")
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.Directory, _ = cmd.Flags().GetString("output")
	}
}

func addRecordFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-mic", false, "record the screen without a microphone")
	cmd.Flags().Int("countdown", 3, "countdown seconds before capture starts (overrides config)")
	cmd.Flags().String("backend", "", "capture backend: ffmpeg, browser or auto (overrides config)")
	cmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
}

func init() {
	addRecordFlags(recordCmd)
	recordCmd.Flags().Bool("start", true, "start the countdown as soon as the UI opens")
}
