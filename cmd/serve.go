package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/screencapture/internal/server"
	"github.com/audiolibrelab/screencapture/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the ScreenCapture web server to control recording via a web interface.
This allows you to start, pause, stop and review recordings from your smartphone
or any device on the same network.

Server settings come from SCREENCAPTURE_PORT, SCREENCAPTURE_READ_HEADER_TIMEOUT
and SCREENCAPTURE_ALLOWED_ORIGINS; --port overrides the environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRecordFlags(cmd)

		settings, err := server.LoadSettings()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			settings.Port, _ = cmd.Flags().GetString("port")
		}

		svc, err := service.New(cfg, cfgFile, service.Options{Confirmer: server.RequestConfirmer})
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		srv := server.New(svc, cfgFile, settings)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("ScreenCapture web server starting", "port", settings.Port, "config", cfgFile)

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return svc.Run(gCtx)
		})
		g.Go(func() error {
			return srv.Run(gCtx)
		})

		if err := g.Wait(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	addRecordFlags(serveCmd)
	serveCmd.Flags().String("port", "8080", "port for the web server")
}
