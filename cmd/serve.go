package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/dvcapture/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the dvcapture web server to pick a camcorder and control capture
from a browser. Status updates are pushed to the page over a WebSocket.

The server will display the local network URL for easy access from other devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		if port == "" {
			port = cfg.Server.Port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := newService()
		watching := make(chan struct{})
		go func() {
			defer close(watching)
			if err := svc.Run(ctx); err != nil {
				slog.Error("Device watcher stopped", "error", err)
			}
		}()

		slog.Info("DV Capture web server starting", "port", port, "config", cfg.File, "profile", cfg.Profile)

		// Start server (this blocks until the signal)
		serveErr := server.New(svc, port).Start(ctx)
		stop()
		<-watching

		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Capture.StopTimeout+5*time.Second)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			slog.Error("Failed to finish recording on shutdown", "error", err)
		}

		if serveErr != nil {
			return fmt.Errorf("server failed: %w", serveErr)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the web server (default from config, 8080)")
}
