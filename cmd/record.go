package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a tape from the selected camcorder",
	Long: `Bind the first camcorder found (or the one given with --device) and
record its DV stream until Ctrl+C, or until the camcorder stops sending.
Press PLAY on the camcorder once recording has started.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deviceID, _ := cmd.Flags().GetString("device")
		slog.Info("Record command started", "device", deviceID, "output", cfg.Output.Directory)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := newService()
		if _, err := svc.Refresh(ctx); err != nil {
			return err
		}
		if deviceID != "" {
			if err := svc.SelectDevice(deviceID); err != nil {
				return fmt.Errorf("cannot use device %s: %w", deviceID, err)
			}
		}

		if err := svc.Start(); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		fmt.Println(svc.Snapshot().StatusText)
		fmt.Println("Press PLAY on your camcorder. Press Ctrl+C to stop.")

		// keep discovery running so a pulled cable shows up in the log
		watching := make(chan struct{})
		go func() {
			defer close(watching)
			if err := svc.Run(ctx); err != nil {
				slog.Warn("Device watcher stopped", "error", err)
			}
		}()

		finished := make(chan struct{})
		go func() {
			_, _ = svc.Wait(context.Background())
			close(finished)
		}()

		select {
		case <-ctx.Done():
			slog.Info("Stopping recording...")
			if err := svc.Stop(); err != nil {
				slog.Warn("Stop request failed", "error", err)
			}
		case <-finished:
			slog.Info("Recording ended without a stop request")
		}

		waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Capture.StopTimeout+5*time.Second)
		defer cancel()
		outcome, err := svc.Wait(waitCtx)
		if err != nil {
			return fmt.Errorf("recording did not finish: %w", err)
		}
		// end the watcher before Close waits for pending notifications
		stop()
		<-watching
		if closeErr := svc.Close(waitCtx); closeErr != nil {
			slog.Debug("Service close failed", "error", closeErr)
		}

		fmt.Println(svc.Snapshot().StatusText)
		if outcome != nil && !outcome.Success {
			return fmt.Errorf("recording failed: %s", outcome.ErrorDetail)
		}
		if outcome != nil {
			slog.Info("Recording saved", "path", outcome.OutputPath, "duration", outcome.Duration.Round(time.Second))
		}
		return nil
	},
}

func init() {
	recordCmd.Flags().StringP("device", "d", "", "unique id of the camcorder to record (see 'dvcapture devices')")
}
