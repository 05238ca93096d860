package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/busybox42/mailroom/internal/delivery"
)

var retryMaxRetries int

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-enqueue failed messages",
	Long: `Runs one retry pass: every message in a failure state whose enqueue
count is below the cap is placed back in the queue for delivery.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.attachTrigger(); err != nil {
			return err
		}

		coordinator := delivery.NewCoordinator(a.store, a.engine, cfg.Retry)
		enqueued, failed, err := coordinator.Retry(cmd.Context(), retryMaxRetries)
		if err != nil {
			return err
		}

		fmt.Printf("%d message(s) enqueued, %d submission failure(s)\n", enqueued, failed)
		return nil
	},
}

func init() {
	retryCmd.Flags().IntVarP(&retryMaxRetries, "max-retries", "m", 3,
		"Skip messages already enqueued this many times (0 disables the cap)")
	rootCmd.AddCommand(retryCmd)
}
