package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/busybox42/mailroom/internal/metrics"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete messages older than the retention period",
	Long: `Deletes messages (and their logs) created before the cutoff, and
removes their externally stored content through the storage backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days := cleanupDays
		if days == 0 {
			days = cfg.Retention.Days
		}

		a, err := newApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		count, cutoff, err := a.store.DeleteOlderThan(cmd.Context(), days, a.content.Delete)
		if err != nil {
			return err
		}
		metrics.Get().MessagesPurged.Add(float64(count))

		fmt.Printf("Deleted %d message(s) created before %s\n",
			count, cutoff.Format("2006-01-02"))
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVarP(&cleanupDays, "days", "d", 0,
		"Delete messages older than this many days (default: retention.days)")
	rootCmd.AddCommand(cleanupCmd)
}
