package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/busybox42/mailroom/internal/queue"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show message counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.store.CountByStatus(cmd.Context())
		if err != nil {
			return err
		}

		total := 0
		for st := queue.StatusCreated; st <= queue.StatusDiscarded; st++ {
			fmt.Printf("%-12s %d\n", st.String(), counts[st])
			total += counts[st]
		}
		fmt.Printf("%-12s %d\n", "total", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
