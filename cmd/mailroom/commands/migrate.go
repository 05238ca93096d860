package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/busybox42/mailroom/internal/storage"
)

var (
	migrateFrom string
	migrateTo   string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-storage",
	Short: "Move message content between storage backends",
	Long: `Moves every message payload from one content backend to the other
(database blob or external file), updating each row to point at the new
backend. Safe to re-run; rows record which backend owns their content.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		from, err := storage.New(migrateFrom, cfg.Storage.Dir)
		if err != nil {
			return err
		}
		to, err := storage.New(migrateTo, cfg.Storage.Dir)
		if err != nil {
			return err
		}

		migrated, err := storage.Migrate(cmd.Context(), a.store, from, to)
		if err != nil {
			return err
		}

		fmt.Printf("Migrated %d message(s) from %s to %s storage\n",
			migrated, from.Name(), to.Name())
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFrom, "from", "", "Source backend (database or file)")
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "Destination backend (database or file)")
	_ = migrateCmd.MarkFlagRequired("from")
	_ = migrateCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(migrateCmd)
}
