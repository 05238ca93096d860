package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/busybox42/mailroom/internal/mailer"
)

var (
	sendTestTo   string
	sendTestFrom string
)

var sendTestCmd = &cobra.Command{
	Use:   "send-test",
	Short: "Queue a test email",
	Long: `Queues a test email through the full submission path so the store,
dispatch trigger and transport configuration can be verified end to end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.attachTrigger(); err != nil {
			return err
		}

		m := mailer.New(a.store, a.content, a.engine, cfg.Mailer)
		msg, err := m.Queue(cmd.Context(), mailer.Email{
			From:    sendTestFrom,
			To:      []string{sendTestTo},
			Subject: "Mailroom test email",
			Body:    "This is a test email queued by the mailroom CLI.",
		})
		if err != nil {
			return err
		}

		fmt.Printf("Queued test message %s\n", msg.ID)
		return nil
	},
}

func init() {
	sendTestCmd.Flags().StringVarP(&sendTestTo, "to", "t", "", "Recipient address")
	sendTestCmd.Flags().StringVarP(&sendTestFrom, "from", "f", "", "Sender address (default: mailer.default_from)")
	_ = sendTestCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(sendTestCmd)
}
