package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func recvCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Fetch and decrypt pending messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := appCtx.Directory.Drain(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			for _, msg := range msgs {
				pt, err := appCtx.Sessions.Decrypt(msg.From, msg)
				if err != nil {
					// Surfacing the failure is the caller's job at this
					// layer; keep processing the rest of the mailbox.
					fmt.Printf("[%s] <undecryptable: %v>\n", msg.From, err)
					continue
				}
				fmt.Printf("[%s] %s\n", msg.From, pt)
			}
			if len(msgs) == 0 {
				fmt.Println("no pending messages")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max messages to fetch (0 = all)")
	return cmd
}
