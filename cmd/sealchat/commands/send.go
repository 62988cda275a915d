package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <text>",
		Short: "Encrypt and send a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, text := args[0], args[1]
			msg, err := appCtx.Sessions.Encrypt(cmd.Context(), peer, []byte(text))
			if err != nil {
				return err
			}
			if err := appCtx.Directory.Push(cmd.Context(), msg); err != nil {
				return fmt.Errorf("deliver to %s: %w", peer, err)
			}
			fmt.Printf("sent to %s (counter %d)\n", peer, msg.Envelope.Counter)
			return nil
		},
	}
}
