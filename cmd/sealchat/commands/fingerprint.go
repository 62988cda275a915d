package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"sealchat/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the local identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := appCtx.Keys.Identity()
			if err != nil {
				return err
			}
			fmt.Println(crypto.Fingerprint(id.AgreementPub.Slice()))
			return nil
		},
	}
}
