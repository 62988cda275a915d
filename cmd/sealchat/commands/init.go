package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sealchat/internal/crypto"
	"sealchat/internal/domain"
	"sealchat/internal/keyring"
)

func initCmd() *cobra.Command {
	var oneTimeCount int

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate the identity, signed prekey, and one-time prekey pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := appCtx.Keys.Identity(); err == nil {
				return fmt.Errorf("identity already exists in %s", home)
			} else if !errors.Is(err, domain.ErrNoIdentityKey) {
				return err
			}

			id, err := appCtx.Keys.GenerateIdentity()
			if err != nil {
				return err
			}
			if _, err := appCtx.Keys.GenerateSignedPreKey(); err != nil {
				return err
			}
			if _, err := appCtx.Keys.GenerateOneTimePreKeys(oneTimeCount); err != nil {
				return err
			}
			fmt.Printf("identity created for %s\n", user)
			fmt.Printf("fingerprint: %s\n", crypto.Fingerprint(id.AgreementPub.Slice()))
			fmt.Printf("one-time prekeys: %d\n", oneTimeCount)
			return nil
		},
	}
	cmd.Flags().IntVar(&oneTimeCount, "one-time-prekeys", keyring.DefaultOneTimePreKeyCount, "one-time prekeys to generate")
	return cmd
}
