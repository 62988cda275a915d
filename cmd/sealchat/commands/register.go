package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Upload the public key bundle to the directory service",
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := appCtx.Keys.ExportPublicBundle(user)
			if err != nil {
				return err
			}
			if err := appCtx.Directory.Upload(cmd.Context(), user, bundle); err != nil {
				return err
			}
			fmt.Printf("bundle registered for %s (%d one-time prekeys)\n", user, len(bundle.OneTimePreKeys))
			return nil
		},
	}
}
