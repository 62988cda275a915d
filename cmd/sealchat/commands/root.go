package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"sealchat/internal/app"
	"sealchat/internal/logging"
)

var (
	home       string
	user       string
	passphrase string
	dirURL     string
	debug      bool

	appCtx *app.App
)

// Execute runs the CLI.
func Execute() error {
	root := &cobra.Command{
		Use:           "sealchat",
		Short:         "End-to-end encrypted messaging CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".sealchat")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			if user == "" {
				return fmt.Errorf("--user is required")
			}
			log, err := logging.New(debug)
			if err != nil {
				return err
			}
			appCtx, err = app.New(app.Config{
				Home:         home,
				User:         user,
				Passphrase:   passphrase,
				DirectoryURL: dirURL,
				Log:          log,
			})
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appCtx != nil {
				return appCtx.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.sealchat)")
	root.PersistentFlags().StringVarP(&user, "user", "u", "", "local user identifier")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase sealing the secret store")
	root.PersistentFlags().StringVar(&dirURL, "directory", "http://127.0.0.1:8080", "directory service base URL")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "verbose logging")

	root.AddCommand(initCmd(), registerCmd(), sendCmd(), recvCmd(), fingerprintCmd())
	return root.Execute()
}
