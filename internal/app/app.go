// Package app wires the stores, services, and clients for the CLI.
package app

import (
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"sealchat/internal/directory"
	"sealchat/internal/keyring"
	"sealchat/internal/secrets"
	"sealchat/internal/session"
)

// Config holds runtime wiring options.
type Config struct {
	Home         string // data directory, e.g. $HOME/.sealchat
	User         string // local user identifier
	Passphrase   string // seals the secret store
	DirectoryURL string // directoryd base URL
	HTTP         *http.Client
	Log          *zap.Logger
}

// App is the assembled dependency graph.
type App struct {
	Keys      *keyring.Manager
	Directory *directory.HTTPClient
	Sessions  *session.Store
	Secrets   *secrets.Bolt
	Log       *zap.Logger
}

// New builds the app from cfg. Close the returned App when done.
func New(cfg Config) (*App, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	store, err := secrets.OpenBolt(filepath.Join(cfg.Home, "secrets.db"), cfg.Passphrase)
	if err != nil {
		return nil, err
	}
	keys := keyring.New(store)
	dir := directory.NewHTTP(cfg.DirectoryURL, cfg.HTTP)
	return &App{
		Keys:      keys,
		Directory: dir,
		Sessions:  session.New(cfg.User, keys, dir, store, log),
		Secrets:   store,
		Log:       log,
	}, nil
}

// Close releases held resources.
func (a *App) Close() error { return a.Secrets.Close() }
