// Package commands implements the sealchat CLI: account registration,
// bundle upload, and encrypted send/receive against a directoryd.
package commands
