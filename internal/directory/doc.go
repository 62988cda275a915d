// Package directory provides clients for the Directory Service, which
// stores public key bundles by user identifier and hands out one
// one-time prekey per bundle fetch until the pool runs dry. HTTPClient
// talks to directoryd and also exposes its mailbox; Memory is the
// in-process stub used by tests.
package directory
