// Package secrets implements the Secret Store: an opaque byte-blob
// store keyed by tag, used to persist private key material between
// restarts. The bbolt implementation seals every blob with a
// passphrase-derived key; Memory backs tests.
package secrets
