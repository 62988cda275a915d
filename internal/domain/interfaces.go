package domain

import "context"

// DirectoryClient is the abstract capability of the Directory Service:
// store and serve public key bundles by user identifier. A Fetch may
// return a bundle without one-time prekeys when the pool is exhausted.
// The core never sees transport details; cancellation and timeouts are
// whatever the concrete client's context carries.
type DirectoryClient interface {
	Upload(ctx context.Context, userID string, bundle PublicKeyBundle) error
	Fetch(ctx context.Context, userID string) (PublicKeyBundle, error)
}

// SecretStore persists raw private key material between restarts. The
// core treats it as an opaque byte-blob store keyed by tag; at-rest
// protection is the implementation's concern.
type SecretStore interface {
	Save(tag string, raw []byte) error
	// Load returns (nil, false, nil) when the tag does not exist.
	Load(tag string) ([]byte, bool, error)
	Delete(tag string) error
}
