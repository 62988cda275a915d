package domain

import "errors"

// The core's error taxonomy. Cryptographic and format errors are never
// swallowed at this layer; callers branch with errors.Is and decide
// transport behaviour. Signature and authentication failures are
// terminal for the operation; there is no unauthenticated fallback.
var (
	// ErrNoIdentityKey means the local identity is missing or not
	// loaded. Recoverable by generating or loading an identity.
	ErrNoIdentityKey = errors.New("identity key not available")

	// ErrInvalidPublicKey means a bundle field is malformed. The bundle
	// must be rejected.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidSignature means the signed-prekey authenticity check
	// failed. Treated as a potential impersonation attempt; session
	// establishment hard-fails before any DH is computed.
	ErrInvalidSignature = errors.New("invalid signed prekey signature")

	// ErrNoSession means encrypt/decrypt was attempted with no
	// established session and establishment was not possible.
	ErrNoSession = errors.New("no session established with peer")

	// ErrInvalidMessage means an envelope is malformed, unparseable, or
	// violates the chain position (a counter behind the current one).
	ErrInvalidMessage = errors.New("invalid message envelope")

	// ErrDecryptionFailed means AEAD authentication failed: tampering
	// or key-state desync. Distinct from ErrInvalidMessage so callers
	// can tell "garbled/tampered" from "malformed request".
	ErrDecryptionFailed = errors.New("message decryption failed")
)
