// Package crypto exposes the primitives the protocol layers build on.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie-Hellman (GenerateX25519, DH)
//   - Ed25519 key generation, signing and verification
//   - AES-256-GCM authenticated encryption (SealAEAD, OpenAEAD)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// All functions work on the fixed-size array types in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets
// as sensitive and wipe them with memzero when done.
package crypto
