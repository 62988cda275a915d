// Package x3dh implements the asynchronous Extended Triple
// Diffie-Hellman key agreement that bootstraps a session from a peer's
// public key bundle, plus the signature check that gates it.
//
// Establishment only accepts a VerifiedBundle, which can be obtained
// solely through VerifyBundle; there is no code path that performs key
// agreement against an unverified bundle.
package x3dh
