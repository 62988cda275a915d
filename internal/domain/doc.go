// Package domain defines the types shared across the encryption core:
// key material, prekey bundles, ratchet sessions, wire envelopes, the
// error taxonomy, and the interfaces of the two external collaborators
// (Directory Service and Secret Store).
package domain
