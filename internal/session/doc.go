// Package session owns the single active Session per peer. Each store
// entry carries its own lock: encrypt and decrypt calls for the same
// peer serialize behind it (arrival order at the lock, nothing more),
// while different peers proceed in parallel. Establishment is lazy
// (the first send to an unknown peer fetches and verifies the peer's
// bundle, the first receive consumes the handshake payload) and
// idempotent under contention. Ratchet state is persisted to the
// Secret Store after every successful encrypt and decrypt, so a
// conversation continues across process restarts.
package session
