// Package ratchet implements the double-ratchet message cipher on top
// of an established session: a per-message symmetric chain step for
// forward secrecy and a DH ratchet step whenever the peer advertises a
// new ratchet key.
//
// There is no skipped-message-key cache. The receiving chain can only
// fast-advance; an envelope whose counter sits at or behind the current
// chain position is rejected outright.
package ratchet
