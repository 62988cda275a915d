package domain

// Session is the mutable double-ratchet state for one peer. It is owned
// by the session store entry for that peer and mutated in place under
// the entry's lock; it is never copied in and out of the store and
// never shared between peers.
//
// Invariants: chain keys only ever advance forward through a one-way
// KDF, and RootKey changes only through a DH ratchet step.
type Session struct {
	Peer string `json:"peer"`

	RootKey           []byte `json:"root_key"`
	SendingChainKey   []byte `json:"sending_chain_key"`
	ReceivingChainKey []byte `json:"receiving_chain_key"`

	// SendingCounter and ReceivingCounter count messages within the
	// current chains. PreviousSendingCounter is the length of the prior
	// sending chain, carried in envelopes so the peer can detect
	// stragglers from before the last ratchet.
	SendingCounter         uint32 `json:"sending_counter"`
	ReceivingCounter       uint32 `json:"receiving_counter"`
	PreviousSendingCounter uint32 `json:"previous_sending_counter"`

	// LocalRatchetPriv/Pub is the pair whose public half we advertise;
	// it is rotated on every DH ratchet step. RemoteRatchetPub is the
	// last ratchet key seen from the peer; a mismatch on receipt
	// triggers a ratchet step. Zero until the peer's first message.
	LocalRatchetPriv X25519Private `json:"local_ratchet_priv"`
	LocalRatchetPub  X25519Public  `json:"local_ratchet_pub"`
	RemoteRatchetPub X25519Public  `json:"remote_ratchet_pub"`
}
