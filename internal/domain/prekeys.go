package domain

// SignedPreKey is the rotating medium-term X25519 pair whose public key
// is signed by the identity's Ed25519 key. Exactly one is current at a
// time; rotation policy lives outside the core.
type SignedPreKey struct {
	ID        string        `json:"id"`
	Priv      X25519Private `json:"priv"`
	Pub       X25519Public  `json:"pub"`
	Signature []byte        `json:"signature"`
	CreatedAt int64         `json:"created_at"`
}

// OneTimePreKey is a single-use X25519 pair. Consumed at most once:
// after a session initiator uses it, the private half is deleted from
// the local pool and never served again.
type OneTimePreKey struct {
	ID   string        `json:"id"`
	Priv X25519Private `json:"priv"`
	Pub  X25519Public  `json:"pub"`
}

// OneTimePreKeyPublic is the public half published in bundles.
type OneTimePreKeyPublic struct {
	ID  string       `json:"id"`
	Pub X25519Public `json:"pub"`
}

// PublicKeyBundle is everything the Directory Service holds for a user.
// It carries no private material. One-time prekeys may be absent when
// the pool is exhausted; that is a normal condition, not an error.
type PublicKeyBundle struct {
	UserID               string                `json:"user_id"`
	IdentitySigningKey   Ed25519Public         `json:"identity_signing_key"`
	IdentityAgreementKey X25519Public          `json:"identity_agreement_key"`
	SignedPreKeyID       string                `json:"signed_pre_key_id"`
	SignedPreKey         X25519Public          `json:"signed_pre_key"`
	SignedPreKeySig      []byte                `json:"signed_pre_key_sig"`
	OneTimePreKeys       []OneTimePreKeyPublic `json:"one_time_pre_keys,omitempty"`
}

// Handshake carries the initiator's X3DH parameters so the responder
// can derive the same session. It rides along with outgoing messages
// until the peer's first reply proves the session is established.
type Handshake struct {
	InitiatorIdentityKey X25519Public `json:"initiator_identity_key"`
	EphemeralKey         X25519Public `json:"ephemeral_key"`
	SignedPreKeyID       string       `json:"signed_pre_key_id"`
	OneTimePreKeyID      string       `json:"one_time_pre_key_id,omitempty"`
}
