package domain

// IdentityKeyPair holds the long-term keys of an account: an Ed25519
// pair that authenticates the signed prekey and an X25519 pair used for
// Diffie-Hellman during session establishment. Created once at account
// registration and never rotated. Private halves live in the Secret
// Store only.
type IdentityKeyPair struct {
	SigningPub    Ed25519Public  `json:"signing_pub"`
	SigningPriv   Ed25519Private `json:"signing_priv"`
	AgreementPub  X25519Public   `json:"agreement_pub"`
	AgreementPriv X25519Private  `json:"agreement_priv"`
}

// IsZero reports whether the identity has not been generated or loaded.
func (id IdentityKeyPair) IsZero() bool {
	return id.AgreementPriv.IsZero() && id.SigningPub.IsZero()
}
