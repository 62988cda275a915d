package x3dh

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"sealchat/internal/crypto"
	"sealchat/internal/domain"
	"sealchat/internal/util/memzero"
)

// Derivation labels. The root label is distinct from every ratchet-time
// label so X3DH output can never collide with a ratchet derivation.
const (
	labelRoot           = "sealchat/x3dh-root"
	labelChainSending   = "sealchat/chain-sending"
	labelChainReceiving = "sealchat/chain-receiving"
)

// VerifiedBundle is a public key bundle whose signed-prekey signature
// has been checked. The zero value is useless: the only constructor is
// VerifyBundle.
type VerifiedBundle struct {
	bundle domain.PublicKeyBundle
}

// UserID returns the bundle owner's identifier.
func (v VerifiedBundle) UserID() string { return v.bundle.UserID }

// VerifyBundle validates the bundle's key material and checks the
// Ed25519 signature over the signed prekey. It must succeed before any
// DH is computed with the bundle.
func VerifyBundle(b domain.PublicKeyBundle) (VerifiedBundle, error) {
	if b.IdentitySigningKey.IsZero() || b.IdentityAgreementKey.IsZero() {
		return VerifiedBundle{}, fmt.Errorf("%w: missing identity key", domain.ErrInvalidPublicKey)
	}
	if b.SignedPreKey.IsZero() {
		return VerifiedBundle{}, fmt.Errorf("%w: missing signed prekey", domain.ErrInvalidPublicKey)
	}
	for _, otk := range b.OneTimePreKeys {
		if otk.Pub.IsZero() || otk.ID == "" {
			return VerifiedBundle{}, fmt.Errorf("%w: malformed one-time prekey", domain.ErrInvalidPublicKey)
		}
	}
	if !crypto.VerifyEd25519(b.IdentitySigningKey, b.SignedPreKey.Slice(), b.SignedPreKeySig) {
		return VerifiedBundle{}, fmt.Errorf("%w: signed prekey for %q", domain.ErrInvalidSignature, b.UserID)
	}
	return VerifiedBundle{bundle: b}, nil
}

// EstablishAsInitiator performs the initiator side of X3DH against a
// verified peer bundle and returns the fresh session together with the
// handshake payload the peer needs to mirror the computation.
//
// One-time prekey absence only weakens forward secrecy for the first
// message; it never fails the call.
func EstablishAsInitiator(id domain.IdentityKeyPair, peer VerifiedBundle) (*domain.Session, domain.Handshake, error) {
	if id.AgreementPriv.IsZero() {
		return nil, domain.Handshake{}, fmt.Errorf("%w: agreement key missing", domain.ErrNoIdentityKey)
	}
	b := peer.bundle

	ekPriv, ekPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, domain.Handshake{}, fmt.Errorf("generate ephemeral key: %w", err)
	}
	defer memzero.Zero(ekPriv[:])

	dh1, err := crypto.DH(id.AgreementPriv, b.SignedPreKey)
	if err != nil {
		return nil, domain.Handshake{}, fmt.Errorf("%w: signed prekey", domain.ErrInvalidPublicKey)
	}
	dh2, err := crypto.DH(ekPriv, b.IdentityAgreementKey)
	if err != nil {
		return nil, domain.Handshake{}, fmt.Errorf("%w: identity agreement key", domain.ErrInvalidPublicKey)
	}
	dh3, err := crypto.DH(ekPriv, b.SignedPreKey)
	if err != nil {
		return nil, domain.Handshake{}, fmt.Errorf("%w: signed prekey", domain.ErrInvalidPublicKey)
	}

	var oneTimeID string
	var dh4 *[32]byte
	if len(b.OneTimePreKeys) > 0 {
		otk := b.OneTimePreKeys[0]
		out, err := crypto.DH(ekPriv, otk.Pub)
		if err != nil {
			return nil, domain.Handshake{}, fmt.Errorf("%w: one-time prekey %q", domain.ErrInvalidPublicKey, otk.ID)
		}
		dh4 = &out
		oneTimeID = otk.ID
	}

	root := deriveRoot(dh1, dh2, dh3, dh4)
	sess, err := newSession(b.UserID, root, b.SignedPreKey)
	if err != nil {
		return nil, domain.Handshake{}, err
	}

	hs := domain.Handshake{
		InitiatorIdentityKey: id.AgreementPub,
		EphemeralKey:         ekPub,
		SignedPreKeyID:       b.SignedPreKeyID,
		OneTimePreKeyID:      oneTimeID,
	}
	return sess, hs, nil
}

// EstablishAsResponder mirrors the initiator's computation from the
// handshake payload of its first message. spk is the local signed
// prekey named by the handshake; otkPriv is the consumed one-time
// prekey, nil when the initiator used none.
func EstablishAsResponder(id domain.IdentityKeyPair, spk domain.SignedPreKey, otkPriv *domain.X25519Private, peerID string, hs domain.Handshake) (*domain.Session, error) {
	if id.AgreementPriv.IsZero() {
		return nil, fmt.Errorf("%w: agreement key missing", domain.ErrNoIdentityKey)
	}
	if hs.InitiatorIdentityKey.IsZero() || hs.EphemeralKey.IsZero() {
		return nil, fmt.Errorf("%w: handshake keys", domain.ErrInvalidPublicKey)
	}

	// Mirrors of DH1..DH4: each side contributes the private half it owns.
	dh1, err := crypto.DH(spk.Priv, hs.InitiatorIdentityKey)
	if err != nil {
		return nil, fmt.Errorf("%w: initiator identity key", domain.ErrInvalidPublicKey)
	}
	dh2, err := crypto.DH(id.AgreementPriv, hs.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("%w: initiator ephemeral key", domain.ErrInvalidPublicKey)
	}
	dh3, err := crypto.DH(spk.Priv, hs.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("%w: initiator ephemeral key", domain.ErrInvalidPublicKey)
	}

	var dh4 *[32]byte
	if otkPriv != nil {
		out, err := crypto.DH(*otkPriv, hs.EphemeralKey)
		if err != nil {
			return nil, fmt.Errorf("%w: initiator ephemeral key", domain.ErrInvalidPublicKey)
		}
		dh4 = &out
	}

	root := deriveRoot(dh1, dh2, dh3, dh4)

	// The responder's first ratchet pair is the signed prekey pair: its
	// public half is exactly what the initiator stored as our ratchet
	// key. The pair is replaced on the first ratchet step.
	sess := &domain.Session{
		Peer:             peerID,
		RootKey:          root,
		LocalRatchetPriv: spk.Priv,
		LocalRatchetPub:  spk.Pub,
	}
	// Mirrored labels: our sending chain is the initiator's receiving
	// chain and vice versa.
	sess.SendingChainKey = deriveChain(root, labelChainReceiving)
	sess.ReceivingChainKey = deriveChain(root, labelChainSending)
	return sess, nil
}

func newSession(peer string, root []byte, remoteRatchet domain.X25519Public) (*domain.Session, error) {
	// The ratchet pair reserved for the first DH ratchet step. It is a
	// fresh pair, not the X3DH ephemeral.
	rPriv, rPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("generate ratchet key: %w", err)
	}
	return &domain.Session{
		Peer:              peer,
		RootKey:           root,
		SendingChainKey:   deriveChain(root, labelChainSending),
		ReceivingChainKey: deriveChain(root, labelChainReceiving),
		LocalRatchetPriv:  rPriv,
		LocalRatchetPub:   rPub,
		RemoteRatchetPub:  remoteRatchet,
	}, nil
}

// deriveRoot stretches DH1‖DH2‖DH3[‖DH4] into the 32-byte root key.
// Fixed zero salt; the label separates this from ratchet derivations.
func deriveRoot(dh1, dh2, dh3 [32]byte, dh4 *[32]byte) []byte {
	ikm := make([]byte, 0, 4*32)
	ikm = append(ikm, dh1[:]...)
	ikm = append(ikm, dh2[:]...)
	ikm = append(ikm, dh3[:]...)
	if dh4 != nil {
		ikm = append(ikm, dh4[:]...)
	}
	defer memzero.Zero(ikm)
	memzero.Zero(dh1[:])
	memzero.Zero(dh2[:])
	memzero.Zero(dh3[:])
	if dh4 != nil {
		memzero.Zero(dh4[:])
	}

	salt := make([]byte, 32)
	root := make([]byte, 32)
	r := hkdf.New(sha256.New, ikm, salt, []byte(labelRoot))
	_, _ = io.ReadFull(r, root)
	return root
}

func deriveChain(root []byte, label string) []byte {
	ck := make([]byte, 32)
	r := hkdf.New(sha256.New, root, nil, []byte(label))
	_, _ = io.ReadFull(r, ck)
	return ck
}
