package x3dh_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"sealchat/internal/crypto"
	"sealchat/internal/domain"
	"sealchat/internal/protocol/x3dh"
)

func makeIdentity(t *testing.T) domain.IdentityKeyPair {
	t.Helper()
	signPriv, signPub, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	agreePriv, agreePub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	return domain.IdentityKeyPair{
		SigningPub:    signPub,
		SigningPriv:   signPriv,
		AgreementPub:  agreePub,
		AgreementPriv: agreePriv,
	}
}

// makeBundle builds a signed bundle for id, returning the private halves
// the responder side needs.
func makeBundle(t *testing.T, user string, id domain.IdentityKeyPair, withOTK bool) (domain.PublicKeyBundle, domain.SignedPreKey, *domain.OneTimePreKey) {
	t.Helper()
	spkPriv, spkPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	spk := domain.SignedPreKey{
		ID:        uuid.NewString(),
		Priv:      spkPriv,
		Pub:       spkPub,
		Signature: crypto.SignEd25519(id.SigningPriv, spkPub.Slice()),
	}
	bundle := domain.PublicKeyBundle{
		UserID:               user,
		IdentitySigningKey:   id.SigningPub,
		IdentityAgreementKey: id.AgreementPub,
		SignedPreKeyID:       spk.ID,
		SignedPreKey:         spk.Pub,
		SignedPreKeySig:      spk.Signature,
	}
	var otk *domain.OneTimePreKey
	if withOTK {
		otkPriv, otkPub, err := crypto.GenerateX25519()
		require.NoError(t, err)
		otk = &domain.OneTimePreKey{ID: uuid.NewString(), Priv: otkPriv, Pub: otkPub}
		bundle.OneTimePreKeys = []domain.OneTimePreKeyPublic{{ID: otk.ID, Pub: otk.Pub}}
	}
	return bundle, spk, otk
}

func TestEstablish_SymmetricWithOneTimePreKey(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)
	bundle, spk, otk := makeBundle(t, "bob", bob, true)

	verified, err := x3dh.VerifyBundle(bundle)
	require.NoError(t, err)

	aSess, hs, err := x3dh.EstablishAsInitiator(alice, verified)
	require.NoError(t, err)
	require.Equal(t, spk.ID, hs.SignedPreKeyID)
	require.Equal(t, otk.ID, hs.OneTimePreKeyID)
	require.Equal(t, alice.AgreementPub, hs.InitiatorIdentityKey)
	require.False(t, hs.EphemeralKey.IsZero())

	bSess, err := x3dh.EstablishAsResponder(bob, spk, &otk.Priv, "alice", hs)
	require.NoError(t, err)

	require.Equal(t, aSess.RootKey, bSess.RootKey)
	require.Equal(t, aSess.SendingChainKey, bSess.ReceivingChainKey)
	require.Equal(t, aSess.ReceivingChainKey, bSess.SendingChainKey)

	// The initiator pins the peer's signed prekey as the remote ratchet
	// key; the responder holds the matching private half.
	require.Equal(t, spk.Pub, aSess.RemoteRatchetPub)
	require.Equal(t, spk.Pub, bSess.LocalRatchetPub)
	require.True(t, bSess.RemoteRatchetPub.IsZero())
}

func TestEstablish_SymmetricWithoutOneTimePreKey(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)
	bundle, spk, _ := makeBundle(t, "bob", bob, false)

	verified, err := x3dh.VerifyBundle(bundle)
	require.NoError(t, err)

	aSess, hs, err := x3dh.EstablishAsInitiator(alice, verified)
	require.NoError(t, err)
	require.Empty(t, hs.OneTimePreKeyID)

	bSess, err := x3dh.EstablishAsResponder(bob, spk, nil, "alice", hs)
	require.NoError(t, err)

	require.Equal(t, aSess.RootKey, bSess.RootKey)
	require.Equal(t, aSess.SendingChainKey, bSess.ReceivingChainKey)
	require.Equal(t, aSess.ReceivingChainKey, bSess.SendingChainKey)
}

func TestEstablish_FreshKeysPerSession(t *testing.T) {
	alice := makeIdentity(t)
	bob := makeIdentity(t)
	bundle, _, _ := makeBundle(t, "bob", bob, false)

	verified, err := x3dh.VerifyBundle(bundle)
	require.NoError(t, err)

	s1, hs1, err := x3dh.EstablishAsInitiator(alice, verified)
	require.NoError(t, err)
	s2, hs2, err := x3dh.EstablishAsInitiator(alice, verified)
	require.NoError(t, err)

	// A fresh ephemeral per establishment means fresh secrets.
	require.NotEqual(t, hs1.EphemeralKey, hs2.EphemeralKey)
	require.NotEqual(t, s1.RootKey, s2.RootKey)
	require.NotEqual(t, s1.LocalRatchetPub, s2.LocalRatchetPub)
}

func TestVerifyBundle_TamperedSignature(t *testing.T) {
	bob := makeIdentity(t)
	bundle, _, _ := makeBundle(t, "bob", bob, true)
	bundle.SignedPreKeySig[0] ^= 0x01

	_, err := x3dh.VerifyBundle(bundle)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyBundle_WrongSigningKey(t *testing.T) {
	bob := makeIdentity(t)
	mallory := makeIdentity(t)
	bundle, _, _ := makeBundle(t, "bob", bob, false)
	bundle.IdentitySigningKey = mallory.SigningPub

	_, err := x3dh.VerifyBundle(bundle)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyBundle_MalformedKeys(t *testing.T) {
	bob := makeIdentity(t)

	missingIdentity, _, _ := makeBundle(t, "bob", bob, false)
	missingIdentity.IdentityAgreementKey = domain.X25519Public{}
	_, err := x3dh.VerifyBundle(missingIdentity)
	require.ErrorIs(t, err, domain.ErrInvalidPublicKey)

	missingSPK, _, _ := makeBundle(t, "bob", bob, false)
	missingSPK.SignedPreKey = domain.X25519Public{}
	_, err = x3dh.VerifyBundle(missingSPK)
	require.ErrorIs(t, err, domain.ErrInvalidPublicKey)

	badOTK, _, _ := makeBundle(t, "bob", bob, true)
	badOTK.OneTimePreKeys[0].Pub = domain.X25519Public{}
	_, err = x3dh.VerifyBundle(badOTK)
	require.ErrorIs(t, err, domain.ErrInvalidPublicKey)
}

func TestEstablish_NoIdentity(t *testing.T) {
	bob := makeIdentity(t)
	bundle, spk, _ := makeBundle(t, "bob", bob, false)

	verified, err := x3dh.VerifyBundle(bundle)
	require.NoError(t, err)

	_, _, err = x3dh.EstablishAsInitiator(domain.IdentityKeyPair{}, verified)
	require.ErrorIs(t, err, domain.ErrNoIdentityKey)

	_, err = x3dh.EstablishAsResponder(domain.IdentityKeyPair{}, spk, nil, "alice", domain.Handshake{})
	require.ErrorIs(t, err, domain.ErrNoIdentityKey)
}
