package ratchet_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"sealchat/internal/crypto"
	"sealchat/internal/domain"
	"sealchat/internal/protocol/ratchet"
	"sealchat/internal/protocol/x3dh"
)

// establishPair runs a real X3DH so the ratchet starts from the state an
// actual conversation would. The first session is the initiator's.
func establishPair(t *testing.T) (initiator, responder *domain.Session) {
	t.Helper()

	makeID := func() domain.IdentityKeyPair {
		signPriv, signPub, err := crypto.GenerateEd25519()
		require.NoError(t, err)
		agreePriv, agreePub, err := crypto.GenerateX25519()
		require.NoError(t, err)
		return domain.IdentityKeyPair{
			SigningPub: signPub, SigningPriv: signPriv,
			AgreementPub: agreePub, AgreementPriv: agreePriv,
		}
	}
	alice, bob := makeID(), makeID()

	spkPriv, spkPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	spk := domain.SignedPreKey{
		ID:        uuid.NewString(),
		Priv:      spkPriv,
		Pub:       spkPub,
		Signature: crypto.SignEd25519(bob.SigningPriv, spkPub.Slice()),
	}
	bundle := domain.PublicKeyBundle{
		UserID:               "bob",
		IdentitySigningKey:   bob.SigningPub,
		IdentityAgreementKey: bob.AgreementPub,
		SignedPreKeyID:       spk.ID,
		SignedPreKey:         spk.Pub,
		SignedPreKeySig:      spk.Signature,
	}

	verified, err := x3dh.VerifyBundle(bundle)
	require.NoError(t, err)
	aSess, hs, err := x3dh.EstablishAsInitiator(alice, verified)
	require.NoError(t, err)
	bSess, err := x3dh.EstablishAsResponder(bob, spk, nil, "alice", hs)
	require.NoError(t, err)
	return aSess, bSess
}

func roundTrip(t *testing.T, from, to *domain.Session, plaintext []byte) {
	t.Helper()
	env, err := ratchet.Encrypt(from, plaintext)
	require.NoError(t, err)
	got, err := ratchet.Decrypt(to, env)
	require.NoError(t, err)
	require.True(t, bytes.Equal(plaintext, got))
}

func TestRatchet_FirstMessage(t *testing.T) {
	alice, bob := establishPair(t)
	roundTrip(t, alice, bob, []byte("hello"))
}

func TestRatchet_PingPong(t *testing.T) {
	alice, bob := establishPair(t)

	for round := 0; round < 8; round++ {
		roundTrip(t, alice, bob, []byte(fmt.Sprintf("alice round %d", round)))
		roundTrip(t, bob, alice, []byte(fmt.Sprintf("bob round %d", round)))
	}

	// Every reply rotated the ratchet keys; none of the initial material
	// survives eight rounds.
	require.NotEqual(t, alice.LocalRatchetPub, bob.RemoteRatchetPub)
	require.Equal(t, bob.LocalRatchetPub, alice.RemoteRatchetPub)
}

func TestRatchet_UnansweredBurst(t *testing.T) {
	alice, bob := establishPair(t)
	roundTrip(t, alice, bob, []byte("hello"))
	roundTrip(t, bob, alice, []byte("hi back"))

	var envs []domain.Envelope
	for i := 0; i < 3; i++ {
		env, err := ratchet.Encrypt(alice, []byte(fmt.Sprintf("unanswered %d", i)))
		require.NoError(t, err)
		envs = append(envs, env)
	}
	// Same sending chain while nothing came back.
	require.Equal(t, envs[0].RatchetPublicKey, envs[2].RatchetPublicKey)
	require.Equal(t, uint32(1), envs[0].Counter)
	require.Equal(t, uint32(3), envs[2].Counter)

	for i, env := range envs {
		pt, err := ratchet.Decrypt(bob, env)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("unanswered %d", i), string(pt))
	}
}

func TestRatchet_SkippedMessagesAreLost(t *testing.T) {
	alice, bob := establishPair(t)

	first, err := ratchet.Encrypt(alice, []byte("one"))
	require.NoError(t, err)
	second, err := ratchet.Encrypt(alice, []byte("two"))
	require.NoError(t, err)
	third, err := ratchet.Encrypt(alice, []byte("three"))
	require.NoError(t, err)

	// Delivering only the third fast-advances the receiving chain past
	// the first two.
	pt, err := ratchet.Decrypt(bob, third)
	require.NoError(t, err)
	require.Equal(t, "three", string(pt))

	// Their keys were derived and discarded; late arrivals fail hard.
	_, err = ratchet.Decrypt(bob, first)
	require.ErrorIs(t, err, domain.ErrInvalidMessage)
	_, err = ratchet.Decrypt(bob, second)
	require.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestRatchet_ForgedCounterBounded(t *testing.T) {
	alice, bob := establishPair(t)

	env, err := ratchet.Encrypt(alice, []byte("genuine"))
	require.NoError(t, err)

	// A forged counter must be rejected as malformed before the chain
	// advances toward it, not ground through key derivations until the
	// auth tag finally fails.
	forged := env
	forged.Counter = 2_000_000
	_, err = ratchet.Decrypt(bob, forged)
	require.ErrorIs(t, err, domain.ErrInvalidMessage)

	// The genuine envelope still opens: the rejection left no trace.
	pt, err := ratchet.Decrypt(bob, env)
	require.NoError(t, err)
	require.Equal(t, "genuine", string(pt))
}

func TestRatchet_LargeLegitimateSkip(t *testing.T) {
	alice, bob := establishPair(t)

	var last domain.Envelope
	for i := 0; i < 900; i++ {
		env, err := ratchet.Encrypt(alice, []byte("burst"))
		require.NoError(t, err)
		last = env
	}
	pt, err := ratchet.Decrypt(bob, last)
	require.NoError(t, err)
	require.Equal(t, "burst", string(pt))

	// One past the skip bound is rejected.
	over, err := ratchet.Encrypt(alice, []byte("over"))
	require.NoError(t, err)
	over.Counter = bob.ReceivingCounter + 1001
	_, err = ratchet.Decrypt(bob, over)
	require.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestRatchet_ReplayRejected(t *testing.T) {
	alice, bob := establishPair(t)

	env, err := ratchet.Encrypt(alice, []byte("once"))
	require.NoError(t, err)
	_, err = ratchet.Decrypt(bob, env)
	require.NoError(t, err)

	_, err = ratchet.Decrypt(bob, env)
	require.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestRatchet_TamperingDetected(t *testing.T) {
	alice, bob := establishPair(t)

	env, err := ratchet.Encrypt(alice, []byte("untouched"))
	require.NoError(t, err)

	flipped := env
	flipped.Ciphertext = append([]byte(nil), env.Ciphertext...)
	flipped.Ciphertext[len(flipped.Ciphertext)/2] ^= 0x01
	_, err = ratchet.Decrypt(bob, flipped)
	require.ErrorIs(t, err, domain.ErrDecryptionFailed)

	// The header is authenticated too: a bumped counter changes both the
	// derived key and the associated data.
	bumped := env
	bumped.Counter += 3
	_, err = ratchet.Decrypt(bob, bumped)
	require.ErrorIs(t, err, domain.ErrDecryptionFailed)

	// The untouched original still opens.
	pt, err := ratchet.Decrypt(bob, env)
	require.NoError(t, err)
	require.Equal(t, "untouched", string(pt))
}

func TestRatchet_PayloadSizes(t *testing.T) {
	alice, bob := establishPair(t)

	big := make([]byte, 1<<20)
	for i := range big {
		big[i] = byte(i)
	}
	for _, pt := range [][]byte{
		{},
		{0x00},
		[]byte("héllo, wörld ✓"),
		big,
	} {
		roundTrip(t, alice, bob, pt)
	}
}

func TestRatchet_CiphertextsNeverRepeat(t *testing.T) {
	alice, _ := establishPair(t)

	seen := make(map[string]struct{})
	for i := 0; i < 10000; i++ {
		env, err := ratchet.Encrypt(alice, []byte("same plaintext"))
		require.NoError(t, err)
		_, dup := seen[string(env.Ciphertext)]
		require.False(t, dup, "duplicate ciphertext at message %d", i)
		seen[string(env.Ciphertext)] = struct{}{}
	}
}

func TestRatchet_EncryptWithoutSession(t *testing.T) {
	_, err := ratchet.Encrypt(&domain.Session{}, []byte("nope"))
	require.ErrorIs(t, err, domain.ErrNoSession)
}
