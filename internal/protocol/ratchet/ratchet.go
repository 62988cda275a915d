package ratchet

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"sealchat/internal/crypto"
	"sealchat/internal/domain"
	"sealchat/internal/util/memzero"
)

const (
	labelRootRatchet  = "sealchat/root-ratchet"
	labelChainRatchet = "sealchat/chain-ratchet"
	labelMessageKey   = "sealchat/message-key"
	labelChainAdvance = "sealchat/chain-advance"
)

// maxSkipped bounds how far one envelope may advance the receiving
// chain. The counter is attacker-controlled and checked before the
// ciphertext authenticates, so without a cap a forged envelope buys up
// to 2^32 KDF steps under the session lock.
const maxSkipped = 1000

// Encrypt derives the next message key from the sending chain, advances
// the chain one step, and seals the plaintext with AES-256-GCM. The
// envelope header is authenticated as associated data.
func Encrypt(s *domain.Session, plaintext []byte) (domain.Envelope, error) {
	if len(s.SendingChainKey) == 0 {
		return domain.Envelope{}, fmt.Errorf("%w: sending chain uninitialised", domain.ErrNoSession)
	}

	mk := messageKey(s.SendingChainKey, s.SendingCounter)
	defer memzero.Zero(mk)

	// One-way step; the old chain key is unrecoverable from the new one.
	next := advanceChain(s.SendingChainKey)
	memzero.Zero(s.SendingChainKey)
	s.SendingChainKey = next
	s.SendingCounter++

	env := domain.Envelope{
		RatchetPublicKey: s.LocalRatchetPub,
		Counter:          s.SendingCounter,
		PreviousCounter:  s.PreviousSendingCounter,
	}
	ct, err := crypto.SealAEAD(mk, plaintext, headerAAD(env))
	if err != nil {
		return domain.Envelope{}, err
	}
	env.Ciphertext = ct
	return env, nil
}

// Decrypt opens one envelope, performing a DH ratchet step first when
// the peer's ratchet key changed and fast-advancing the receiving chain
// to the envelope's counter. Message keys for skipped positions are
// derived and discarded; they are not cached, so an envelope at or
// behind the current position fails hard with ErrInvalidMessage, as
// does one more than maxSkipped positions ahead.
//
// All state transitions run on a copy and commit only after the
// ciphertext authenticates: a forged envelope cannot advance or desync
// the session.
func Decrypt(s *domain.Session, env domain.Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	work := cloneSession(s)
	if env.RatchetPublicKey != work.RemoteRatchetPub {
		if err := ratchetStep(work, env.RatchetPublicKey); err != nil {
			zeroSession(work)
			return nil, err
		}
	}
	if len(work.ReceivingChainKey) == 0 {
		zeroSession(work)
		return nil, fmt.Errorf("%w: receiving chain uninitialised", domain.ErrNoSession)
	}
	if env.Counter <= work.ReceivingCounter {
		zeroSession(work)
		return nil, fmt.Errorf("%w: counter %d at or behind chain position %d",
			domain.ErrInvalidMessage, env.Counter, work.ReceivingCounter)
	}
	if env.Counter-work.ReceivingCounter > maxSkipped {
		zeroSession(work)
		return nil, fmt.Errorf("%w: counter %d skips more than %d messages past position %d",
			domain.ErrInvalidMessage, env.Counter, maxSkipped, work.ReceivingCounter)
	}

	var mk []byte
	for work.ReceivingCounter < env.Counter {
		if mk != nil {
			memzero.Zero(mk) // skipped position, key discarded
		}
		mk = messageKey(work.ReceivingChainKey, work.ReceivingCounter)
		next := advanceChain(work.ReceivingChainKey)
		memzero.Zero(work.ReceivingChainKey)
		work.ReceivingChainKey = next
		work.ReceivingCounter++
	}
	defer memzero.Zero(mk)

	pt, err := crypto.OpenAEAD(mk, env.Ciphertext, headerAAD(env))
	if err != nil {
		zeroSession(work)
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}

	zeroSession(s)
	*s = *work
	return pt, nil
}

// cloneSession copies the session deeply enough that mutating (or
// zeroing) the copy never touches the original's key material.
func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	c.RootKey = append([]byte(nil), s.RootKey...)
	c.SendingChainKey = append([]byte(nil), s.SendingChainKey...)
	c.ReceivingChainKey = append([]byte(nil), s.ReceivingChainKey...)
	return &c
}

func zeroSession(s *domain.Session) {
	memzero.Zero(s.RootKey)
	memzero.Zero(s.SendingChainKey)
	memzero.Zero(s.ReceivingChainKey)
	memzero.Zero(s.LocalRatchetPriv[:])
}

// ratchetStep runs when the peer advertises a ratchet key we have not
// seen. Two root advances happen, as in the classic double ratchet:
//
//  1. Receive half: rebase our receiving chain onto the root step the
//     peer performed when it rotated to newRemote. The DH uses our
//     current pair and the key the peer previously knew us by, which is
//     exactly the DH the peer computed. Skipped when the peer has never
//     advertised a key before (the responder's first receive keeps its
//     X3DH receiving chain).
//  2. Send half: advance the root again with the new remote key to seed
//     our next sending chain, then rotate to a fresh local pair. An
//     advertised ratchet pair is never reused.
func ratchetStep(s *domain.Session, newRemote domain.X25519Public) error {
	if !s.RemoteRatchetPub.IsZero() {
		dh, err := crypto.DH(s.LocalRatchetPriv, s.RemoteRatchetPub)
		if err != nil {
			return fmt.Errorf("%w: remote ratchet key", domain.ErrInvalidPublicKey)
		}
		s.RootKey = stepRoot(s.RootKey, dh[:])
		memzero.Zero(dh[:])
		memzero.Zero(s.ReceivingChainKey)
		s.ReceivingChainKey = deriveChain(s.RootKey)
		s.ReceivingCounter = 0
	}

	s.PreviousSendingCounter = s.SendingCounter
	s.SendingCounter = 0

	dh, err := crypto.DH(s.LocalRatchetPriv, newRemote)
	if err != nil {
		return fmt.Errorf("%w: new remote ratchet key", domain.ErrInvalidPublicKey)
	}
	s.RootKey = stepRoot(s.RootKey, dh[:])
	memzero.Zero(dh[:])
	memzero.Zero(s.SendingChainKey)
	s.SendingChainKey = deriveChain(s.RootKey)

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return fmt.Errorf("generate ratchet key: %w", err)
	}
	memzero.Zero(s.LocalRatchetPriv[:])
	s.LocalRatchetPriv, s.LocalRatchetPub = priv, pub
	s.RemoteRatchetPub = newRemote
	return nil
}

// stepRoot advances the root key with a DH output as salt. Only DH
// ratchet steps ever change the root.
func stepRoot(root, dh []byte) []byte {
	out := make([]byte, 32)
	r := hkdf.New(sha256.New, root, dh, []byte(labelRootRatchet))
	_, _ = io.ReadFull(r, out)
	memzero.Zero(root)
	return out
}

func deriveChain(root []byte) []byte {
	ck := make([]byte, 32)
	r := hkdf.New(sha256.New, root, nil, []byte(labelChainRatchet))
	_, _ = io.ReadFull(r, ck)
	return ck
}

// messageKey derives the per-message key, bound to the message's index
// in the chain so identical chain keys can never yield identical
// message keys.
func messageKey(ck []byte, index uint32) []byte {
	info := make([]byte, 0, len(labelMessageKey)+4)
	info = append(info, labelMessageKey...)
	info = binary.BigEndian.AppendUint32(info, index)
	mk := make([]byte, crypto.AEADKeySize)
	r := hkdf.New(sha256.New, ck, nil, info)
	_, _ = io.ReadFull(r, mk)
	return mk
}

// advanceChain is the one-way chain step.
func advanceChain(ck []byte) []byte {
	next := make([]byte, 32)
	r := hkdf.New(sha256.New, ck, nil, []byte(labelChainAdvance))
	_, _ = io.ReadFull(r, next)
	return next
}

// headerAAD binds the envelope header to the ciphertext.
func headerAAD(env domain.Envelope) []byte {
	aad := make([]byte, 32+4+4)
	copy(aad[:32], env.RatchetPublicKey.Slice())
	binary.BigEndian.PutUint32(aad[32:36], env.Counter)
	binary.BigEndian.PutUint32(aad[36:40], env.PreviousCounter)
	return aad
}
