package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"sealchat/internal/crypto"
	"sealchat/internal/domain"
	"sealchat/internal/keyring"
	"sealchat/internal/protocol/ratchet"
	"sealchat/internal/protocol/x3dh"
)

const tagSessionPrefix = "session/"

// Store maps peer identifiers to their Session. Sessions are mutated in
// place under the entry lock and never copied out. Each session is also
// persisted to the Secret Store after every successful encrypt or
// decrypt, so ratchet state survives process restarts instead of
// re-establishing (and burning a one-time prekey) per invocation.
type Store struct {
	self    string
	keys    *keyring.Manager
	dir     domain.DirectoryClient
	secrets domain.SecretStore
	log     *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	sess *domain.Session

	// loaded marks that the Secret Store has been consulted for this
	// peer, so a missing record is only looked up once.
	loaded bool

	// handshake rides on outgoing messages until the peer's first
	// message proves its side of the session exists.
	handshake *domain.Handshake
}

// sessionRecord is the persisted form of an entry: the ratchet state
// plus the handshake still being replayed, if any.
type sessionRecord struct {
	Session   domain.Session    `json:"session"`
	Handshake *domain.Handshake `json:"handshake,omitempty"`
}

// New returns a Store for the local user self, persisting sessions
// through sec.
func New(self string, keys *keyring.Manager, dir domain.DirectoryClient, sec domain.SecretStore, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		self:    self,
		keys:    keys,
		dir:     dir,
		secrets: sec,
		log:     log,
		entries: make(map[string]*entry),
	}
}

// Encrypt seals plaintext for peer, establishing a session first if
// none exists. Calls for the same peer serialize on the entry lock.
func (s *Store) Encrypt(ctx context.Context, peer string, plaintext []byte) (domain.Message, error) {
	e := s.entryFor(peer)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.loadLocked(e, peer); err != nil {
		return domain.Message{}, err
	}
	if e.sess == nil {
		if err := s.establishInitiatorLocked(ctx, e, peer); err != nil {
			return domain.Message{}, err
		}
	}
	env, err := ratchet.Encrypt(e.sess, plaintext)
	if err != nil {
		return domain.Message{}, err
	}
	if err := s.persistLocked(e, peer); err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{
		From:      s.self,
		To:        peer,
		Envelope:  env,
		Timestamp: time.Now().Unix(),
	}
	if e.handshake != nil {
		hs := *e.handshake
		msg.Handshake = &hs
	}
	return msg, nil
}

// Decrypt opens a message from peer. A first message must carry the
// initiator's handshake payload; without a session and without one the
// call fails with ErrNoSession.
func (s *Store) Decrypt(peer string, msg domain.Message) ([]byte, error) {
	e := s.entryFor(peer)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.loadLocked(e, peer); err != nil {
		return nil, err
	}
	if e.sess == nil {
		if msg.Handshake == nil {
			return nil, fmt.Errorf("%w: no handshake payload from %q", domain.ErrNoSession, peer)
		}
		if err := s.establishResponderLocked(e, peer, *msg.Handshake); err != nil {
			return nil, err
		}
	}
	pt, err := ratchet.Decrypt(e.sess, msg.Envelope)
	if err != nil {
		return nil, err
	}
	// The peer demonstrably holds its side; stop replaying our handshake.
	e.handshake = nil
	if err := s.persistLocked(e, peer); err != nil {
		return nil, err
	}
	s.log.Debug("message decrypted",
		zap.String("peer", peer),
		zap.Uint32("counter", msg.Envelope.Counter),
		zap.String("ratchet_key", crypto.Fingerprint(msg.Envelope.RatchetPublicKey.Slice())))
	return pt, nil
}

// Has reports whether a session with peer exists, in memory or
// persisted.
func (s *Store) Has(peer string) bool {
	e := s.entryFor(peer)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.loadLocked(e, peer); err != nil {
		return false
	}
	return e.sess != nil
}

// Drop removes the session with peer, including its persisted record.
// Session teardown is a lifecycle event (logout, peer reset), not a
// protocol transition.
func (s *Store) Drop(peer string) error {
	s.mu.Lock()
	delete(s.entries, peer)
	s.mu.Unlock()
	return s.secrets.Delete(tagSessionPrefix + peer)
}

// loadLocked revives a persisted session into an empty entry. The
// Secret Store is consulted at most once per entry lifetime; a fresh
// peer simply has no record yet.
func (s *Store) loadLocked(e *entry, peer string) error {
	if e.loaded || e.sess != nil {
		return nil
	}
	e.loaded = true
	raw, ok, err := s.secrets.Load(tagSessionPrefix + peer)
	if err != nil {
		return fmt.Errorf("load session for %q: %w", peer, err)
	}
	if !ok {
		return nil
	}
	var rec sessionRecord
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("decode session for %q: %w", peer, err)
	}
	sess := rec.Session
	e.sess = &sess
	e.handshake = rec.Handshake
	return nil
}

// persistLocked writes the entry's current state. Skipping it would
// desync the persisted counters from messages already on the wire, so
// a write failure fails the operation.
func (s *Store) persistLocked(e *entry, peer string) error {
	raw, err := cbor.Marshal(sessionRecord{Session: *e.sess, Handshake: e.handshake})
	if err != nil {
		return fmt.Errorf("encode session for %q: %w", peer, err)
	}
	if err := s.secrets.Save(tagSessionPrefix+peer, raw); err != nil {
		return fmt.Errorf("save session for %q: %w", peer, err)
	}
	return nil
}

func (s *Store) entryFor(peer string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[peer]
	if !ok {
		e = &entry{}
		s.entries[peer] = e
	}
	return e
}

// establishInitiatorLocked runs X3DH as initiator. The caller holds the
// entry lock, so a concurrent establishment loser blocks here and then
// finds the committed session; its bundle fetch (and the one-time
// prekey it consumed server-side) is simply abandoned. A failed fetch
// leaves no partial session.
//
// The fetch itself also runs under the entry lock: encrypts to the
// same peer queue behind a slow directory round-trip, bounded only by
// ctx. Entries for other peers are independent and unaffected.
func (s *Store) establishInitiatorLocked(ctx context.Context, e *entry, peer string) error {
	id, err := s.keys.Identity()
	if err != nil {
		return err
	}
	bundle, err := s.dir.Fetch(ctx, peer)
	if err != nil {
		return fmt.Errorf("fetch bundle for %q: %w", peer, err)
	}
	verified, err := x3dh.VerifyBundle(bundle)
	if err != nil {
		return err
	}
	sess, hs, err := x3dh.EstablishAsInitiator(id, verified)
	if err != nil {
		return err
	}
	e.sess = sess
	e.handshake = &hs
	s.log.Info("session established",
		zap.String("peer", peer),
		zap.String("role", "initiator"),
		zap.Bool("one_time_prekey", hs.OneTimePreKeyID != ""))
	return nil
}

func (s *Store) establishResponderLocked(e *entry, peer string, hs domain.Handshake) error {
	id, err := s.keys.Identity()
	if err != nil {
		return err
	}
	spk, ok, err := s.keys.SignedPreKey(hs.SignedPreKeyID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown signed prekey %q", domain.ErrNoSession, hs.SignedPreKeyID)
	}
	var otkPriv *domain.X25519Private
	if hs.OneTimePreKeyID != "" {
		otk, ok, err := s.keys.ConsumeOneTimePreKey(hs.OneTimePreKeyID)
		if err != nil {
			return err
		}
		// A missing one-time prekey would desync the root; the initiator
		// committed to it, so we cannot proceed without the private half.
		if !ok {
			return fmt.Errorf("%w: one-time prekey %q already consumed", domain.ErrNoSession, hs.OneTimePreKeyID)
		}
		otkPriv = &otk.Priv
	}
	sess, err := x3dh.EstablishAsResponder(id, spk, otkPriv, peer, hs)
	if err != nil {
		return err
	}
	e.sess = sess
	s.log.Info("session established",
		zap.String("peer", peer),
		zap.String("role", "responder"),
		zap.Bool("one_time_prekey", otkPriv != nil))
	return nil
}
