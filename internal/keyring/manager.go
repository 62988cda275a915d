package keyring

import (
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"sealchat/internal/crypto"
	"sealchat/internal/domain"
)

// Secret Store tags. Signed and one-time prekeys get one tag per ID so
// consumption is a single Delete.
const (
	tagIdentity   = "identity"
	tagSPKCurrent = "spk/current"
	tagSPKPrefix  = "spk/"
	tagOTKPrefix  = "otk/"
	tagOTKIndex   = "otk/index"
)

// DefaultOneTimePreKeyCount is the pool size generated at registration.
const DefaultOneTimePreKeyCount = 100

// Manager owns the account's key material on top of a Secret Store.
// Safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	store domain.SecretStore
}

// New returns a Manager backed by the given store.
func New(store domain.SecretStore) *Manager {
	return &Manager{store: store}
}

// GenerateIdentity creates and persists the long-term identity: an
// Ed25519 signing pair and an X25519 agreement pair. It fails only on
// RNG or store failure, both fatal for registration.
func (m *Manager) GenerateIdentity() (domain.IdentityKeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	signPriv, signPub, err := crypto.GenerateEd25519()
	if err != nil {
		return domain.IdentityKeyPair{}, fmt.Errorf("generate signing key: %w", err)
	}
	agreePriv, agreePub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.IdentityKeyPair{}, fmt.Errorf("generate agreement key: %w", err)
	}
	id := domain.IdentityKeyPair{
		SigningPub:    signPub,
		SigningPriv:   signPriv,
		AgreementPub:  agreePub,
		AgreementPriv: agreePriv,
	}
	if err := m.saveLocked(tagIdentity, id); err != nil {
		return domain.IdentityKeyPair{}, err
	}
	return id, nil
}

// Identity loads the persisted identity, or ErrNoIdentityKey.
func (m *Manager) Identity() (domain.IdentityKeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identityLocked()
}

func (m *Manager) identityLocked() (domain.IdentityKeyPair, error) {
	var id domain.IdentityKeyPair
	ok, err := m.loadLocked(tagIdentity, &id)
	if err != nil {
		return domain.IdentityKeyPair{}, err
	}
	if !ok || id.IsZero() {
		return domain.IdentityKeyPair{}, domain.ErrNoIdentityKey
	}
	return id, nil
}

// GenerateSignedPreKey creates a fresh signed prekey, signs its public
// key with the identity's Ed25519 key, persists it, and marks it
// current. The previous signed prekey stays loadable by ID so in-flight
// handshakes against the old bundle still resolve.
func (m *Manager) GenerateSignedPreKey() (domain.SignedPreKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.identityLocked()
	if err != nil {
		return domain.SignedPreKey{}, err
	}
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.SignedPreKey{}, fmt.Errorf("generate signed prekey: %w", err)
	}
	spk := domain.SignedPreKey{
		ID:        uuid.NewString(),
		Priv:      priv,
		Pub:       pub,
		Signature: crypto.SignEd25519(id.SigningPriv, pub.Slice()),
		CreatedAt: time.Now().Unix(),
	}
	if err := m.saveLocked(tagSPKPrefix+spk.ID, spk); err != nil {
		return domain.SignedPreKey{}, err
	}
	if err := m.store.Save(tagSPKCurrent, []byte(spk.ID)); err != nil {
		return domain.SignedPreKey{}, fmt.Errorf("mark current signed prekey: %w", err)
	}
	return spk, nil
}

// SignedPreKey loads a signed prekey by ID.
func (m *Manager) SignedPreKey(id string) (domain.SignedPreKey, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var spk domain.SignedPreKey
	ok, err := m.loadLocked(tagSPKPrefix+id, &spk)
	if err != nil || !ok {
		return domain.SignedPreKey{}, false, err
	}
	return spk, true, nil
}

// GenerateOneTimePreKeys creates count single-use prekeys with UUID
// identifiers and adds them to the pool.
func (m *Manager) GenerateOneTimePreKeys(count int) ([]domain.OneTimePreKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.otkIndexLocked()
	if err != nil {
		return nil, err
	}
	out := make([]domain.OneTimePreKey, 0, count)
	for i := 0; i < count; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return nil, fmt.Errorf("generate one-time prekey: %w", err)
		}
		otk := domain.OneTimePreKey{ID: uuid.NewString(), Priv: priv, Pub: pub}
		if err := m.saveLocked(tagOTKPrefix+otk.ID, otk); err != nil {
			return nil, err
		}
		index = append(index, otk.ID)
		out = append(out, otk)
	}
	if err := m.saveLocked(tagOTKIndex, index); err != nil {
		return nil, err
	}
	return out, nil
}

// ConsumeOneTimePreKey removes a prekey from the pool and returns it.
// A missing ID is not an error: the initiator may have raced another
// session onto the same prekey, or the pool was already drained.
func (m *Manager) ConsumeOneTimePreKey(id string) (domain.OneTimePreKey, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var otk domain.OneTimePreKey
	ok, err := m.loadLocked(tagOTKPrefix+id, &otk)
	if err != nil || !ok {
		return domain.OneTimePreKey{}, false, err
	}
	if err := m.store.Delete(tagOTKPrefix + id); err != nil {
		return domain.OneTimePreKey{}, false, fmt.Errorf("consume one-time prekey: %w", err)
	}
	index, err := m.otkIndexLocked()
	if err != nil {
		return domain.OneTimePreKey{}, false, err
	}
	for i, v := range index {
		if v == id {
			index = append(index[:i], index[i+1:]...)
			break
		}
	}
	if err := m.saveLocked(tagOTKIndex, index); err != nil {
		return domain.OneTimePreKey{}, false, err
	}
	return otk, true, nil
}

// RemainingOneTimePreKeys reports the pool size, so callers can notice
// a low pool. Replenishment policy lives outside the core.
func (m *Manager) RemainingOneTimePreKeys() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index, err := m.otkIndexLocked()
	if err != nil {
		return 0, err
	}
	return len(index), nil
}

// ExportPublicBundle assembles the bundle uploaded to the Directory
// Service: public halves only, never private material.
func (m *Manager) ExportPublicBundle(userID string) (domain.PublicKeyBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.identityLocked()
	if err != nil {
		return domain.PublicKeyBundle{}, err
	}
	rawID, ok, err := m.store.Load(tagSPKCurrent)
	if err != nil {
		return domain.PublicKeyBundle{}, err
	}
	if !ok {
		return domain.PublicKeyBundle{}, fmt.Errorf("%w: no current signed prekey", domain.ErrNoIdentityKey)
	}
	var spk domain.SignedPreKey
	ok, err = m.loadLocked(tagSPKPrefix+string(rawID), &spk)
	if err != nil {
		return domain.PublicKeyBundle{}, err
	}
	if !ok {
		return domain.PublicKeyBundle{}, fmt.Errorf("%w: current signed prekey missing", domain.ErrNoIdentityKey)
	}

	index, err := m.otkIndexLocked()
	if err != nil {
		return domain.PublicKeyBundle{}, err
	}
	publics := make([]domain.OneTimePreKeyPublic, 0, len(index))
	for _, otkID := range index {
		var otk domain.OneTimePreKey
		ok, err := m.loadLocked(tagOTKPrefix+otkID, &otk)
		if err != nil {
			return domain.PublicKeyBundle{}, err
		}
		if !ok {
			continue // consumed since the index was written
		}
		publics = append(publics, domain.OneTimePreKeyPublic{ID: otk.ID, Pub: otk.Pub})
	}

	return domain.PublicKeyBundle{
		UserID:               userID,
		IdentitySigningKey:   id.SigningPub,
		IdentityAgreementKey: id.AgreementPub,
		SignedPreKeyID:       spk.ID,
		SignedPreKey:         spk.Pub,
		SignedPreKeySig:      spk.Signature,
		OneTimePreKeys:       publics,
	}, nil
}

func (m *Manager) otkIndexLocked() ([]string, error) {
	var index []string
	if _, err := m.loadLocked(tagOTKIndex, &index); err != nil {
		return nil, err
	}
	return index, nil
}

func (m *Manager) saveLocked(tag string, v any) error {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", tag, err)
	}
	if err := m.store.Save(tag, raw); err != nil {
		return fmt.Errorf("save %s: %w", tag, err)
	}
	return nil
}

func (m *Manager) loadLocked(tag string, v any) (bool, error) {
	raw, ok, err := m.store.Load(tag)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", tag, err)
	}
	if !ok {
		return false, nil
	}
	if err := cbor.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", tag, err)
	}
	return true, nil
}
