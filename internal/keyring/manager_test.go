package keyring_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sealchat/internal/domain"
	"sealchat/internal/keyring"
	"sealchat/internal/protocol/x3dh"
	"sealchat/internal/secrets"
)

func newManager(t *testing.T) *keyring.Manager {
	t.Helper()
	return keyring.New(secrets.NewMemory())
}

func TestIdentity_MissingThenPersisted(t *testing.T) {
	m := newManager(t)

	_, err := m.Identity()
	require.ErrorIs(t, err, domain.ErrNoIdentityKey)

	generated, err := m.GenerateIdentity()
	require.NoError(t, err)
	require.False(t, generated.IsZero())

	loaded, err := m.Identity()
	require.NoError(t, err)
	require.Equal(t, generated, loaded)
}

func TestSignedPreKey_RequiresIdentity(t *testing.T) {
	m := newManager(t)
	_, err := m.GenerateSignedPreKey()
	require.ErrorIs(t, err, domain.ErrNoIdentityKey)
}

func TestSignedPreKey_RotationKeepsOldLoadable(t *testing.T) {
	m := newManager(t)
	_, err := m.GenerateIdentity()
	require.NoError(t, err)

	old, err := m.GenerateSignedPreKey()
	require.NoError(t, err)
	current, err := m.GenerateSignedPreKey()
	require.NoError(t, err)
	require.NotEqual(t, old.ID, current.ID)

	// An in-flight handshake against the old bundle must still resolve.
	loaded, ok, err := m.SignedPreKey(old.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, old.Pub, loaded.Pub)

	bundle, err := m.ExportPublicBundle("alice")
	require.NoError(t, err)
	require.Equal(t, current.ID, bundle.SignedPreKeyID)
}

func TestOneTimePreKeys_ConsumeOnce(t *testing.T) {
	m := newManager(t)
	_, err := m.GenerateIdentity()
	require.NoError(t, err)

	otks, err := m.GenerateOneTimePreKeys(5)
	require.NoError(t, err)
	require.Len(t, otks, 5)

	ids := make(map[string]struct{})
	for _, otk := range otks {
		_, dup := ids[otk.ID]
		require.False(t, dup, "duplicate prekey id %q", otk.ID)
		ids[otk.ID] = struct{}{}
	}

	remaining, err := m.RemainingOneTimePreKeys()
	require.NoError(t, err)
	require.Equal(t, 5, remaining)

	consumed, ok, err := m.ConsumeOneTimePreKey(otks[2].ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, otks[2].Priv, consumed.Priv)

	// Single use: the second claim on the same prekey must lose.
	_, ok, err = m.ConsumeOneTimePreKey(otks[2].ID)
	require.NoError(t, err)
	require.False(t, ok)

	remaining, err = m.RemainingOneTimePreKeys()
	require.NoError(t, err)
	require.Equal(t, 4, remaining)
}

func TestExportPublicBundle_VerifiesAndOmitsConsumed(t *testing.T) {
	m := newManager(t)
	_, err := m.GenerateIdentity()
	require.NoError(t, err)
	_, err = m.GenerateSignedPreKey()
	require.NoError(t, err)
	otks, err := m.GenerateOneTimePreKeys(3)
	require.NoError(t, err)

	_, ok, err := m.ConsumeOneTimePreKey(otks[0].ID)
	require.NoError(t, err)
	require.True(t, ok)

	bundle, err := m.ExportPublicBundle("alice")
	require.NoError(t, err)
	require.Equal(t, "alice", bundle.UserID)
	require.Len(t, bundle.OneTimePreKeys, 2)
	for _, otk := range bundle.OneTimePreKeys {
		require.NotEqual(t, otks[0].ID, otk.ID)
	}

	// The exported bundle is exactly what a peer verifies.
	_, err = x3dh.VerifyBundle(bundle)
	require.NoError(t, err)
}
