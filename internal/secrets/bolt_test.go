package secrets_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sealchat/internal/secrets"
)

func TestBolt_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")
	store, err := secrets.OpenBolt(path, "correct horse")
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Load("identity")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Save("identity", []byte("key material")))

	raw, ok, err := store.Load("identity")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("key material"), raw)

	require.NoError(t, store.Delete("identity"))
	_, ok, err = store.Load("identity")
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting a missing tag is a no-op.
	require.NoError(t, store.Delete("identity"))
}

func TestBolt_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")

	store, err := secrets.OpenBolt(path, "pass")
	require.NoError(t, err)
	require.NoError(t, store.Save("spk/current", []byte("abc")))
	require.NoError(t, store.Close())

	reopened, err := secrets.OpenBolt(path, "pass")
	require.NoError(t, err)
	defer reopened.Close()

	raw, ok, err := reopened.Load("spk/current")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("abc"), raw)
}

func TestBolt_WrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")

	store, err := secrets.OpenBolt(path, "right")
	require.NoError(t, err)
	require.NoError(t, store.Save("identity", []byte("key material")))
	require.NoError(t, store.Close())

	wrong, err := secrets.OpenBolt(path, "wrong")
	require.NoError(t, err)
	defer wrong.Close()

	_, _, err = wrong.Load("identity")
	require.Error(t, err)
}
