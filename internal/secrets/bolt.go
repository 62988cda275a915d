package secrets

import (
	"crypto/rand"
	"fmt"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"sealchat/internal/domain"
	"sealchat/internal/util/memzero"
)

var secretsBucket = []byte("secrets")

const saltSize = 16

// Bolt is a Secret Store on a bbolt file. Each value is sealed
// independently: a fresh Argon2id salt and ChaCha20-Poly1305 nonce per
// write, so no two blobs share key material. Blob layout is
// salt || nonce || ciphertext.
type Bolt struct {
	db         *bolt.DB
	passphrase string
}

// OpenBolt opens (or creates) the store at path.
func OpenBolt(path, passphrase string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(secretsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init secret store: %w", err)
	}
	return &Bolt{db: db, passphrase: passphrase}, nil
}

// Close releases the underlying database.
func (s *Bolt) Close() error { return s.db.Close() }

// Save seals raw under the passphrase and writes it at tag.
func (s *Bolt) Save(tag string, raw []byte) error {
	blob, err := s.seal(raw)
	if err != nil {
		return fmt.Errorf("seal %s: %w", tag, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(secretsBucket).Put([]byte(tag), blob)
	})
}

// Load reads and unseals the blob at tag; ok is false when absent.
func (s *Bolt) Load(tag string) (raw []byte, ok bool, err error) {
	var blob []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(secretsBucket).Get([]byte(tag)); v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || blob == nil {
		return nil, false, err
	}
	raw, err = s.open(blob)
	if err != nil {
		return nil, false, fmt.Errorf("unseal %s: %w", tag, err)
	}
	return raw, true, nil
}

// Delete removes the blob at tag. Deleting a missing tag is a no-op.
func (s *Bolt) Delete(tag string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(secretsBucket).Delete([]byte(tag))
	})
}

func (s *Bolt) seal(raw []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	kek := deriveKEK(s.passphrase, salt)
	defer memzero.Zero(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	blob := make([]byte, 0, saltSize+len(nonce)+len(raw)+aead.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	return aead.Seal(blob, nonce, raw, salt), nil
}

func (s *Bolt) open(blob []byte) ([]byte, error) {
	if len(blob) < saltSize+chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("sealed blob too short")
	}
	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+chacha20poly1305.NonceSize]
	ct := blob[saltSize+chacha20poly1305.NonceSize:]

	kek := deriveKEK(s.passphrase, salt)
	defer memzero.Zero(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ct, salt)
}

// deriveKEK derives the key-encryption key from the passphrase with
// Argon2id.
func deriveKEK(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 1<<16, 4, chacha20poly1305.KeySize)
}

var _ domain.SecretStore = (*Bolt)(nil)
