package directory

import (
	"context"
	"fmt"
	"sync"

	"sealchat/internal/domain"
)

// Memory is an in-process directory. Fetch consumes one one-time prekey
// per call, mirroring directoryd: a consumed prekey is never served
// twice, and an empty pool is served as a bundle without one.
type Memory struct {
	mu      sync.Mutex
	bundles map[string]*domain.PublicKeyBundle
}

// NewMemory returns an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{bundles: make(map[string]*domain.PublicKeyBundle)}
}

func (d *Memory) Upload(_ context.Context, userID string, bundle domain.PublicKeyBundle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := bundle
	b.OneTimePreKeys = append([]domain.OneTimePreKeyPublic(nil), bundle.OneTimePreKeys...)
	d.bundles[userID] = &b
	return nil
}

func (d *Memory) Fetch(_ context.Context, userID string) (domain.PublicKeyBundle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	stored, ok := d.bundles[userID]
	if !ok {
		return domain.PublicKeyBundle{}, fmt.Errorf("directory: no bundle for %q", userID)
	}
	out := *stored
	if len(stored.OneTimePreKeys) > 0 {
		out.OneTimePreKeys = stored.OneTimePreKeys[:1:1]
		stored.OneTimePreKeys = stored.OneTimePreKeys[1:]
	} else {
		out.OneTimePreKeys = nil
	}
	return out, nil
}

var _ domain.DirectoryClient = (*Memory)(nil)
