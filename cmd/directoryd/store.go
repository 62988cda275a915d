package main

import (
	"context"
	"sync"

	"sealchat/internal/domain"
)

// store is the persistence surface behind the directory handlers. Fetching
// a bundle consumes at most one one-time prekey; draining a mailbox
// removes what it returns.
type store interface {
	PutBundle(ctx context.Context, user string, bundle domain.PublicKeyBundle) error
	GetBundle(ctx context.Context, user string) (domain.PublicKeyBundle, bool, error)
	PushMessage(ctx context.Context, user string, raw []byte) error
	DrainMessages(ctx context.Context, user string, limit int) ([][]byte, error)
}

type memoryStore struct {
	mu        sync.Mutex
	bundles   map[string]domain.PublicKeyBundle
	mailboxes map[string][][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		bundles:   make(map[string]domain.PublicKeyBundle),
		mailboxes: make(map[string][][]byte),
	}
}

func (m *memoryStore) PutBundle(_ context.Context, user string, bundle domain.PublicKeyBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[user] = bundle
	return nil
}

func (m *memoryStore) GetBundle(_ context.Context, user string) (domain.PublicKeyBundle, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.bundles[user]
	if !ok {
		return domain.PublicKeyBundle{}, false, nil
	}

	out := stored
	out.OneTimePreKeys = nil
	if len(stored.OneTimePreKeys) > 0 {
		out.OneTimePreKeys = stored.OneTimePreKeys[:1:1]
		stored.OneTimePreKeys = stored.OneTimePreKeys[1:]
		m.bundles[user] = stored
	}
	return out, true, nil
}

func (m *memoryStore) PushMessage(_ context.Context, user string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mailboxes[user] = append(m.mailboxes[user], raw)
	return nil
}

func (m *memoryStore) DrainMessages(_ context.Context, user string, limit int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queued := m.mailboxes[user]
	if limit <= 0 || limit > len(queued) {
		limit = len(queued)
	}
	out := queued[:limit:limit]
	rest := queued[limit:]
	if len(rest) == 0 {
		delete(m.mailboxes, user)
	} else {
		m.mailboxes[user] = rest
	}
	return out, nil
}
