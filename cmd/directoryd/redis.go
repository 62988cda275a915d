package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sealchat/internal/domain"
)

// redisStore keeps the static part of a bundle as a JSON value and the
// one-time prekey pool as a list, so a fetch can pop exactly one prekey
// atomically. Mailboxes are plain lists drained oldest first.
type redisStore struct {
	rdb *redis.Client
}

func newRedisStore(rdb *redis.Client) *redisStore {
	return &redisStore{rdb: rdb}
}

func bundleKey(user string) string  { return "bundle:" + user }
func opkKey(user string) string     { return "opks:" + user }
func mailboxKey(user string) string { return "mailbox:" + user }

func (r *redisStore) PutBundle(ctx context.Context, user string, bundle domain.PublicKeyBundle) error {
	opks := bundle.OneTimePreKeys
	bundle.OneTimePreKeys = nil

	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, bundleKey(user), raw, 0)
	pipe.Del(ctx, opkKey(user))
	for _, opk := range opks {
		rawOPK, err := json.Marshal(opk)
		if err != nil {
			return fmt.Errorf("marshal one-time prekey: %w", err)
		}
		pipe.RPush(ctx, opkKey(user), rawOPK)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store bundle: %w", err)
	}
	return nil
}

func (r *redisStore) GetBundle(ctx context.Context, user string) (domain.PublicKeyBundle, bool, error) {
	raw, err := r.rdb.Get(ctx, bundleKey(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PublicKeyBundle{}, false, nil
	}
	if err != nil {
		return domain.PublicKeyBundle{}, false, fmt.Errorf("load bundle: %w", err)
	}

	var bundle domain.PublicKeyBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return domain.PublicKeyBundle{}, false, fmt.Errorf("decode bundle: %w", err)
	}

	rawOPK, err := r.rdb.LPop(ctx, opkKey(user)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// Pool exhausted. The bundle is still served without a prekey.
	case err != nil:
		return domain.PublicKeyBundle{}, false, fmt.Errorf("pop one-time prekey: %w", err)
	default:
		var opk domain.OneTimePreKeyPublic
		if err := json.Unmarshal(rawOPK, &opk); err != nil {
			return domain.PublicKeyBundle{}, false, fmt.Errorf("decode one-time prekey: %w", err)
		}
		bundle.OneTimePreKeys = []domain.OneTimePreKeyPublic{opk}
	}
	return bundle, true, nil
}

func (r *redisStore) PushMessage(ctx context.Context, user string, raw []byte) error {
	if err := r.rdb.RPush(ctx, mailboxKey(user), raw).Err(); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

func (r *redisStore) DrainMessages(ctx context.Context, user string, limit int) ([][]byte, error) {
	key := mailboxKey(user)
	end := int64(-1)
	if limit > 0 {
		end = int64(limit) - 1
	}

	pipe := r.rdb.TxPipeline()
	rng := pipe.LRange(ctx, key, 0, end)
	if limit > 0 {
		pipe.LTrim(ctx, key, end+1, -1)
	} else {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("drain mailbox: %w", err)
	}

	vals := rng.Val()
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}
