package semantic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisAPI interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps each canonical key's phrasings as one JSON value under
// "{prefix}{product}|{subtype}|{section}|{key}" and indexes the keys of a
// scope in a set.
type RedisStore struct {
	client redisAPI
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store over client. A zero ttl never expires.
func NewRedisStore(client redisAPI, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) indexKey(s Scope) string { return r.prefix + "scope:" + s.String() }

func (r *RedisStore) phraseKey(s Scope, canonical string) string {
	return r.prefix + "phrase:" + s.Key(canonical)
}

// Load returns every phrasing saved for s. A missing scope is empty.
func (r *RedisStore) Load(ctx context.Context, s Scope) ([]Phrase, error) {
	keys, err := r.client.SMembers(ctx, r.indexKey(s)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("semantic: redis index %s: %w", s, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.phraseKey(s, k)
	}
	vals, err := r.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("semantic: redis mget %s: %w", s, err)
	}

	var out []Phrase
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var ps []Phrase
		if err := json.Unmarshal([]byte(str), &ps); err != nil {
			return nil, fmt.Errorf("semantic: redis decode %s: %w", full[i], err)
		}
		out = append(out, ps...)
	}
	return out, nil
}

// Save replaces the phrasings of s.
func (r *RedisStore) Save(ctx context.Context, s Scope, phrases []Phrase) error {
	byKey := make(map[string][]Phrase)
	var order []string
	for _, p := range phrases {
		if _, ok := byKey[p.Key]; !ok {
			order = append(order, p.Key)
		}
		byKey[p.Key] = append(byKey[p.Key], p)
	}

	if old, err := r.client.SMembers(ctx, r.indexKey(s)).Result(); err == nil && len(old) > 0 {
		stale := make([]string, 0, len(old)+1)
		for _, k := range old {
			stale = append(stale, r.phraseKey(s, k))
		}
		stale = append(stale, r.indexKey(s))
		if err := r.client.Del(ctx, stale...).Err(); err != nil {
			return fmt.Errorf("semantic: redis clear %s: %w", s, err)
		}
	}

	members := make([]any, 0, len(order))
	for _, k := range order {
		data, err := json.Marshal(byKey[k])
		if err != nil {
			return fmt.Errorf("semantic: redis encode %s: %w", k, err)
		}
		if err := r.client.Set(ctx, r.phraseKey(s, k), data, r.ttl).Err(); err != nil {
			return fmt.Errorf("semantic: redis set %s: %w", s.Key(k), err)
		}
		members = append(members, k)
	}
	if len(members) == 0 {
		return nil
	}
	if err := r.client.SAdd(ctx, r.indexKey(s), members...).Err(); err != nil {
		return fmt.Errorf("semantic: redis index %s: %w", s, err)
	}
	return nil
}
