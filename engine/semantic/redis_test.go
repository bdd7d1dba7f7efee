package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis is a map-backed stand-in for the handful of commands the store
// issues.
type fakeRedis struct {
	kv     map[string]string
	sets   map[string][]string
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{kv: map[string]string{}, sets: map[string][]string{}}
}

func (f *fakeRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(append([]string(nil), f.sets[key]...), nil)
}

func (f *fakeRedis) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	for _, m := range members {
		f.sets[key] = append(f.sets[key], m.(string))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeRedis) MGet(_ context.Context, keys ...string) *redis.SliceCmd {
	out := make([]any, len(keys))
	for i, k := range keys {
		if v, ok := f.kv[k]; ok {
			out[i] = v
		}
	}
	return redis.NewSliceResult(out, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.kv[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.kv, k)
		delete(f.sets, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisStore_SaveLoad(t *testing.T) {
	fake := newFakeRedis()
	s := NewRedisStore(fake, "mkg:", 0)
	ctx := context.Background()

	phrases := []Phrase{
		{Key: "UE", Category: "Error Messages", Text: "ue error", Vector: []float32{1, 0}},
		{Key: "UE", Category: "Error Messages", Text: "unbalanced load", Vector: []float32{0.5, 0.5}},
		{Key: "IE", Category: "Error Messages", Text: "ie error", Vector: []float32{0, 1}},
	}
	if err := s.Save(ctx, testScope, phrases); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := fake.kv["mkg:phrase:washing machine||troubleshooting|UE"]; !ok {
		t.Fatalf("keys = %v", fake.kv)
	}

	got, err := s.Load(ctx, testScope)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d phrases", len(got))
	}

	// Saving again replaces the scope.
	if err := s.Save(ctx, testScope, phrases[2:]); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Load(ctx, testScope)
	if len(got) != 1 || got[0].Key != "IE" {
		t.Fatalf("after replace got %+v", got)
	}
}

func TestRedisStore_LoadMissing(t *testing.T) {
	s := NewRedisStore(newFakeRedis(), "mkg:", 0)
	got, err := s.Load(context.Background(), testScope)
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestRedisStore_SetError(t *testing.T) {
	fake := newFakeRedis()
	fake.setErr = errors.New("readonly")
	s := NewRedisStore(fake, "mkg:", time.Hour)
	if err := s.Save(context.Background(), testScope, []Phrase{{Key: "UE", Text: "ue"}}); err == nil {
		t.Fatal("expected error")
	}
}
