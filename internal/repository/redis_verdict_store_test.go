package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis はredisClientのテスト用実装。
type fakeRedis struct {
	data    map[string]string
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	setKeys []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = exp
	f.setKeys = append(f.setKeys, key)
	return redis.NewStatusResult("OK", nil)
}

func TestRedisVerdictStore_PutThenGet(t *testing.T) {
	rdb := newFakeRedis()
	store := NewRedisVerdictStore(rdb)
	ctx := context.Background()

	if err := store.Put(ctx, "42", "abc", sampleVerdict(70)); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	key := "factcheck:verdict:42:abc"
	if rdb.ttls[key] != 24*time.Hour {
		t.Errorf("ttl = %v, want 24h", rdb.ttls[key])
	}

	got, err := store.Get(ctx, "42", "abc")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil || got.Score != 70 {
		t.Errorf("got %+v, want score 70", got)
	}
	if len(got.Sources) != 1 || got.Sources[0].URL != "https://example.com" {
		t.Errorf("sources = %+v", got.Sources)
	}
}

func TestRedisVerdictStore_MissingKeyIsMiss(t *testing.T) {
	store := NewRedisVerdictStore(newFakeRedis())

	got, err := store.Get(context.Background(), "42", "abc")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Errorf("expected miss, got %+v", got)
	}
}

// TTLが残っていてもcreated_atが鮮度期間外ならミス
func TestRedisVerdictStore_StaleByCreatedAtIsMiss(t *testing.T) {
	rdb := newFakeRedis()
	store := NewRedisVerdictStore(rdb)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	_ = store.Put(ctx, "42", "abc", sampleVerdict(70))

	store.now = func() time.Time { return base.Add(25 * time.Hour) }
	got, err := store.Get(ctx, "42", "abc")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Error("expected stale entry to be a miss")
	}
}

func TestRedisVerdictStore_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")

	t.Run("get error", func(t *testing.T) {
		rdb := newFakeRedis()
		rdb.getErr = boom
		_, err := NewRedisVerdictStore(rdb).Get(ctx, "42", "abc")
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped %v", err, boom)
		}
	})

	t.Run("set error", func(t *testing.T) {
		rdb := newFakeRedis()
		rdb.setErr = boom
		err := NewRedisVerdictStore(rdb).Put(ctx, "42", "abc", sampleVerdict(1))
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped %v", err, boom)
		}
	})

	t.Run("corrupt payload", func(t *testing.T) {
		rdb := newFakeRedis()
		rdb.data["factcheck:verdict:42:abc"] = "not json"
		if _, err := NewRedisVerdictStore(rdb).Get(ctx, "42", "abc"); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	if _, err := NewRedisClient("not-a-url"); err == nil {
		t.Error("expected error for invalid redis url")
	}
}
