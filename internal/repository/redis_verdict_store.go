package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/factcheck/internal/model"
)

const redisKeyPrefix = "factcheck:verdict:"

// redisClient はRedisVerdictStoreが使用するgo-redisのコマンドのサブセット。
// *redis.Clientがこれを満たす。
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// redisEntry はRedisに保存するペイロード。
// TTLとは別にcreated_atを保持し、取得時にも鮮度を判定する。
type redisEntry struct {
	Verdict   model.Verdict `json:"verdict"`
	CreatedAt time.Time     `json:"created_at"`
}

// RedisVerdictStore はRedisを使用した判定結果キャッシュ。
type RedisVerdictStore struct {
	rdb redisClient
	now func() time.Time
}

// NewRedisClient はREDIS_URLからgo-redisクライアントを生成する。
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// NewRedisVerdictStore はRedisVerdictStoreを生成する。
func NewRedisVerdictStore(rdb redisClient) *RedisVerdictStore {
	return &RedisVerdictStore{rdb: rdb, now: time.Now}
}

func redisKey(subjectID, fingerprint string) string {
	return redisKeyPrefix + subjectID + ":" + fingerprint
}

// Get は鮮度期間内のエントリを返す。ミスの場合はnilを返す。
func (s *RedisVerdictStore) Get(ctx context.Context, subjectID, fingerprint string) (*model.Verdict, error) {
	raw, err := s.rdb.Get(ctx, redisKey(subjectID, fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キャッシュの取得に失敗しました: %w", err)
	}

	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("キャッシュのデコードに失敗しました: %w", err)
	}

	ce := model.CacheEntry{CreatedAt: entry.CreatedAt}
	if !ce.IsFresh(s.now()) {
		return nil, nil
	}
	return &entry.Verdict, nil
}

// Put はエントリを置き換え、TTLを鮮度期間にリセットする。
func (s *RedisVerdictStore) Put(ctx context.Context, subjectID, fingerprint string, verdict *model.Verdict) error {
	raw, err := json.Marshal(redisEntry{Verdict: *verdict, CreatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("判定結果のエンコードに失敗しました: %w", err)
	}

	if err := s.rdb.Set(ctx, redisKey(subjectID, fingerprint), raw, model.FreshnessWindow).Err(); err != nil {
		return fmt.Errorf("キャッシュの保存に失敗しました: %w", err)
	}
	return nil
}

var _ VerdictStore = (*RedisVerdictStore)(nil)
