package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/factcheck/internal/config"
	"github.com/hitoshi/factcheck/internal/database"
	"github.com/hitoshi/factcheck/internal/handler"
	"github.com/hitoshi/factcheck/internal/repository"
)

const storeConnectTimeout = 10 * time.Second

// stores はRESULT_STOREとDATABASE_URLから選択した永続化層。
// DATABASE_URLが設定されていれば記事は常にPostgreSQLに保存する。
type stores struct {
	db       *sql.DB
	rdb      *redis.Client
	subjects repository.SubjectRepository
	verdicts repository.VerdictStore
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}

	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL, storeConnectTimeout)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.subjects = repository.NewPostgresSubjectRepo(db)
		slog.Info("database connection established")
	} else {
		s.subjects = repository.NewMemorySubjectRepo()
		slog.Warn("DATABASE_URL is not set; subjects are kept in memory")
	}

	switch cfg.ResultStore {
	case config.StorePostgres:
		s.verdicts = repository.NewPostgresVerdictStore(s.db)
	case config.StoreRedis:
		rdb, err := repository.NewRedisClient(cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			s.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.rdb = rdb
		s.verdicts = repository.NewRedisVerdictStore(rdb)
		slog.Info("redis connection established")
	default:
		s.verdicts = repository.NewMemoryVerdictStore()
	}

	slog.Info("result store selected", slog.String("store", cfg.ResultStore))
	return s, nil
}

// healthChecker は/healthで疎通確認する対象を返す。DBを使わない場合はnil。
func (s *stores) healthChecker() handler.HealthChecker {
	if s.db == nil {
		return nil
	}
	return s.db
}

func (s *stores) Close() error {
	var errs []error
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
