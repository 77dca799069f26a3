package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/factcheck/internal/model"
)

type cacheKey struct {
	subjectID   string
	fingerprint string
}

// MemoryVerdictStore はプロセス内のマップを使用した判定結果キャッシュ。
// ローカル実行とテストで使用する。
type MemoryVerdictStore struct {
	mu      sync.Mutex
	entries map[cacheKey]model.CacheEntry
	now     func() time.Time
}

// NewMemoryVerdictStore はMemoryVerdictStoreを生成する。
func NewMemoryVerdictStore() *MemoryVerdictStore {
	return &MemoryVerdictStore{
		entries: make(map[cacheKey]model.CacheEntry),
		now:     time.Now,
	}
}

// Get は鮮度期間内のエントリを返す。ミスの場合はnilを返す。
func (s *MemoryVerdictStore) Get(_ context.Context, subjectID, fingerprint string) (*model.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[cacheKey{subjectID, fingerprint}]
	if !ok || !entry.IsFresh(s.now()) {
		return nil, nil
	}
	v := copyVerdict(entry.Verdict)
	return &v, nil
}

// Put はエントリを置き換え、作成時刻をリセットする。
func (s *MemoryVerdictStore) Put(_ context.Context, subjectID, fingerprint string, verdict *model.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[cacheKey{subjectID, fingerprint}] = model.CacheEntry{
		SubjectID:   subjectID,
		Fingerprint: fingerprint,
		Verdict:     copyVerdict(*verdict),
		CreatedAt:   s.now(),
	}
	return nil
}

// Len は保持しているエントリ数（期限切れを含む）を返す。
func (s *MemoryVerdictStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func copyVerdict(v model.Verdict) model.Verdict {
	v.Issues = append([]model.Issue(nil), v.Issues...)
	v.Sources = append([]model.Source(nil), v.Sources...)
	return v
}

// MemorySubjectRepo はプロセス内のマップを使用した記事リポジトリ。
// DATABASE_URL未設定時に使用する。
type MemorySubjectRepo struct {
	mu       sync.RWMutex
	subjects map[string]model.Subject
}

// NewMemorySubjectRepo はMemorySubjectRepoを生成する。
func NewMemorySubjectRepo() *MemorySubjectRepo {
	return &MemorySubjectRepo{subjects: make(map[string]model.Subject)}
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *MemorySubjectRepo) FindByID(_ context.Context, id string) (*model.Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subjects[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Upsert は記事を作成または更新する。
func (r *MemorySubjectRepo) Upsert(_ context.Context, s *model.Subject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if s.Source == "" {
		s.Source = model.SubjectSourceManual
	}
	if existing, ok := r.subjects[s.ID]; ok {
		s.CreatedAt = existing.CreatedAt
	} else {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	r.subjects[s.ID] = *s
	return nil
}

var (
	_ VerdictStore      = (*MemoryVerdictStore)(nil)
	_ SubjectRepository = (*MemorySubjectRepo)(nil)
)
