package model

import "time"

const (
	// MinScore はスコアの下限。
	MinScore = 0
	// MaxScore はスコアの上限。
	MaxScore = 100
	// MaxSources は表示対象として保持する出典の最大件数。
	MaxSources = 8
	// FreshnessWindow はキャッシュエントリが有効とみなされる期間。
	FreshnessWindow = 24 * time.Hour
)

// Verdict はファクトチェック結果の正規化済み構造。
// JSONのフィールド名はウィジェットとクライアントが参照する公開フォーマット。
type Verdict struct {
	Score       int      `json:"score"`
	Status      string   `json:"status"`
	Description string   `json:"description"`
	Issues      []Issue  `json:"issues"`
	Sources     []Source `json:"sources"`

	// Degraded はAIの応答を解析できずフォールバック結果を返したことを示す。
	// キャッシュには保存されない。
	Degraded bool `json:"-"`
}

// Issue は記事中で見つかった問題点を表す。
type Issue struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// Source は検証に用いた出典を表す。
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// CacheEntry は(subject_id, fingerprint)に対する保存済みの判定結果。
type CacheEntry struct {
	SubjectID   string
	Fingerprint string
	Verdict     Verdict
	CreatedAt   time.Time
}

// IsFresh はエントリがnow時点で鮮度期間内かどうかを返す。
func (e *CacheEntry) IsFresh(now time.Time) bool {
	return now.Sub(e.CreatedAt) < FreshnessWindow
}

// ClampScore はスコアを[MinScore, MaxScore]に丸める。
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
