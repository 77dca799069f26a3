// Package model はドメインモデルを定義する。
package model

import "time"

// FeedSource は検証対象記事の取り込み元となるRSS/Atomフィードを表す。
// FEED_URLSで指定されたURLごとに1行を持ち、条件付きGETとバックオフの状態を保持する。
type FeedSource struct {
	ID                string
	FeedURL           string
	SiteURL           string
	Title             string
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FetchStatus はフィードのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
)

// ParsedEntry はフィードパーサーから取得した未保存の記事データを表す。
// 取り込みワーカーがフィードをパースした後、SubjectImporterに渡される。
type ParsedEntry struct {
	GuidOrID    string
	Title       string
	Link        string
	Content     string // 未サニタイズのHTML
	PublishedAt *time.Time
}
