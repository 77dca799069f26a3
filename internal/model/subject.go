package model

import "time"

// SubjectSourceManual は管理APIから直接登録された記事のsource値。
const SubjectSourceManual = "manual"

// Subject はファクトチェックの対象となる記事を表す。
// ContentはHTMLを含む生の本文で、フィンガープリントはこの値から計算される。
type Subject struct {
	ID        string
	Title     string
	Link      string
	Content   string
	Source    string // "manual" または取り込み元フィードのURL
	CreatedAt time.Time
	UpdatedAt time.Time
}
