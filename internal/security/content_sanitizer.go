package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はフィードから取り込む記事のHTMLを保存前に無害化する。
// 本文は検証プロンプトとウィジェットの両方で使われるため、文章構造のタグだけを残す。
type ContentSanitizer interface {
	// Sanitize は本文HTMLを許可リストのタグのみに絞り込む。
	Sanitize(rawHTML string) string
	// SanitizeTitle はタグを全て除去したプレーンテキストのタイトルを返す。
	SanitizeTitle(rawTitle string) string
}

type contentSanitizer struct {
	body  *bluemonday.Policy
	title *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
//
// 本文ポリシー:
//   - 段落・見出し・リスト・引用・表・強調・コードを許可
//   - aはhttp(s)の絶対URLのみ許可し、rel="nofollow noreferrer"を付与
//   - img, iframe, script, styleとon*属性は除去
func NewContentSanitizer() ContentSanitizer {
	body := bluemonday.NewPolicy()
	body.AllowElements(
		"p", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "blockquote", "q", "cite",
		"pre", "code", "strong", "em", "b", "i",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	body.AllowAttrs("href").OnElements("a")
	body.AllowURLSchemes("http", "https")
	body.AllowRelativeURLs(false)
	body.RequireNoFollowOnLinks(true)
	body.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		body:  body,
		title: bluemonday.StrictPolicy(),
	}
}

func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.body.Sanitize(rawHTML))
}

// StrictPolicyはエンティティをエスケープしたまま返すため、保存前にデコードする。
// 表示時はhtml/templateが再度エスケープする。
func (s *contentSanitizer) SanitizeTitle(rawTitle string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s.title.Sanitize(rawTitle))), " ")
}
