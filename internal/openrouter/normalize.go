package openrouter

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/hitoshi/factcheck/internal/model"
)

// 解析できない応答に対するフォールバック値。
const (
	DegradedScore       = 50
	DegradedStatus      = "Analysis Incomplete"
	degradedDescription = "The AI response could not be parsed into a structured result. Please review the sources below or try again later."
)

// 部分的な応答に対するデフォルト値。
const (
	defaultStatus      = "Unknown"
	defaultDescription = "No description provided"
)

// stripFences はペイロード前後のコードフェンス（```json / ```）を除去する。
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// 言語指定（json等）を行末まで読み飛ばす
		if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.Contains(s[:i], "{") {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeObject はペイロードをJSONオブジェクトとしてデコードする。
// 直接デコードできない場合は最初の'{'から最後の'}'までを再試行する。
func decodeObject(payload string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err == nil && obj != nil {
		return obj, true
	}

	start := strings.IndexByte(payload, '{')
	end := strings.LastIndexByte(payload, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	obj = nil
	if err := json.Unmarshal([]byte(payload[start:end+1]), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// normalizeVerdict はAIの応答テキストと注釈からVerdictを組み立てる。
// 応答がJSONオブジェクトとして解釈できない場合は縮退Verdictを返し、エラーにはしない。
func normalizeVerdict(content string, annotations []json.RawMessage) *model.Verdict {
	obj, ok := decodeObject(stripFences(content))
	if !ok {
		return degradedVerdict(annotations)
	}

	v := &model.Verdict{
		Score:       0,
		Status:      defaultStatus,
		Description: defaultDescription,
		Issues:      []model.Issue{},
		Sources:     []model.Source{},
	}

	if raw, ok := obj["score"]; ok {
		v.Score = model.ClampScore(coerceScore(raw))
	}
	if s, ok := obj["status"].(string); ok {
		v.Status = s
	}
	if s, ok := obj["description"].(string); ok {
		v.Description = s
	}
	if list, ok := obj["issues"].([]any); ok {
		v.Issues = normalizeIssues(list)
	}
	if list, ok := obj["sources"].([]any); ok {
		v.Sources = normalizeSources(list)
	}
	if len(v.Sources) == 0 {
		v.Sources = annotationSources(annotations)
	}

	return v
}

func degradedVerdict(annotations []json.RawMessage) *model.Verdict {
	return &model.Verdict{
		Score:       DegradedScore,
		Status:      DegradedStatus,
		Description: degradedDescription,
		Issues:      []model.Issue{},
		Sources:     annotationSources(annotations),
		Degraded:    true,
	}
}

// coerceScore はscoreの値を整数に変換する。
// 数値は0方向に切り捨て、数値文字列は解析する。それ以外は0。
func coerceScore(raw any) int {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) {
		return 0
	}
	// intへの変換でオーバーフローしないよう先に範囲を丸める
	if f > float64(model.MaxScore) {
		return model.MaxScore
	}
	if f < float64(model.MinScore) {
		return model.MinScore
	}
	return int(math.Trunc(f))
}

func normalizeIssues(list []any) []model.Issue {
	issues := make([]model.Issue, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		issues = append(issues, model.Issue{
			Type:        stringField(m, "type"),
			Description: stringField(m, "description"),
			Suggestion:  stringField(m, "suggestion"),
		})
	}
	return issues
}

func normalizeSources(list []any) []model.Source {
	sources := make([]model.Source, 0, model.MaxSources)
	for _, item := range list {
		if len(sources) == model.MaxSources {
			break
		}
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if src, ok := validSource(stringField(m, "title"), stringField(m, "url")); ok {
			sources = append(sources, src)
		}
	}
	return sources
}

// annotation はOpenRouterのweb検索注釈。
// url_citationがネストされた形式と、title/urlがフラットな形式の両方を受け付ける。
type annotation struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	URLCitation *struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"url_citation"`
}

// annotationSources は注釈から有効な出典を最大MaxSources件取り出す。
func annotationSources(annotations []json.RawMessage) []model.Source {
	sources := make([]model.Source, 0)
	for _, raw := range annotations {
		if len(sources) == model.MaxSources {
			break
		}
		var a annotation
		if err := json.Unmarshal(raw, &a); err != nil {
			continue
		}
		title, url := a.Title, a.URL
		if a.URLCitation != nil {
			title, url = a.URLCitation.Title, a.URLCitation.URL
		}
		if src, ok := validSource(title, url); ok {
			sources = append(sources, src)
		}
	}
	return sources
}

// validSource はURLがhttp(s)で始まる場合のみ出典を返す。
// タイトルが空の場合はURLをタイトルとして使う。
func validSource(title, url string) (model.Source, bool) {
	url = strings.TrimSpace(url)
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return model.Source{}, false
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = url
	}
	return model.Source{Title: title, URL: url}, true
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
