package openrouter

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// MaxPromptWords はプロンプトに含める本文の最大語数。
const MaxPromptWords = 500

const ellipsis = "…"

// PlainText はHTMLからタグを除去したテキストを返す。
// script/style要素の中身は含めない。
func PlainText(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawTextTag(string(name)) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawTextTag(string(name)) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isRawTextTag(name string) bool {
	return name == "script" || name == "style"
}

// TrimWords はテキストを空白区切りでmaxWords語に切り詰める。
// 切り詰めた場合は末尾に省略記号を付ける。語間の空白は1つにまとめる。
func TrimWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + ellipsis
}

// PrepareContent は記事本文をプロンプト用のテキストに変換する。
func PrepareContent(content string) string {
	return TrimWords(PlainText(content), MaxPromptWords)
}

// buildPrompt はファクトチェック用のプロンプトを組み立てる。
func buildPrompt(content string, webSearchCount int) string {
	return fmt.Sprintf(`You are a fact-checking AI. Analyze the following article content and:
1. Identify any factual claims that can be verified
2. Rate the overall accuracy on a scale of 0-100
3. List any outdated, incorrect, or misleading information
4. Provide suggestions for improvement
5. Perform %d web searches to verify key facts

Article content:
%s

Please respond in JSON format with this structure:
{
    "score": 85,
    "status": "Mostly Accurate",
    "description": "Brief description of findings",
    "issues": [
        {
            "type": "Outdated Information",
            "description": "Description of the issue",
            "suggestion": "Suggested correction"
        }
    ],
    "sources": [
        {
            "title": "Source title",
            "url": "https://example.com"
        }
    ]
}`, webSearchCount, content)
}
