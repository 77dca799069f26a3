package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/factcheck/internal/security"
)

// ErrFeedNotFound はURLがフィードでなく、HTMLにもフィードリンクがないことを表す。
var ErrFeedNotFound = errors.New("フィードが見つかりません")

// feedLink はHTMLの<link rel="alternate">から見つかったフィード候補。
type feedLink struct {
	href string
	atom bool
}

// Discoverer はFEED_URLSに指定されたURLをフィードURLに解決する。
// URLがフィードそのものでなければ、HTMLのheadからフィードリンクを探す。
type Discoverer struct {
	guard       security.URLGuard
	timeout     time.Duration
	maxBodySize int64
	logger      *slog.Logger
}

// NewDiscoverer はDiscovererを生成する。
func NewDiscoverer(guard security.URLGuard, timeout time.Duration, maxBodySize int64, logger *slog.Logger) *Discoverer {
	return &Discoverer{guard: guard, timeout: timeout, maxBodySize: maxBodySize, logger: logger}
}

// ResolveAll は各URLをフィードURLに解決し、重複を除いて返す。
// 解決できなかったURLは元のまま残し、フェッチ時の状態管理に任せる。
func (d *Discoverer) ResolveAll(ctx context.Context, rawURLs []string) []string {
	seen := make(map[string]bool, len(rawURLs))
	resolved := make([]string, 0, len(rawURLs))

	for _, raw := range rawURLs {
		feedURL, err := d.Discover(ctx, raw)
		if err != nil {
			d.logger.Warn("フィードURLの解決に失敗しました",
				slog.String("url", raw),
				slog.String("error", err.Error()),
			)
			feedURL = raw
		} else if feedURL != raw {
			d.logger.Info("フィードURLを検出しました",
				slog.String("url", raw),
				slog.String("feed_url", feedURL),
			)
		}

		if !seen[feedURL] {
			seen[feedURL] = true
			resolved = append(resolved, feedURL)
		}
	}
	return resolved
}

// Discover はURLがフィードであればそのまま返し、HTMLであればフィードリンクを返す。
func (d *Discoverer) Discover(ctx context.Context, rawURL string) (string, error) {
	if err := d.guard.ValidateURL(rawURL); err != nil {
		return "", fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "FactCheck/1.0 Feed Importer")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := d.guard.NewSafeClient(d.timeout).Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("予期しないHTTPステータス: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBodySize))
	if err != nil {
		return "", fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	if gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown {
		return rawURL, nil
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.Contains(mediaType, "html") {
		return "", ErrFeedNotFound
	}

	best := bestFeedLink(feedLinksInHead(body, resp.Request.URL), resp.Request.URL.Hostname())
	if best == "" {
		return "", ErrFeedNotFound
	}
	return best, nil
}

// feedLinksInHead はheadにあるRSS/Atomのalternateリンクを絶対URLにして返す。
func feedLinksInHead(body []byte, base *url.URL) []feedLink {
	var links []feedLink
	z := html.NewTokenizer(bytes.NewReader(body))

	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return links
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "body" {
				return links
			}
			if string(name) != "link" || !hasAttr {
				continue
			}

			attrs := make(map[string]string, 4)
			for more := true; more; {
				var k, v []byte
				k, v, more = z.TagAttr()
				attrs[strings.ToLower(string(k))] = string(v)
			}

			if !strings.EqualFold(attrs["rel"], "alternate") || attrs["href"] == "" {
				continue
			}
			linkType := strings.ToLower(attrs["type"])
			if linkType != "application/rss+xml" && linkType != "application/atom+xml" {
				continue
			}
			ref, err := url.Parse(attrs["href"])
			if err != nil {
				continue
			}
			links = append(links, feedLink{
				href: base.ResolveReference(ref).String(),
				atom: linkType == "application/atom+xml",
			})
		}
	}
}

// bestFeedLink は同一ホストのリンクを優先し、同条件ならAtomを、それでも同じなら先頭を選ぶ。
func bestFeedLink(links []feedLink, host string) string {
	best, bestScore := "", -1
	for _, l := range links {
		score := 0
		if u, err := url.Parse(l.href); err == nil && strings.EqualFold(u.Hostname(), host) {
			score += 2
		}
		if l.atom {
			score++
		}
		if score > bestScore {
			best, bestScore = l.href, score
		}
	}
	return best
}
