// Package openrouter はOpenRouterのchat completions APIを使用した検証ゲートウェイを提供する。
// web検索付きでAIに記事を評価させ、応答をVerdictに正規化する。
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/factcheck/internal/metrics"
	"github.com/hitoshi/factcheck/internal/model"
)

const (
	// defaultEndpoint はOpenRouterのchat completionsエンドポイント。
	defaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

	verifyMaxTokens   = 4000
	verifyTemperature = 0.1
	pingMaxTokens     = 50
	pingMessage       = `Test connection. Please respond with "Connection successful".`

	// maxResponseSize はレスポンスボディの読み取り上限（4MB）。
	maxResponseSize = 4 << 20
)

// ErrInvalidResponse は疎通確認の応答にcontentが含まれていないことを表す。
var ErrInvalidResponse = errors.New("invalid API response format")

// Request は1件の検証リクエストのパラメータ。
type Request struct {
	APIKey            string
	Model             string
	Content           string // 記事の生の本文（HTML可）
	WebSearchCount    int
	SearchContextSize string
}

// Client はOpenRouter APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	endpoint   string // テスト用にエンドポイントを差し替え可能
	referer    string
	title      string
}

// NewClient はClientの新しいインスタンスを生成する。
// refererとtitleはHTTP-Referer/X-Titleヘッダとしてプロバイダに送られる。
// タイムアウトはhttpClientに設定されたものをそのまま使う。
func NewClient(httpClient *http.Client, logger *slog.Logger, mc metrics.MetricsCollector, referer, title string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    mc,
		endpoint:   defaultEndpoint,
		referer:    referer,
		title:      title,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type webSearchOptions struct {
	MaxResults        int    `json:"max_results"`
	SearchContextSize string `json:"search_context_size"`
}

type chatRequest struct {
	Model            string            `json:"model"`
	Messages         []chatMessage     `json:"messages"`
	MaxTokens        int               `json:"max_tokens"`
	Temperature      *float64          `json:"temperature,omitempty"`
	WebSearchOptions *webSearchOptions `json:"web_search_options,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content     json.RawMessage   `json:"content"`
			Annotations []json.RawMessage `json:"annotations"`
		} `json:"message"`
	} `json:"choices"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Verify は記事をAIに送り、正規化済みのVerdictを返す。
// 通信失敗は*TransportError、2xx以外は*UpstreamErrorを返す。
// 応答本文が解析できない場合はエラーにせず、Degradedが立ったVerdictを返す。
func (c *Client) Verify(ctx context.Context, req Request) (*model.Verdict, error) {
	temperature := verifyTemperature
	body := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(PrepareContent(req.Content), req.WebSearchCount)},
		},
		MaxTokens:   verifyMaxTokens,
		Temperature: &temperature,
		WebSearchOptions: &webSearchOptions{
			MaxResults:        req.WebSearchCount,
			SearchContextSize: req.SearchContextSize,
		},
	}

	raw, err := c.post(ctx, req.APIKey, body)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Choices) == 0 {
		c.logger.Warn("AI応答のエンベロープを解析できませんでした",
			slog.String("model", req.Model),
		)
		return degradedVerdict(nil), nil
	}

	msg := resp.Choices[0].Message
	var content string
	if err := json.Unmarshal(msg.Content, &content); err != nil {
		c.logger.Warn("AI応答にテキストcontentが含まれていません",
			slog.String("model", req.Model),
		)
		return degradedVerdict(msg.Annotations), nil
	}

	verdict := normalizeVerdict(content, msg.Annotations)
	if verdict.Degraded {
		c.logger.Warn("AI応答のJSONを解析できないため縮退結果を返します",
			slog.String("model", req.Model),
			slog.Int("content_length", len(content)),
		)
	}
	return verdict, nil
}

// TestConnection は短いリクエストでAPIキーとモデルの疎通を確認する。
func (c *Client) TestConnection(ctx context.Context, apiKey, modelName string) error {
	body := chatRequest{
		Model:     modelName,
		Messages:  []chatMessage{{Role: "user", Content: pingMessage}},
		MaxTokens: pingMaxTokens,
	}

	raw, err := c.post(ctx, apiKey, body)
	if err != nil {
		return err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Choices) == 0 || len(resp.Choices[0].Message.Content) == 0 {
		return ErrInvalidResponse
	}
	return nil
}

// post はリクエストを送信し、2xxの場合にレスポンスボディを返す。
func (c *Client) post(ctx context.Context, apiKey string, body chatRequest) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	c.metrics.RecordUpstreamLatency(time.Since(start))
	if err != nil {
		c.metrics.RecordUpstreamStatus(0)
		c.logger.Error("AIプロバイダの呼び出しに失敗しました",
			slog.String("model", body.Model),
			slog.String("error", err.Error()),
		)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RecordUpstreamStatus(resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := "Unknown error"
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
			message = env.Error.Message
		}
		c.logger.Error("AIプロバイダがエラーステータスを返しました",
			slog.String("model", body.Model),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", message),
		)
		return nil, &UpstreamError{Status: resp.StatusCode, Message: message}
	}

	return raw, nil
}
