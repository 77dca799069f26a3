package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hitoshi/factcheck/internal/model"
)

// maxResponseSize はAPIレスポンスとして読み込む最大バイト数。
const maxResponseSize = 1 << 20

// envelope はAPIの共通レスポンス形式。
type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Code      string          `json:"code"`
	Retryable bool            `json:"retryable"`
}

// HTTPTransport はHTTP API経由で検証リクエストを送信する。
// 偽造防止トークンをGET /tokenで取得して保持し、403を受けた場合は1回だけ取り直す。
type HTTPTransport struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	token string
}

// NewHTTPTransport はHTTPTransportを生成する。clientがnilの場合はhttp.DefaultClientを使用する。
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Verify はPOST /verifyを呼び出し、判定結果を返す。
func (t *HTTPTransport) Verify(ctx context.Context, subjectID string) (*model.Verdict, error) {
	verdict, err := t.verifyOnce(ctx, subjectID)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusForbidden {
		t.setToken("")
		verdict, err = t.verifyOnce(ctx, subjectID)
	}
	return verdict, err
}

func (t *HTTPTransport) verifyOnce(ctx context.Context, subjectID string) (*model.Verdict, error) {
	token, err := t.authToken(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("subject_id", subjectID)
	form.Set("auth_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/verify", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: envelopeMessage(env, decodeErr)}
	}
	if decodeErr != nil {
		return nil, &StatusError{StatusCode: http.StatusBadGateway, Message: "invalid response from server"}
	}
	if !env.Success {
		return nil, &EnvelopeError{Code: env.Code, Message: envelopeMessage(env, nil), Retryable: env.Retryable}
	}

	var verdict model.Verdict
	if err := json.Unmarshal(env.Data, &verdict); err != nil {
		return nil, &StatusError{StatusCode: http.StatusBadGateway, Message: "invalid response from server"}
	}
	return &verdict, nil
}

// authToken は保持しているトークンを返す。未取得の場合はGET /tokenで取得する。
func (t *HTTPTransport) authToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	token := t.token
	t.mu.Unlock()
	if token != "" {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/token", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Message: "failed to obtain auth token"}
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil || body.Token == "" {
		return "", &StatusError{StatusCode: http.StatusBadGateway, Message: "invalid token response"}
	}

	t.setToken(body.Token)
	return body.Token, nil
}

func (t *HTTPTransport) setToken(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

// envelopeMessage はエンベロープのdataが文字列であればそれを返す。
func envelopeMessage(env envelope, decodeErr error) string {
	if decodeErr != nil || len(env.Data) == 0 {
		return ""
	}
	var msg string
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return ""
	}
	return msg
}
