// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code      string // エラーコード
	Message   string // エラーメッセージ
	Category  string // カテゴリ: config, validation, upstream, system
	Action    string // ユーザー向け対処方法
	Retryable bool   // クライアントが自動リトライしてよいか
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeConfig          = "CONFIG_ERROR"
	ErrCodeSubjectNotFound = "SUBJECT_NOT_FOUND"
	ErrCodeTransport       = "TRANSPORT_ERROR"
	ErrCodeUpstream        = "UPSTREAM_ERROR"
	ErrCodeInvalidToken    = "INVALID_TOKEN"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeRateLimited     = "RATE_LIMITED"
)

// NewConfigError はAPIキー未設定・機能無効時のエラーを生成する。
// メッセージは固定で、内部の設定内容は含めない。
func NewConfigError() *APIError {
	return &APIError{
		Code:     ErrCodeConfig,
		Message:  "Fact checker is not configured. Please contact the site administrator.",
		Category: "config",
		Action:   "Set OPENROUTER_API_KEY and enable the fact checker.",
	}
}

// NewSubjectNotFoundError は記事未検出エラーを生成する。
func NewSubjectNotFoundError(subjectID string) *APIError {
	return &APIError{
		Code:     ErrCodeSubjectNotFound,
		Message:  fmt.Sprintf("Post not found: %s", subjectID),
		Category: "validation",
		Action:   "Check the post identifier.",
	}
}

// NewTransportError はAIプロバイダへの通信失敗エラーを生成する。
func NewTransportError(reason string) *APIError {
	return &APIError{
		Code:      ErrCodeTransport,
		Message:   fmt.Sprintf("Analysis failed: API request failed: %s", reason),
		Category:  "upstream",
		Action:    "Please try again in a few moments.",
		Retryable: true,
	}
}

// NewUpstreamError はAIプロバイダが非成功ステータスを返した場合のエラーを生成する。
// 5xxのみリトライ可能とする。
func NewUpstreamError(status int, message string) *APIError {
	return &APIError{
		Code:      ErrCodeUpstream,
		Message:   fmt.Sprintf("Analysis failed: API Error (%d): %s", status, message),
		Category:  "upstream",
		Action:    "Please try again later.",
		Retryable: status >= 500,
	}
}

// NewInvalidTokenError は偽造防止トークンの検証失敗エラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Security check failed. Please reload the page.",
		Category: "validation",
		Action:   "Request a new token from /token.",
	}
}

// NewInvalidRequestError はリクエストパラメータ不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the request parameters.",
	}
}

// NewUnauthorizedError は管理APIの認証失敗エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Insufficient permissions",
		Category: "auth",
		Action:   "Provide a valid admin token.",
	}
}

// NewInternalError はストア障害など内部エラーを生成する。
// 詳細はログにのみ出力し、メッセージには含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:      ErrCodeInternal,
		Message:   "Analysis failed: internal error",
		Category:  "system",
		Action:    "Please try again later.",
		Retryable: true,
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:      ErrCodeRateLimited,
		Message:   "Too many requests. Please try again later.",
		Category:  "system",
		Action:    "Please wait and retry after the specified time.",
		Retryable: true,
	}
}
