// Package client はファクトチェックAPIを呼び出すクライアント側のリクエスト制御を提供する。
// 対象ごとに進行中のリクエストを1つに制限し、タイムアウト、キャンセル、
// 一時的な失敗に対する有限回の自動リトライを行う。
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/factcheck/internal/model"
)

// State は対象ごとのリクエスト状態。
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText は状態名を返す。JSON出力で文字列として扱うために使用する。
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrorKind は失敗の種別。
type ErrorKind string

const (
	KindNone     ErrorKind = ""
	KindTimeout  ErrorKind = "timeout"
	KindNetwork  ErrorKind = "network"
	KindServer   ErrorKind = "server"
	KindRejected ErrorKind = "rejected"
)

const (
	// MessageTimeout はタイムアウト時に表示するメッセージ。
	MessageTimeout = "Analysis timed out. The web search may have taken too long. Please try again."
	// MessageGeneric はサーバーからメッセージが得られなかった失敗時のメッセージ。
	MessageGeneric = "Analysis failed. Please try again."
)

// Result は1対象のリクエスト結果。
type Result struct {
	SubjectID string         `json:"subject_id"`
	State     State          `json:"state"`
	Verdict   *model.Verdict `json:"verdict,omitempty"`
	Err       error          `json:"-"`
	Kind      ErrorKind      `json:"kind,omitempty"`
	Attempt   int            `json:"attempt"`
	FromCache bool           `json:"from_cache"`
}

// Message はユーザーに表示するエラーメッセージを返す。成功時は空文字。
func (r Result) Message() string {
	if r.State != StateFailed {
		return ""
	}
	if r.Kind == KindTimeout {
		return MessageTimeout
	}
	var envErr *EnvelopeError
	if errors.As(r.Err, &envErr) && envErr.Message != "" {
		return envErr.Message
	}
	var statusErr *StatusError
	if errors.As(r.Err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}
	return MessageGeneric
}

// StatusError はAPIが2xx以外のHTTPステータスを返したことを表す。
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// EnvelopeError はAPIが success:false のエンベロープを返したことを表す。
type EnvelopeError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// classify は失敗を種別に分類し、自動リトライの対象かどうかを返す。
// timedOutは試行ごとのタイムアウトが発火したかどうか。
func classify(err error, timedOut bool) (ErrorKind, bool) {
	if timedOut || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 {
			return KindServer, true
		}
		return KindRejected, false
	}

	var envErr *EnvelopeError
	if errors.As(err, &envErr) {
		if envErr.Retryable {
			return KindServer, true
		}
		return KindRejected, false
	}

	// 上記以外（接続断・DNS失敗など）はネットワーク層の失敗として扱う
	return KindNetwork, true
}
