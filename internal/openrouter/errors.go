package openrouter

import "fmt"

// TransportError はAIプロバイダへの通信が完了しなかったことを表す（タイムアウト、DNS、接続拒否など）。
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("API request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError はAIプロバイダが2xx以外のステータスを返したことを表す。
// Messageはプロバイダのエラーエンベロープ（error.message）から取得する。
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API Error (%d): %s", e.Status, e.Message)
}
