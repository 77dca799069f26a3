package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// fakeAPI はGET /tokenとPOST /verifyを実装するテストサーバー。
type fakeAPI struct {
	tokenCalls  atomic.Int32
	verifyCalls atomic.Int32
	validToken  string
	verify      func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/token":
		n := f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"token":"tok-%d"}`, n)
	case r.Method == http.MethodPost && r.URL.Path == "/verify":
		f.verifyCalls.Add(1)
		if f.validToken != "" && r.FormValue("auth_token") != f.validToken {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"success":false,"data":"Security check failed. Please reload the page.","code":"INVALID_TOKEN","retryable":false}`)
			return
		}
		f.verify(w, r)
	default:
		http.NotFound(w, r)
	}
}

func writeVerdict(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data": map[string]any{
			"score":       72,
			"status":      "Mostly Accurate",
			"description": "subject=" + r.FormValue("subject_id"),
			"issues":      []any{},
			"sources":     []any{map[string]string{"title": "Reuters", "url": "https://reuters.com/x"}},
		},
	})
}

// TestHTTPTransport_Verify_Success は取得したトークンが2回目以降の検証で再利用されることを検証する。
func TestHTTPTransport_Verify_Success(t *testing.T) {
	api := &fakeAPI{verify: writeVerdict}
	server := httptest.NewServer(api)
	defer server.Close()

	tr := NewHTTPTransport(server.URL+"/", server.Client())

	for i := 0; i < 2; i++ {
		v, err := tr.Verify(context.Background(), "42")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if v.Score != 72 || v.Description != "subject=42" || len(v.Sources) != 1 {
			t.Errorf("verdict = %+v", v)
		}
	}
	if n := api.tokenCalls.Load(); n != 1 {
		t.Errorf("token calls = %d, want 1 (token should be reused)", n)
	}
}

// TestHTTPTransport_Verify_RefreshesTokenOnForbidden は403時にトークンを取り直して1回だけ再送することを検証する。
func TestHTTPTransport_Verify_RefreshesTokenOnForbidden(t *testing.T) {
	api := &fakeAPI{verify: writeVerdict, validToken: "tok-2"}
	server := httptest.NewServer(api)
	defer server.Close()

	tr := NewHTTPTransport(server.URL, server.Client())

	if _, err := tr.Verify(context.Background(), "42"); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if n := api.tokenCalls.Load(); n != 2 {
		t.Errorf("token calls = %d, want 2", n)
	}
	if n := api.verifyCalls.Load(); n != 2 {
		t.Errorf("verify calls = %d, want 2", n)
	}
}

// TestHTTPTransport_Verify_PersistentForbidden は再送後も403ならStatusErrorを返すことを検証する。
func TestHTTPTransport_Verify_PersistentForbidden(t *testing.T) {
	api := &fakeAPI{verify: writeVerdict, validToken: "never"}
	server := httptest.NewServer(api)
	defer server.Close()

	_, err := NewHTTPTransport(server.URL, server.Client()).Verify(context.Background(), "42")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("error = %v, want StatusError 403", err)
	}
	if statusErr.Message != "Security check failed. Please reload the page." {
		t.Errorf("Message = %q", statusErr.Message)
	}
	if n := api.verifyCalls.Load(); n != 2 {
		t.Errorf("verify calls = %d, want 2", n)
	}
}

// TestHTTPTransport_Verify_ErrorEnvelope はsuccess:falseのエンベロープがEnvelopeErrorになることを検証する。
func TestHTTPTransport_Verify_ErrorEnvelope(t *testing.T) {
	api := &fakeAPI{verify: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":false,"data":"Upstream error (503): overloaded","code":"UPSTREAM","retryable":true}`)
	}}
	server := httptest.NewServer(api)
	defer server.Close()

	_, err := NewHTTPTransport(server.URL, server.Client()).Verify(context.Background(), "42")

	var envErr *EnvelopeError
	if !errors.As(err, &envErr) {
		t.Fatalf("error = %v, want EnvelopeError", err)
	}
	if envErr.Code != "UPSTREAM" || !envErr.Retryable || envErr.Message != "Upstream error (503): overloaded" {
		t.Errorf("envelope error = %+v", envErr)
	}
	if kind, retry := classify(err, false); kind != KindServer || !retry {
		t.Errorf("classify() = %s, %v", kind, retry)
	}
}

// TestHTTPTransport_Verify_ServerError は5xx応答がStatusErrorになることを検証する。
func TestHTTPTransport_Verify_ServerError(t *testing.T) {
	api := &fakeAPI{verify: func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}}
	server := httptest.NewServer(api)
	defer server.Close()

	_, err := NewHTTPTransport(server.URL, server.Client()).Verify(context.Background(), "42")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v, want StatusError 500", err)
	}
	if kind, retry := classify(err, false); kind != KindServer || !retry {
		t.Errorf("classify() = %s, %v", kind, retry)
	}
}

// TestHTTPTransport_Verify_NetworkError は接続失敗がネットワークエラーとして返ることを検証する。
func TestHTTPTransport_Verify_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPTransport(url, nil).Verify(context.Background(), "42")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind, retry := classify(err, false); kind != KindNetwork || !retry {
		t.Errorf("classify() = %s, %v", kind, retry)
	}
}

// TestResult_Message はエラー種別ごとの利用者向けメッセージを検証する。
func TestResult_Message(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want string
	}{
		{"success", Result{State: StateSucceeded}, ""},
		{"timeout", Result{State: StateFailed, Kind: KindTimeout, Err: context.DeadlineExceeded}, MessageTimeout},
		{"network", Result{State: StateFailed, Kind: KindNetwork, Err: errors.New("dial tcp")}, MessageGeneric},
		{"envelope", Result{State: StateFailed, Kind: KindRejected, Err: &EnvelopeError{Message: "Post not found: 1"}}, "Post not found: 1"},
		{"status without body", Result{State: StateFailed, Kind: KindServer, Err: &StatusError{StatusCode: 502}}, MessageGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}
