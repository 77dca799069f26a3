package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/factcheck/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/verify", nil)
	req.RemoteAddr = ip + ":40000"
	return req
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     2,
		GeneralBurst:    5,
		VerifyRate:      1,
		VerifyBurst:     1,
		CleanupInterval: time.Minute,
	}, discardLogger())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("198.51.100.1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     0.5,
		GeneralBurst:    2,
		VerifyRate:      1,
		VerifyBurst:     1,
		CleanupInterval: time.Minute,
	}, discardLogger())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom("198.51.100.2"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("198.51.100.2"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After is not an integer: %q", w.Header().Get("Retry-After"))
	}
	if retryAfter != 2 {
		t.Errorf("Retry-After = %d, want 2", retryAfter)
	}

	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Success {
		t.Error("success = true, want false")
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
	if !body.Retryable {
		t.Error("retryable = false, want true")
	}
}

func TestRateLimitMiddleware_IsolatesClientIPs(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		VerifyRate:      1,
		VerifyBurst:     1,
		CleanupInterval: time.Minute,
	}, discardLogger())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("198.51.100.3"))

	blocked := httptest.NewRecorder()
	handler.ServeHTTP(blocked, requestFrom("198.51.100.3"))
	if blocked.Code != http.StatusTooManyRequests {
		t.Errorf("same IP status = %d, want %d", blocked.Code, http.StatusTooManyRequests)
	}

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, requestFrom("198.51.100.4"))
	if other.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want %d", other.Code, http.StatusOK)
	}

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
}

func TestVerifyRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		VerifyRate:      0.1,
		VerifyBurst:     1,
		CleanupInterval: time.Minute,
	}, discardLogger())
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	verify := rl.GeneralMiddleware()(rl.VerifyMiddleware()(okHandler()))

	first := httptest.NewRecorder()
	verify.ServeHTTP(first, requestFrom("198.51.100.5"))
	if first.Code != http.StatusOK {
		t.Fatalf("first verify status = %d, want %d", first.Code, http.StatusOK)
	}

	second := httptest.NewRecorder()
	verify.ServeHTTP(second, requestFrom("198.51.100.5"))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second verify status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}

	// 検証の制限に達しても他のエンドポイントは通る
	w := httptest.NewRecorder()
	general.ServeHTTP(w, requestFrom("198.51.100.5"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := rl.VerifyLimiterCount(); got != 1 {
		t.Errorf("VerifyLimiterCount = %d, want 1", got)
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		VerifyRate:      1,
		VerifyBurst:     1,
		CleanupInterval: time.Hour,
	}, discardLogger())
	defer rl.Stop()

	rl.general.get("198.51.100.6", time.Now().Add(-3*time.Hour))
	rl.general.get("198.51.100.7", time.Now())
	rl.verify.get("198.51.100.6", time.Now().Add(-3*time.Hour))

	rl.cleanup(time.Now())

	if got := rl.GeneralLimiterCount(); got != 1 {
		t.Errorf("GeneralLimiterCount = %d, want 1", got)
	}
	if got := rl.VerifyLimiterCount(); got != 0 {
		t.Errorf("VerifyLimiterCount = %d, want 0", got)
	}
}

func TestRateLimiterConfigPerMinute(t *testing.T) {
	cfg := RateLimiterConfigPerMinute(120, 0)

	if cfg.GeneralRate != 2 {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.VerifyBurst != 1 {
		t.Errorf("VerifyBurst = %d, want 1 for non-positive input", cfg.VerifyBurst)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), discardLogger())
	rl.Stop()
	rl.Stop()
}
