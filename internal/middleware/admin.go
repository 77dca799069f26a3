package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/hitoshi/factcheck/internal/model"
)

// NewAdminAuthMiddleware はAuthorization: Bearer <token>を管理トークンと照合するミドルウェアを返す。
// 管理トークンが未設定の場合はすべてのリクエストを拒否する。
func NewAdminAuthMiddleware(adminToken string) func(next http.Handler) http.Handler {
	expected := []byte(adminToken)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(bearer, "Bearer ")
			if len(expected) == 0 || !ok || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
