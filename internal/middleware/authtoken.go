package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/factcheck/internal/model"
)

const (
	// TokenAction は検証リクエスト用トークンのactクレーム値。
	TokenAction = "fact_check"
	// TokenTTL はトークンの有効期間。
	TokenTTL = 24 * time.Hour
	// AuthTokenField はトークンを受け取るフォームフィールド名。
	AuthTokenField = "auth_token"
)

// ErrInvalidToken はトークンの署名・有効期限・用途のいずれかが不正な場合のエラー。
var ErrInvalidToken = errors.New("invalid auth token")

type tokenClaims struct {
	Action string `json:"act"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256署名の偽造防止トークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    TokenTTL,
		now:    time.Now,
	}
}

// Issue はact=fact_check、有効期限24時間のトークンを発行する。
func (ti *TokenIssuer) Issue() (string, error) {
	now := ti.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Action: TokenAction,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	})
	signed, err := tok.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate はトークンの署名・有効期限・actクレームを検証する。
func (ti *TokenIssuer) Validate(tokenStr string) error {
	if tokenStr == "" {
		return ErrInvalidToken
	}
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) { return ti.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil || !token.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Action != TokenAction {
		return fmt.Errorf("%w: unexpected act %q", ErrInvalidToken, claims.Action)
	}
	return nil
}

// Middleware はフォームフィールドauth_tokenを検証し、
// 不正な場合は403の失敗エンベロープを返すミドルウェアを返す。
func (ti *TokenIssuer) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := ti.Validate(r.FormValue(AuthTokenField)); err != nil {
				WriteErrorResponse(w, http.StatusForbidden, model.NewInvalidTokenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
