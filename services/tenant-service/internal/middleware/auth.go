package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"TradeDeskPlatform/pkg/errors"
	"TradeDeskPlatform/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims claims токена администратора платформы
type AdminClaims struct {
	IsAdmin bool `json:"is_admin"`
	jwt.RegisteredClaims
}

type adminKey struct{}

// IssueAdminToken выпускает токен администратора, подписанный HS256
func IssueAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &AdminClaims{
		IsAdmin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseAdminToken проверяет подпись, срок и алгоритм токена
func ParseAdminToken(secret, token string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// AdminFromContext claims администратора, положенные AdminAuth
func AdminFromContext(ctx context.Context) (*AdminClaims, bool) {
	c, ok := ctx.Value(adminKey{}).(*AdminClaims)
	return c, ok
}

// AdminAuth пропускает только запросы с валидным Bearer токеном и is_admin=true
func AdminAuth(secret string, log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				errors.WriteJSON(w, r, errors.New(errors.ErrUnauthorized, "bearer token required"))
				return
			}

			claims, err := ParseAdminToken(secret, token)
			if err != nil {
				log.Warn("Admin token rejected", logger.CtxField(r.Context()), logger.Error(err))
				errors.WriteJSON(w, r, errors.Wrap(err, errors.ErrUnauthorized, "invalid token"))
				return
			}
			if !claims.IsAdmin {
				errors.WriteJSON(w, r, errors.New(errors.ErrForbidden, "admin privileges required"))
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, claims)))
		})
	}
}
