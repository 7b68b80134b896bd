package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "spotbook/pkg/errors"
	pkghttp "spotbook/pkg/http"
	"spotbook/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

const UserIDKey contextKey = "user_id"

var validSigningMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Authentication accepts HMAC-signed bearer tokens and puts the sub claim on the
// request context as the requester id.
func Authentication(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				pkghttp.WriteError(w, apperrors.Unauthorized("Missing bearer token"))
				return
			}

			userID, err := ParseToken(key, tokenStr)
			if err != nil {
				log.Warn("Rejected bearer token",
					"request_id", GetRequestID(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				pkghttp.WriteError(w, apperrors.Unauthorized("Invalid token"))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// ParseToken verifies tokenStr and returns its subject.
func ParseToken(key []byte, tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods(validSigningMethods))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return subject, nil
}

// SignToken issues an HS256 token for userID. Token issuance belongs to the
// identity service; this exists for tooling and tests.
func SignToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID returns the authenticated requester, or "" outside Authentication.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}
