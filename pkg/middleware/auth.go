package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/utafrali/cartsync/pkg/errors"
	"github.com/utafrali/cartsync/pkg/httputil"
	"github.com/utafrali/cartsync/pkg/logger"
)

type authUserKey struct{}

var (
	errMissingToken  = errors.New("missing authorization header")
	errMalformedAuth = errors.New("invalid authorization header format")
	errInvalidToken  = errors.New("invalid or expired token")
	errNoUserClaim   = errors.New("token carries no user id")
)

// BearerUser requires an HMAC-signed JWT and stores its user id, read from
// the "user_id" claim or else "sub", in the request context.
func BearerUser(secret []byte, fallback *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := userFromBearer(r.Header.Get("Authorization"), secret)
			if err != nil {
				l := logger.FromContext(r.Context())
				if l == slog.Default() {
					l = fallback
				}
				l.WarnContext(r.Context(), "bearer token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				httputil.WriteError(w, r, apperrors.Unauthorized(err.Error()), fallback)
				return
			}
			ctx := context.WithValue(r.Context(), authUserKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthenticatedUser returns the user id stored by BearerUser.
func AuthenticatedUser(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(authUserKey{}).(string)
	return id, ok && id != ""
}

func userFromBearer(header string, secret []byte) (string, error) {
	if header == "" {
		return "", errMissingToken
	}
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || raw == "" {
		return "", errMalformedAuth
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	)
	if err != nil {
		return "", errInvalidToken
	}

	if id, _ := claims["user_id"].(string); id != "" {
		return id, nil
	}
	if sub, _ := claims.GetSubject(); sub != "" {
		return sub, nil
	}
	return "", errNoUserClaim
}
