package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartsync/pkg/httputil"
	"github.com/utafrali/cartsync/pkg/logger"
)

var testSecret = []byte("cartsync-test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func serveBearer(t *testing.T, authorization string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var got string
	h := BearerUser(testSecret, logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = AuthenticatedUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/login", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestBearerUser_UserIDClaim(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"user_id": "u-1",
		"sub":     "ignored",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	rec, user := serveBearer(t, "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u-1", user)
}

func TestBearerUser_FallsBackToSubject(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"sub": "u-2"})

	rec, user := serveBearer(t, "bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u-2", user)
}

func TestBearerUser_Rejections(t *testing.T) {
	expired := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"user_id": "u-1",
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": "u-1"})
	noUser := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"role": "admin"})

	tests := []struct {
		name   string
		header string
		msg    string
	}{
		{"missing", "", "missing authorization header"},
		{"basic scheme", "Basic dTpw", "invalid authorization header format"},
		{"expired", "Bearer " + expired, "invalid or expired token"},
		{"wrong key", "Bearer " + wrongKey, "invalid or expired token"},
		{"no user", "Bearer " + noUser, "token carries no user id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, user := serveBearer(t, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, user)

			var resp httputil.Response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
			assert.Equal(t, tt.msg, resp.Error.Message)
		})
	}
}

func TestAuthenticatedUser_Absent(t *testing.T) {
	_, ok := AuthenticatedUser(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
