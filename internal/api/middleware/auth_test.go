package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repubhub/republic-api/internal/service/auth"
)

// stubJWTService returns fixed claims or a fixed error.
type stubJWTService struct {
	claims *auth.Claims
	err    error

	gotToken string
}

func (s *stubJWTService) GenerateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return "", nil
}

func (s *stubJWTService) ValidateToken(ctx context.Context, tokenString string) (*auth.Claims, error) {
	s.gotToken = tokenString
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func protectedHandler(t *testing.T, wantUserID uuid.UUID) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r)
		require.True(t, ok, "user ID should be in context")
		assert.Equal(t, wantUserID, userID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	t.Run("valid token passes through", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		svc := &stubJWTService{claims: &auth.Claims{UserID: userID}}
		handler := NewAuthMiddleware(svc).Authenticate(protectedHandler(t, userID))

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer sometoken")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "sometoken", svc.gotToken)
	})

	t.Run("missing header", func(t *testing.T) {
		t.Parallel()

		handler := NewAuthMiddleware(&stubJWTService{}).Authenticate(failIfCalled(t))

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Authorization header required")
	})

	t.Run("malformed header", func(t *testing.T) {
		t.Parallel()

		handler := NewAuthMiddleware(&stubJWTService{}).Authenticate(failIfCalled(t))

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()

		svc := &stubJWTService{err: auth.ErrExpiredToken}
		handler := NewAuthMiddleware(svc).Authenticate(failIfCalled(t))

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer expired")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Token expired")
	})

	t.Run("invalid token", func(t *testing.T) {
		t.Parallel()

		svc := &stubJWTService{err: auth.ErrInvalidToken}
		handler := NewAuthMiddleware(svc).Authenticate(failIfCalled(t))

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid token")
	})
}

func failIfCalled(t *testing.T) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be reached")
	})
}
