package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/api/shared"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"github.com/litevault/litevault-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJWT struct {
	claims *auth.Claims
	err    error
}

func (s stubJWT) GenerateToken(context.Context, uuid.UUID) (string, error) { return "", nil }

func (s stubJWT) ValidateToken(context.Context, string) (*auth.Claims, error) {
	return s.claims, s.err
}

func TestAuthenticate(t *testing.T) {
	userID := uuid.New()
	ok := stubJWT{claims: &auth.Claims{UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}}

	tests := []struct {
		name       string
		jwt        stubJWT
		header     string
		wantStatus int
	}{
		{"valid", ok, "Bearer token", http.StatusOK},
		{"lowercase scheme", ok, "bearer token", http.StatusOK},
		{"missing header", ok, "", http.StatusUnauthorized},
		{"wrong scheme", ok, "Basic abc", http.StatusUnauthorized},
		{"empty token", ok, "Bearer ", http.StatusUnauthorized},
		{"expired", stubJWT{err: auth.ErrExpiredToken}, "Bearer token", http.StatusUnauthorized},
		{"invalid", stubJWT{err: auth.ErrInvalidToken}, "Bearer token", http.StatusUnauthorized},
		{"unexpected", stubJWT{err: assert.AnError}, "Bearer token", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = shared.UserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			NewAuthMiddleware(tt.jwt).Authenticate(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, userID, gotUser)
			}
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	log, buf := logger.GetTestLogger(t)

	var traceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
	})

	NewTraceMiddleware(log)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, traceID)
	assert.Contains(t, buf.String(), traceID)
}
