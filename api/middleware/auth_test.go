package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castmaster/castmaster-backend/pkg/auth"
	"github.com/castmaster/castmaster-backend/pkg/config"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

var testSession = config.SessionConfig{Secret: "test-secret", Issuer: "castmaster", CookieName: "cm_session"}

func mintToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.MintSessionToken(testSession, time.Now(), time.Hour, auth.Identity{UserID: userID, Email: userID + "@example.com"})
	require.NoError(t, err)
	return token
}

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-User", UserIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionReadsBearerToken(t *testing.T) {
	handler := Session(testSession, logger.Discard())(identityEcho())
	req := httptest.NewRequest(http.MethodGet, "/api/storage/check", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "user-1"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, "user-1", rec.Header().Get("X-User"))
}

func TestSessionReadsCookie(t *testing.T) {
	handler := Session(testSession, logger.Discard())(identityEcho())
	req := httptest.NewRequest(http.MethodGet, "/api/storage/check", nil)
	req.AddCookie(&http.Cookie{Name: "cm_session", Value: mintToken(t, "user-2")})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, "user-2", rec.Header().Get("X-User"))
}

func TestSessionIgnoresInvalidToken(t *testing.T) {
	handler := Session(testSession, logger.Discard())(identityEcho())
	req := httptest.NewRequest(http.MethodGet, "/api/rate-limit/check", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-User"))
}

func TestRequireSession(t *testing.T) {
	handler := Session(testSession, nil)(RequireSession(nil)(identityEcho()))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/list", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/files/list", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "user-3"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookSecret(t *testing.T) {
	handler := WebhookSecret("s3cret", nil)(identityEcho())

	cases := map[string]int{
		"":              http.StatusUnauthorized,
		"Bearer wrong":  http.StatusUnauthorized,
		"s3cret":        http.StatusUnauthorized,
		"Bearer s3cret": http.StatusOK,
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/job-complete", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "header %q", header)
	}
}

func TestWebhookSecretUnsetRejects(t *testing.T) {
	handler := WebhookSecret("", nil)(identityEcho())
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/job-complete", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecovererReturns500(t *testing.T) {
	handler := Recoverer(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDEchoesOrGenerates(t *testing.T) {
	handler := RequestID(logger.Discard())(identityEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get("X-Request-Id"), 36)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "has space")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Len(t, rec.Header().Get("X-Request-Id"), 36)
}
