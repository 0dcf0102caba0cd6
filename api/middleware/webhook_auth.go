package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/castmaster/castmaster-backend/api/responses"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

// WebhookSecret guards worker callbacks with the shared bearer secret.
// An unset secret rejects everything.
func WebhookSecret(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	expected := []byte("Bearer " + secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(strings.TrimSpace(r.Header.Get("Authorization")))
			if secret == "" || subtle.ConstantTimeCompare(got, expected) != 1 {
				if logg != nil {
					logg.Warn(r.Context(), "webhook.unauthorized")
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
