package middleware

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/go-chi/cors"

	"github.com/castmaster/castmaster-backend/pkg/config"
)

// CORS admits the configured UI origins. In dev any http://localhost port is
// also accepted so a second UI checkout can run beside the first.
func CORS(app config.AppConfig) func(http.Handler) http.Handler {
	allowed := app.CORSOrigins
	if len(allowed) == 0 {
		allowed = []string{app.PublicURL}
	}
	dev := app.IsDev()
	return cors.New(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return slices.Contains(allowed, origin) || (dev && isLocalhost(origin))
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature", HeaderRequestID},
		ExposedHeaders:   []string{HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

func isLocalhost(origin string) bool {
	u, err := url.Parse(origin)
	return err == nil && u.Scheme == "http" && u.Hostname() == "localhost"
}
