package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/castmaster/castmaster-backend/pkg/logger"
)

// HeaderRequestID is echoed on every response; error bodies repeat it.
const HeaderRequestID = "X-Request-Id"

// RequestID adopts the caller's X-Request-Id when it is a sane token and
// mints a UUID otherwise. The id is echoed on the response and added to
// every log line for the request.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if !usableRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// usableRequestID accepts up to 128 visible ASCII characters.
func usableRequestID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
