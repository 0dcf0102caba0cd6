package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/castmaster/castmaster-backend/api/responses"
	"github.com/castmaster/castmaster-backend/internal/usage"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

const maxThrottledBody = 64 << 10

type throttleStore interface {
	CountHit(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope, id string) string
}

// ThrottlePolicy bounds how often one client may hit a surface, counted per
// IP and per email address found in the JSON body.
type ThrottlePolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewThrottlePolicy(name string, window time.Duration, ipLimit, emailLimit int) ThrottlePolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return ThrottlePolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p ThrottlePolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// Throttle enforces policy. Counter failures let the request through: the
// store being down must not block notification sign-ups.
func Throttle(policy ThrottlePolicy, store throttleStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.ipLimit > 0 {
				ip := clientIP(r)
				key := store.RateLimitKey(policy.name+":ip", ip)
				if blocked := over(ctx, logg, store, key, policy.window, policy.ipLimit); blocked {
					rejectThrottled(ctx, logg, w, policy, "ip")
					return
				}
			}

			if policy.emailLimit > 0 && r.Body != nil {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxThrottledBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if email := normalizeEmail(extractEmail(body)); email != "" {
					key := store.RateLimitKey(policy.name+":email", hashValue(email))
					if blocked := over(ctx, logg, store, key, policy.window, policy.emailLimit); blocked {
						rejectThrottled(ctx, logg, w, policy, "email")
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func over(ctx context.Context, logg *logger.Logger, store throttleStore, key string, window time.Duration, limit int) bool {
	count, err := store.CountHit(ctx, key, window)
	if err != nil {
		if logg != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "throttle.store_unavailable")
		}
		return false
	}
	return count > int64(limit)
}

func rejectThrottled(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy ThrottlePolicy, scope string) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"scope":          scope,
			"policy":         policy.name,
			"window_seconds": int(policy.window.Seconds()),
		}), "throttle.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "Too many requests"))
}

func clientIP(r *http.Request) string {
	if ip := usage.ClientIP(r.Header); ip != "unknown" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Email
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
