package controllers

import (
	"net/http"
	"strings"

	"github.com/castmaster/castmaster-backend/api/middleware"
	"github.com/castmaster/castmaster-backend/api/responses"
	"github.com/castmaster/castmaster-backend/api/validators"
	"github.com/castmaster/castmaster-backend/internal/usage"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/metrics"
)

type recordUsageRequest struct {
	JobID  string `json:"jobId"`
	UserID string `json:"userId"`
}

// RateLimitCheck answers the free-tier gate. It never fails the caller: a
// broken quota store reports allowed with error "check_failed".
func RateLimitCheck(svc usage.Service, salt string, gate *metrics.GateMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		subject := usage.ResolveSubject(middleware.UserIDFromContext(ctx), r.URL.Query().Get("userId"), r.Header, salt)
		ctx = logg.WithField(ctx, "subject", subject.Key())

		status, err := svc.Check(ctx, subject)
		if err != nil {
			logg.Error(ctx, "usage.check_failed", err)
			gate.Observe("free", metrics.DecisionFailedOpen)
			responses.WriteSuccess(w, svc.FailOpen())
			return
		}
		logg.Debug(logg.WithFields(ctx, map[string]any{"used": status.Used, "allowed": status.Allowed}), "usage.checked")
		gate.Observe("free", gateDecision(status.Allowed))
		responses.WriteSuccess(w, status)
	}
}

// RateLimitRecord spends one unit of free quota for a started job.
func RateLimitRecord(svc usage.Service, salt string, gate *metrics.GateMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body recordUsageRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if strings.TrimSpace(body.JobID) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Missing jobId"))
			return
		}

		subject := usage.ResolveSubject(middleware.UserIDFromContext(ctx), body.UserID, r.Header, salt)
		ctx = logg.WithJobID(logg.WithField(ctx, "subject", subject.Key()), body.JobID)

		status, err := svc.Record(ctx, subject, body.JobID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		gate.Observe("free", gateDecision(status.Recorded))
		if status.Recorded {
			logg.Info(logg.WithField(ctx, "used", status.Used), "usage.recorded")
		} else {
			logg.Warn(logg.WithField(ctx, "used", status.Used), "usage.blocked")
		}
		responses.WriteSuccess(w, status)
	}
}

func gateDecision(allowed bool) string {
	if allowed {
		return metrics.DecisionAllowed
	}
	return metrics.DecisionDenied
}
