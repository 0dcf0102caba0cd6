package controllers

import (
	"net/http"

	"github.com/castmaster/castmaster-backend/api/middleware"
	"github.com/castmaster/castmaster-backend/api/responses"
	"github.com/castmaster/castmaster-backend/internal/files"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/metrics"
)

// StorageCheck is the subscriber-tier gate.
func StorageCheck(svc files.Service, gate *metrics.GateMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		check, err := svc.Check(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if check.IsSubscriber {
			decision := metrics.DecisionAllowed
			if !check.CanUpload {
				decision = metrics.DecisionDenied
			}
			gate.Observe("subscriber", decision)
		}
		responses.WriteSuccess(w, check)
	}
}
