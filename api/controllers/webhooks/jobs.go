package webhooks

import (
	"net/http"

	"github.com/castmaster/castmaster-backend/api/responses"
	"github.com/castmaster/castmaster-backend/api/validators"
	"github.com/castmaster/castmaster-backend/internal/jobs"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

type jobCompleteRequest struct {
	JobID    string         `json:"jobId" validate:"required"`
	Status   string         `json:"status"`
	BlobData *jobs.BlobData `json:"blobData"`
}

type videoCompleteRequest struct {
	JobID       string `json:"jobId" validate:"required"`
	Status      string `json:"status"`
	DownloadURL string `json:"downloadUrl"`
	VideoTitle  string `json:"videoTitle"`
}

// Probe answers GET on a webhook path so the worker can check reachability.
func Probe(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "ok", "endpoint": endpoint})
	}
}

// JobComplete is called by the mastering worker when a job reaches a terminal state.
func JobComplete(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body jobCompleteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ctx = logg.WithJobID(ctx, body.JobID)
		result, err := svc.CompleteJob(ctx, jobs.JobCompletion{
			JobID:    body.JobID,
			Status:   body.Status,
			BlobData: body.BlobData,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func VideoComplete(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body videoCompleteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ctx = logg.WithJobID(ctx, body.JobID)
		result, err := svc.CompleteVideo(ctx, jobs.VideoCompletion{
			JobID:       body.JobID,
			Status:      body.Status,
			DownloadURL: body.DownloadURL,
			VideoTitle:  body.VideoTitle,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
