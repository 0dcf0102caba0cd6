package controllers

import (
	"net/http"
	"strings"

	"github.com/castmaster/castmaster-backend/api/responses"
	"github.com/castmaster/castmaster-backend/api/validators"
	"github.com/castmaster/castmaster-backend/internal/notifications"
	"github.com/castmaster/castmaster-backend/pkg/email"
	"github.com/castmaster/castmaster-backend/pkg/enums"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

type subscribeRequest struct {
	JobID      string `json:"jobId"`
	Email      string `json:"email"`
	VideoTitle string `json:"videoTitle"`
}

type sendRequest struct {
	JobID       string `json:"jobId"`
	DownloadURL string `json:"downloadUrl"`
	VideoTitle  string `json:"videoTitle"`
}

type jobRequest struct {
	JobID string `json:"jobId"`
}

type jobStartedRequest struct {
	JobID         string `json:"jobId"`
	FileName      string `json:"fileName"`
	FileSize      int64  `json:"fileSize"`
	FileID        string `json:"fileId"`
	TemplateName  string `json:"templateName"`
	OutputQuality string `json:"outputQuality"`
	LimiterMode   string `json:"limiterMode"`
}

// NotificationSubscribe registers an email for the completion of a mastering job.
func NotificationSubscribe(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body subscribeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Subscribe(ctx, notifications.SubscribeInput{
			JobID: body.JobID,
			Email: body.Email,
			Kind:  enums.NotificationKindMastering,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"success": true,
			"message": result.Message,
			"id":      result.ID.String(),
		})
	}
}

func NotificationLookup(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := validators.RequiredQuery(r, "jobId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Lookup(r.Context(), jobID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// NotificationSend is the browser fallback trigger once it observes completion.
func NotificationSend(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body sendRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if strings.TrimSpace(body.JobID) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Missing required field: jobId"))
			return
		}
		result, err := svc.Deliver(ctx, notifications.DeliverInput{
			JobID:       body.JobID,
			DownloadURL: body.DownloadURL,
			VideoTitle:  body.VideoTitle,
			Source:      notifications.SourceClient,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// NotificationSweep runs one polling pass over pending subscriptions.
func NotificationSweep(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		result, err := svc.Sweep(ctx)
		if result == nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "notification.sweep_partial")
		}
		responses.WriteSuccess(w, result)
	}
}

func NotificationJobFailed(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body jobRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		updated, err := svc.MarkFailed(ctx, body.JobID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"success": true, "updated": updated})
	}
}

func VideoSubscribe(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body subscribeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Subscribe(ctx, notifications.SubscribeInput{
			JobID:      body.JobID,
			Email:      body.Email,
			Kind:       enums.NotificationKindVideo,
			VideoTitle: validators.SanitizeString(body.VideoTitle, 200),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"success": true,
			"message": result.Message,
			"notification": map[string]any{
				"id":     result.ID.String(),
				"jobId":  result.JobID,
				"email":  result.Email,
				"status": result.Status,
			},
		})
	}
}

func VideoNotifyComplete(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body sendRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if strings.TrimSpace(body.JobID) == "" || strings.TrimSpace(body.DownloadURL) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Missing required fields: jobId and downloadUrl are required"))
			return
		}
		result, err := svc.Deliver(ctx, notifications.DeliverInput{
			JobID:       body.JobID,
			DownloadURL: body.DownloadURL,
			VideoTitle:  body.VideoTitle,
			Source:      notifications.SourceExplicit,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminJobStarted alerts support about a new job. Failures are logged and
// reported only as success:false.
func AdminJobStarted(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body jobStartedRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if strings.TrimSpace(body.JobID) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Missing required field: jobId"))
			return
		}
		err := svc.NotifyJobStarted(ctx, email.JobStartedDetails{
			JobID:         body.JobID,
			FileName:      validators.SanitizeFileName(body.FileName),
			FileSize:      body.FileSize,
			FileID:        body.FileID,
			TemplateName:  body.TemplateName,
			OutputQuality: body.OutputQuality,
			LimiterMode:   body.LimiterMode,
		})
		if err != nil {
			logg.Error(logg.WithJobID(ctx, body.JobID), "admin.job_started_failed", err)
			responses.WriteSuccess(w, map[string]bool{"success": false})
			return
		}
		responses.WriteSuccess(w, map[string]bool{"success": true})
	}
}
