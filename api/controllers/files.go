package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/castmaster/castmaster-backend/api/middleware"
	"github.com/castmaster/castmaster-backend/api/responses"
	"github.com/castmaster/castmaster-backend/api/validators"
	"github.com/castmaster/castmaster-backend/internal/files"
	"github.com/castmaster/castmaster-backend/internal/jobs"
	"github.com/castmaster/castmaster-backend/pkg/enums"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/types"
)

// multipart parts beyond this spill to disk.
const uploadMemory = 32 << 20

type deleteFileRequest struct {
	FileID string `json:"fileId"`
}

type trackJobRequest struct {
	JobID    string `json:"jobId"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

func (r trackJobRequest) input() jobs.TrackInput {
	return jobs.TrackInput{JobID: r.JobID, FileName: validators.SanitizeFileName(r.FileName), FileSize: r.FileSize}
}

// FilesUpload stores a multipart file in the subscriber's durable storage.
func FilesUpload(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := r.ParseMultipartForm(uploadMemory); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "No file provided"))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "No file provided"))
			return
		}
		defer file.Close()

		fileType, err := enums.ParseFileType(r.FormValue("fileType"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fileType"))
			return
		}

		stored, err := svc.Upload(ctx, files.UploadInput{
			UserID:      middleware.UserIDFromContext(ctx),
			FileName:    validators.SanitizeFileName(header.Filename),
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
			FileType:    fileType,
			JobID:       strings.TrimSpace(r.FormValue("jobId")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(logg.WithFields(ctx, map[string]any{"file_id": stored.ID, "file_size": stored.FileSize}), "files.uploaded")
		responses.WriteSuccess(w, map[string]any{"success": true, "file": stored})
	}
}

func FilesList(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.List(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func FilesDelete(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body deleteFileRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if strings.TrimSpace(body.FileID) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "File ID required"))
			return
		}
		fileID, err := uuid.Parse(strings.TrimSpace(body.FileID))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "File not found"))
			return
		}
		if err := svc.Delete(ctx, middleware.UserIDFromContext(ctx), fileID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"success": true})
	}
}

// PremiumJobTrack records a subscriber job so the worker may copy its output.
func PremiumJobTrack(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body trackJobRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		job, err := svc.TrackPremiumJob(ctx, middleware.UserIDFromContext(ctx), body.input())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"job": types.NewPremiumJob(*job)})
	}
}

func FreeFilesList(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListFreeFiles(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]types.FreeFile, 0, len(rows))
		for _, row := range rows {
			out = append(out, types.NewFreeFile(row))
		}
		responses.WriteSuccess(w, map[string]any{"files": out})
	}
}

func FreeFileCreate(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body trackJobRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		row, err := svc.TrackFreeFile(ctx, middleware.UserIDFromContext(ctx), body.input())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"file": types.NewFreeFile(*row)})
	}
}

// BlobUploadURL is called by the mastering worker, not the UI.
func BlobUploadURL(svc files.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body files.BlobUploadRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ctx = logg.WithJobID(ctx, body.JobID)
		grant, err := svc.GrantBlobUpload(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !grant.ShouldUpload {
			logg.Info(logg.WithField(ctx, "reason", grant.Reason), "files.blob_upload_skipped")
		}
		responses.WriteSuccess(w, grant)
	}
}
