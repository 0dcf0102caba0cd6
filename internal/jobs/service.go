package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/castmaster/castmaster-backend/internal/files"
	"github.com/castmaster/castmaster-backend/internal/notifications"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	"github.com/castmaster/castmaster-backend/pkg/enums"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

const defaultFreeFileTTL = 24 * time.Hour

// Service tracks job side records and handles worker completion callbacks.
type Service interface {
	TrackPremiumJob(ctx context.Context, userID string, input TrackInput) (*models.PremiumJob, error)
	TrackFreeFile(ctx context.Context, userID string, input TrackInput) (*models.FreeUserFile, error)
	ListFreeFiles(ctx context.Context, userID string) ([]models.FreeUserFile, error)
	CompleteJob(ctx context.Context, input JobCompletion) (*CompletionResult, error)
	CompleteVideo(ctx context.Context, input VideoCompletion) (*CompletionResult, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

type outputRecorder interface {
	RecordOutput(ctx context.Context, output files.OutputFile) (*models.SubscriberFile, error)
}

type notifier interface {
	Lookup(ctx context.Context, jobID string) (*notifications.LookupResult, error)
	Deliver(ctx context.Context, input notifications.DeliverInput) (*notifications.DeliverResult, error)
	MarkFailed(ctx context.Context, jobID string) (bool, error)
}

type downloadLinker interface {
	DownloadURL(jobID string) string
}

type service struct {
	repo        Repository
	outputs     outputRecorder
	notifier    notifier
	links       downloadLinker
	logg        *logger.Logger
	freeFileTTL time.Duration
	now         func() time.Time
}

type ServiceParams struct {
	Repo          Repository
	Outputs       outputRecorder
	Notifications notifier
	Links         downloadLinker
	Logger        *logger.Logger
	FreeFileTTL   time.Duration
	Now           func() time.Time
}

// TrackInput is the body of the premium-job and free-user tracking calls.
type TrackInput struct {
	JobID    string
	FileName string
	FileSize int64
}

// BlobData describes an output the worker already copied into the subscriber bucket.
type BlobData struct {
	BlobURL        string `json:"blobUrl"`
	BlobPathname   string `json:"blobPathname"`
	SubscriptionID string `json:"subscriptionId"`
	OutputFileName string `json:"outputFileName"`
	FileSize       int64  `json:"fileSize"`
}

type JobCompletion struct {
	JobID    string
	Status   string
	BlobData *BlobData
}

type VideoCompletion struct {
	JobID       string
	Status      string
	DownloadURL string
	VideoTitle  string
}

type CompletionResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	EmailSent bool   `json:"emailSent"`
	EmailID   string `json:"emailId,omitempty"`
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "jobs repository required")
	}
	if params.Outputs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "output recorder required")
	}
	if params.Notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification service required")
	}
	if params.Links == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "download link builder required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	ttl := params.FreeFileTTL
	if ttl <= 0 {
		ttl = defaultFreeFileTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repo,
		outputs:     params.Outputs,
		notifier:    params.Notifications,
		links:       params.Links,
		logg:        logg,
		freeFileTTL: ttl,
		now:         now,
	}, nil
}

func (in TrackInput) validate() error {
	if strings.TrimSpace(in.JobID) == "" || strings.TrimSpace(in.FileName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "Missing required fields")
	}
	if in.FileSize < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "fileSize must not be negative")
	}
	return nil
}

func (s *service) TrackPremiumJob(ctx context.Context, userID string, input TrackInput) (*models.PremiumJob, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	job := &models.PremiumJob{
		UserID:   userID,
		JobID:    input.JobID,
		FileName: input.FileName,
		FileSize: input.FileSize,
		Status:   enums.PremiumJobStatusProcessing,
	}
	if err := s.repo.CreatePremiumJob(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to create job record")
	}
	s.logg.Info(s.logg.WithUserID(s.logg.WithJobID(ctx, input.JobID), userID), "jobs.premium_tracked")
	return job, nil
}

func (s *service) TrackFreeFile(ctx context.Context, userID string, input TrackInput) (*models.FreeUserFile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	file := &models.FreeUserFile{
		UserID:    userID,
		JobID:     input.JobID,
		FileName:  input.FileName,
		FileSize:  input.FileSize,
		Status:    enums.JobStatusProcessing,
		ExpiresAt: s.now().UTC().Add(s.freeFileTTL),
	}
	if err := s.repo.CreateFreeFile(ctx, file); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to create file record")
	}
	return file, nil
}

func (s *service) ListFreeFiles(ctx context.Context, userID string) ([]models.FreeUserFile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized")
	}
	rows, err := s.repo.ListFreeFiles(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to fetch files")
	}
	return rows, nil
}

// CompleteJob handles the worker's mastering completion callback.
func (s *service) CompleteJob(ctx context.Context, input JobCompletion) (*CompletionResult, error) {
	jobID := strings.TrimSpace(input.JobID)
	if jobID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Missing required field: jobId")
	}
	ctx = s.logg.WithFields(s.logg.WithJobID(ctx, jobID), map[string]any{"status": input.Status, "blob": input.BlobData != nil})
	s.logg.Info(ctx, "webhook.job_complete")

	completed := input.Status == string(enums.JobStatusCompleted)
	downloadURL := s.links.DownloadURL(jobID)

	if completed {
		if input.BlobData != nil {
			s.recordBlob(ctx, jobID, *input.BlobData)
		} else if _, err := s.repo.SetPremiumJobStatus(ctx, jobID, enums.PremiumJobStatusCompleted); err != nil {
			s.logg.Error(ctx, "mark premium job completed", err)
		}
	}

	freeStatus := enums.JobStatusFailed
	if completed {
		freeStatus = enums.JobStatusCompleted
	}
	if n, err := s.repo.UpdateFreeFilesForJob(ctx, jobID, downloadURL, freeStatus); err != nil {
		s.logg.Error(ctx, "update free user files", err)
	} else if n > 0 {
		s.logg.Debug(ctx, "jobs.free_file_updated")
	}

	return s.notify(ctx, jobID, input.Status, notifications.DeliverInput{
		JobID:       jobID,
		DownloadURL: downloadURL,
		Source:      notifications.SourceWebhook,
	})
}

func (s *service) recordBlob(ctx context.Context, jobID string, blob BlobData) {
	_, err := s.outputs.RecordOutput(ctx, files.OutputFile{
		SubscriptionID: blob.SubscriptionID,
		JobID:          jobID,
		FileName:       blob.OutputFileName,
		FileSize:       blob.FileSize,
		ObjectKey:      blob.BlobPathname,
		URL:            blob.BlobURL,
	})
	status := enums.PremiumJobStatusCompleted
	if err != nil {
		s.logg.Error(ctx, "save subscriber output", err)
		status = enums.PremiumJobStatusFailed
	}
	if _, err := s.repo.SetPremiumJobStatus(ctx, jobID, status); err != nil {
		s.logg.Error(ctx, "update premium job status", err)
	}
}

// CompleteVideo handles the render worker's completion callback.
func (s *service) CompleteVideo(ctx context.Context, input VideoCompletion) (*CompletionResult, error) {
	jobID := strings.TrimSpace(input.JobID)
	if jobID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Missing required field: jobId")
	}
	ctx = s.logg.WithFields(s.logg.WithJobID(ctx, jobID), map[string]any{"status": input.Status})
	s.logg.Info(ctx, "webhook.video_complete")

	return s.notify(ctx, jobID, input.Status, notifications.DeliverInput{
		JobID:       jobID,
		DownloadURL: input.DownloadURL,
		VideoTitle:  input.VideoTitle,
		Source:      notifications.SourceWebhook,
	})
}

func (s *service) notify(ctx context.Context, jobID, status string, deliver notifications.DeliverInput) (*CompletionResult, error) {
	lookup, err := s.notifier.Lookup(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !lookup.Subscribed {
		return &CompletionResult{Success: true, Message: "No notification subscription found for this job"}, nil
	}

	if status != string(enums.JobStatusCompleted) {
		if status == string(enums.JobStatusFailed) {
			if _, err := s.notifier.MarkFailed(ctx, jobID); err != nil {
				return nil, err
			}
		}
		return &CompletionResult{Success: true, Message: fmt.Sprintf("Job status is %s, no email sent", status)}, nil
	}

	res, err := s.notifier.Deliver(ctx, deliver)
	if err != nil {
		return nil, err
	}
	return &CompletionResult{
		Success:   res.Success,
		Message:   res.Message,
		EmailSent: res.Sent,
		EmailID:   res.EmailID,
	}, nil
}

// CleanupExpired removes free-user file rows whose download window closed.
func (s *service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredFreeFiles(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete expired free files")
	}
	return n, nil
}
