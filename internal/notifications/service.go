package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/castmaster/castmaster-backend/pkg/db"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	"github.com/castmaster/castmaster-backend/pkg/email"
	"github.com/castmaster/castmaster-backend/pkg/enums"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
	"github.com/castmaster/castmaster-backend/pkg/metrics"
	"github.com/castmaster/castmaster-backend/pkg/redis"
)

const (
	guardScope      = "notification"
	defaultGuardTTL = 2 * time.Minute
	sweepBatch      = 200
	logTypeDone     = "completion"
	logTypeVid      = "video_completion"
	logTypeJob      = "admin_job_started"

	msgNoSubscription = "No notification subscription found for this job"
	msgAlreadySent    = "Email already sent for this job"
)

// Trigger sources for Deliver.
const (
	SourceWebhook  = "webhook"
	SourceClient   = "client"
	SourceSweep    = "sweep"
	SourceExplicit = "explicit"
)

// Service coordinates completion emails so each job gets at most one.
type Service interface {
	Subscribe(ctx context.Context, input SubscribeInput) (*SubscribeResult, error)
	Lookup(ctx context.Context, jobID string) (*LookupResult, error)
	Deliver(ctx context.Context, input DeliverInput) (*DeliverResult, error)
	MarkFailed(ctx context.Context, jobID string) (bool, error)
	Sweep(ctx context.Context) (*SweepResult, error)
	NotifyJobStarted(ctx context.Context, details email.JobStartedDetails) error
}

type statusClient interface {
	Status(ctx context.Context, jobID string) (*mastering.JobStatus, error)
	DownloadURL(jobID string) string
}

type service struct {
	repo     Repository
	sender   email.Sender
	guard    *redis.Guard
	status   statusClient
	metrics  *metrics.NotificationMetrics
	logg     *logger.Logger
	validate *validator.Validate
	support  string
	now      func() time.Time
}

// ServiceParams wires the coordinator.
type ServiceParams struct {
	Repo           Repository
	Sender         email.Sender
	Guard          redis.IdempotencyStore
	GuardTTL       time.Duration
	Status         statusClient
	Metrics        *metrics.NotificationMetrics
	Logger         *logger.Logger
	SupportAddress string
	Now            func() time.Time
}

type SubscribeInput struct {
	JobID      string
	Email      string
	Kind       enums.NotificationKind
	VideoTitle string
}

type SubscribeResult struct {
	ID      uuid.UUID
	JobID   string
	Email   string
	Status  enums.NotificationStatus
	Message string
	Updated bool
}

type LookupResult struct {
	Subscribed bool                     `json:"subscribed"`
	Email      string                   `json:"email,omitempty"`
	Status     enums.NotificationStatus `json:"status,omitempty"`
}

// DeliverInput asks for the completion email of one job.
type DeliverInput struct {
	JobID       string
	DownloadURL string
	VideoTitle  string
	Source      string
}

type DeliverResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	EmailID     string `json:"emailId,omitempty"`
	AlreadySent bool   `json:"alreadySent,omitempty"`
	InFlight    bool   `json:"inFlight,omitempty"`
	// Sent is true only when this call handed the email to the provider.
	Sent bool `json:"-"`
}

type SweepItem struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type SweepResult struct {
	Processed int         `json:"processed"`
	Results   []SweepItem `json:"results"`
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if params.Sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "email sender required")
	}
	ttl := params.GuardTTL
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	guard, err := redis.NewGuard(params.Guard, guardScope, ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "notification guard required")
	}
	if params.Status == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mastering status client required")
	}
	if strings.TrimSpace(params.SupportAddress) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "support address required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		sender:   params.Sender,
		guard:    guard,
		status:   params.Status,
		metrics:  params.Metrics,
		logg:     logg,
		validate: validator.New(),
		support:  params.SupportAddress,
		now:      now,
	}, nil
}

func (s *service) Subscribe(ctx context.Context, input SubscribeInput) (*SubscribeResult, error) {
	jobID := strings.TrimSpace(input.JobID)
	addr := strings.TrimSpace(input.Email)
	if jobID == "" || addr == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Missing required fields: jobId and email")
	}
	if err := s.validate.Var(addr, "email"); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid email format")
	}
	kind := input.Kind
	if kind == "" {
		kind = enums.NotificationKindMastering
	}
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification kind")
	}

	existing, err := s.repo.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification")
	}

	var title *string
	if t := strings.TrimSpace(input.VideoTitle); t != "" {
		title = &t
	}

	if existing != nil {
		return s.resubscribe(ctx, kind, jobID, addr, title)
	}

	row := &models.JobNotification{
		JobID:      jobID,
		Kind:       kind,
		Email:      addr,
		Status:     enums.NotificationStatusPending,
		VideoTitle: title,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		// A concurrent subscribe for the same job inserted first.
		if db.IsUniqueViolation(err, "") {
			return s.resubscribe(ctx, kind, jobID, addr, title)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	msg := "Successfully subscribed to notifications"
	if kind == enums.NotificationKindVideo {
		msg = "Subscribed to video completion notifications"
	}
	s.logg.Info(s.logg.WithJobID(ctx, jobID), "notification.subscribed")
	return subscribeResult(row, msg, false), nil
}

func (s *service) resubscribe(ctx context.Context, kind enums.NotificationKind, jobID, addr string, title *string) (*SubscribeResult, error) {
	if kind == enums.NotificationKindVideo {
		if err := s.repo.ResubscribeVideo(ctx, jobID, addr, title); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update notification")
		}
	} else if err := s.repo.UpdateEmail(ctx, jobID, addr); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update notification")
	}
	refreshed, err := s.repo.FindByJobID(ctx, jobID)
	if err != nil || refreshed == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload notification")
	}
	msg := "Email updated for notification"
	if kind == enums.NotificationKindVideo {
		msg = "Subscribed to video completion notifications"
	}
	return subscribeResult(refreshed, msg, true), nil
}

func subscribeResult(row *models.JobNotification, msg string, updated bool) *SubscribeResult {
	return &SubscribeResult{
		ID:      row.ID,
		JobID:   row.JobID,
		Email:   row.Email,
		Status:  row.Status,
		Message: msg,
		Updated: updated,
	}
}

func (s *service) Lookup(ctx context.Context, jobID string) (*LookupResult, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Missing jobId parameter")
	}
	row, err := s.repo.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification")
	}
	if row == nil {
		return &LookupResult{Subscribed: false}, nil
	}
	return &LookupResult{Subscribed: true, Email: row.Email, Status: row.Status}, nil
}

// Deliver is the only path that sends a completion email. Webhook, client
// fallback and sweep triggers all funnel through it.
func (s *service) Deliver(ctx context.Context, input DeliverInput) (*DeliverResult, error) {
	jobID := strings.TrimSpace(input.JobID)
	if jobID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Missing jobId")
	}
	source := input.Source
	if source == "" {
		source = SourceExplicit
	}
	ctx = s.logg.WithFields(s.logg.WithJobID(ctx, jobID), map[string]any{"source": source})

	row, err := s.repo.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification")
	}
	if row == nil {
		s.metrics.Observe("", source, metrics.ResultNoSubscribe)
		return &DeliverResult{Success: false, Message: msgNoSubscription}, nil
	}
	kind := string(row.Kind)

	switch row.Status {
	case enums.NotificationStatusSent:
		s.metrics.Observe(kind, source, metrics.ResultAlreadySent)
		return &DeliverResult{Success: true, Message: msgAlreadySent, AlreadySent: true}, nil
	case enums.NotificationStatusFailed:
		s.metrics.Observe(kind, source, metrics.ResultSkipped)
		s.logg.Info(ctx, "notification.skipped")
		return &DeliverResult{Success: false, Message: "Job failed; no completion email is sent"}, nil
	}

	msg, logType, logSubject, downloadURL, err := s.compose(row, input)
	if err != nil {
		return nil, err
	}

	acquired, err := s.guard.Acquire(ctx, jobID, source)
	if err != nil {
		// The conditional update below still bounds the transition to sent.
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "notification guard unavailable")
		acquired = true
	}
	if !acquired {
		s.metrics.Observe(kind, source, metrics.ResultInFlight)
		return &DeliverResult{Success: true, Message: "Email send already in progress for this job", InFlight: true}, nil
	}

	providerID, sendErr := s.sender.Send(ctx, msg)
	if sendErr != nil {
		s.writeLog(ctx, row.Email, logSubject, logType, nil, enums.EmailLogStatusFailed)
		if err := s.guard.Release(ctx, jobID); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "release notification guard")
		}
		s.metrics.Observe(kind, source, metrics.ResultFailed)
		s.logg.Error(ctx, "notification.send_failed", sendErr)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, sendErr, "Failed to send email")
	}

	transitioned, err := s.repo.MarkSent(ctx, jobID, downloadURL, s.now().UTC())
	if err != nil {
		s.logg.Error(ctx, "mark notification sent", err)
	} else if !transitioned {
		s.logg.Warn(ctx, "notification already transitioned to sent")
	}
	s.writeLog(ctx, row.Email, logSubject, logType, &providerID, enums.EmailLogStatusSent)
	s.metrics.Observe(kind, source, metrics.ResultSent)
	s.logg.Info(ctx, "notification.sent")

	return &DeliverResult{Success: true, Message: "Email sent successfully", EmailID: providerID, Sent: true}, nil
}

func (s *service) compose(row *models.JobNotification, input DeliverInput) (email.Message, string, string, string, error) {
	msg := email.Message{To: []string{row.Email}, Cc: []string{s.support}}

	if row.Kind == enums.NotificationKindVideo {
		downloadURL := strings.TrimSpace(input.DownloadURL)
		if downloadURL == "" && row.DownloadURL != nil {
			downloadURL = *row.DownloadURL
		}
		if downloadURL == "" {
			return msg, "", "", "", pkgerrors.New(pkgerrors.CodeValidation, "Missing required fields: jobId and downloadUrl are required")
		}
		title := strings.TrimSpace(input.VideoTitle)
		if title == "" && row.VideoTitle != nil {
			title = *row.VideoTitle
		}
		html, err := email.VideoComplete(downloadURL, title)
		if err != nil {
			return msg, "", "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render video email")
		}
		msg.Subject = email.SubjectVideoComplete
		msg.HTML = html
		return msg, logTypeVid, email.SubjectVideoCompleteLog, downloadURL, nil
	}

	downloadURL := strings.TrimSpace(input.DownloadURL)
	if downloadURL == "" {
		downloadURL = s.status.DownloadURL(row.JobID)
	}
	html, err := email.MasteringComplete(downloadURL)
	if err != nil {
		return msg, "", "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render mastering email")
	}
	msg.Subject = email.SubjectMasteringComplete
	msg.HTML = html
	return msg, logTypeDone, email.SubjectMasteringCompleteLog, downloadURL, nil
}

func (s *service) writeLog(ctx context.Context, recipient, subject, logType string, providerID *string, status enums.EmailLogStatus) {
	entry := &models.EmailLog{
		Recipient:  recipient,
		Subject:    subject,
		Type:       logType,
		ProviderID: providerID,
		Status:     status,
	}
	if err := s.repo.CreateLog(ctx, entry); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "write email log")
	}
}

// MarkFailed moves a pending subscription to failed. Sent rows are left alone.
func (s *service) MarkFailed(ctx context.Context, jobID string) (bool, error) {
	if strings.TrimSpace(jobID) == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "Missing jobId")
	}
	updated, err := s.repo.MarkFailed(ctx, jobID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification failed")
	}
	if updated {
		s.logg.Info(s.logg.WithJobID(ctx, jobID), "notification.job_failed")
	}
	return updated, nil
}

// Sweep polls the Mastering API for every pending mastering subscription and
// delivers or fails it. Per-job errors are collected and returned together.
func (s *service) Sweep(ctx context.Context) (*SweepResult, error) {
	rows, err := s.repo.ListPending(ctx, enums.NotificationKindMastering, sweepBatch)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending notifications")
	}

	result := &SweepResult{Processed: len(rows), Results: make([]SweepItem, 0, len(rows))}
	var errs error
	for _, row := range rows {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		item, err := s.sweepOne(ctx, row.JobID)
		if err != nil {
			item.Error = err.Error()
			errs = multierr.Append(errs, fmt.Errorf("job %s: %w", row.JobID, err))
		}
		result.Results = append(result.Results, item)
	}
	return result, errs
}

func (s *service) sweepOne(ctx context.Context, jobID string) (SweepItem, error) {
	item := SweepItem{JobID: jobID}
	remote, err := s.status.Status(ctx, jobID)
	if err != nil {
		item.Status = "error"
		return item, err
	}
	status, err := enums.ParseJobStatus(remote.Status)
	if err != nil {
		item.Status = "error"
		return item, err
	}

	switch status {
	case enums.JobStatusCompleted:
		res, err := s.Deliver(ctx, DeliverInput{JobID: jobID, Source: SourceSweep})
		if err != nil {
			item.Status = "send_failed"
			return item, err
		}
		switch {
		case res.Sent:
			item.Status = "sent"
		case res.AlreadySent:
			item.Status = "already_sent"
		case res.InFlight:
			item.Status = "in_flight"
		default:
			item.Status = "skipped"
		}
	case enums.JobStatusFailed:
		if _, err := s.MarkFailed(ctx, jobID); err != nil {
			item.Status = "error"
			return item, err
		}
		item.Status = "job_failed"
	default:
		item.Status = string(status)
	}
	return item, nil
}

// NotifyJobStarted emails the support address about a new job. Provider
// errors are logged and reported as a plain failure.
func (s *service) NotifyJobStarted(ctx context.Context, details email.JobStartedDetails) error {
	if strings.TrimSpace(details.JobID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "Missing jobId")
	}
	ctx = s.logg.WithJobID(ctx, details.JobID)
	html, err := email.JobStarted(details)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render admin alert")
	}
	subject := email.JobStartedSubject(details.FileName)
	providerID, err := s.sender.Send(ctx, email.Message{
		To:      []string{s.support},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		s.logg.Error(ctx, "admin.job_started_failed", err)
		s.writeLog(ctx, s.support, subject, logTypeJob, nil, enums.EmailLogStatusFailed)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("admin alert not sent"), "Failed to send email")
	}
	s.writeLog(ctx, s.support, subject, logTypeJob, &providerID, enums.EmailLogStatusSent)
	return nil
}
