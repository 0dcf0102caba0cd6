package files

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/castmaster/castmaster-backend/pkg/config"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	"github.com/castmaster/castmaster-backend/pkg/enums"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/storage"
	"github.com/castmaster/castmaster-backend/pkg/types"
)

type subscriptionFinder interface {
	FindByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	FindByID(ctx context.Context, id string) (*models.Subscription, error)
}

type premiumJobFinder interface {
	FindPremiumJob(ctx context.Context, jobID string) (*models.PremiumJob, error)
}

// StorageCheck is the subscriber-tier entitlement snapshot.
type StorageCheck struct {
	IsSubscriber bool  `json:"isSubscriber"`
	CanUpload    bool  `json:"canUpload"`
	Used         int64 `json:"used"`
	Limit        int64 `json:"limit"`
	Remaining    int64 `json:"remaining"`
	NearLimit    bool  `json:"nearLimit"`
	AtLimit      bool  `json:"atLimit"`
	FileCount    *int  `json:"fileCount,omitempty"`
}

// UploadInput is one multipart upload into durable storage.
type UploadInput struct {
	UserID      string
	FileName    string
	Size        int64
	ContentType string
	Body        io.Reader
	FileType    enums.FileType
	JobID       string
}

// OutputFile is a job artifact the worker already wrote to the bucket.
type OutputFile struct {
	SubscriptionID string
	JobID          string
	FileName       string
	FileSize       int64
	ObjectKey      string
	URL            string
}

// ListView answers GET /api/files/list.
type ListView struct {
	Files   []types.StoredFile `json:"files"`
	Storage types.StorageUsage `json:"storage"`
}

// BlobUploadRequest is sent by the mastering worker before it uploads an output.
type BlobUploadRequest struct {
	JobID    string `json:"jobId" validate:"required"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

// BlobUploadGrant tells the worker whether and where to upload.
type BlobUploadGrant struct {
	ShouldUpload   bool   `json:"shouldUpload"`
	Reason         string `json:"reason,omitempty"`
	UploadURL      string `json:"uploadUrl,omitempty"`
	ObjectKey      string `json:"objectKey,omitempty"`
	PublicURL      string `json:"publicUrl,omitempty"`
	OutputFileName string `json:"outputFileName,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

// Service manages subscriber durable storage.
type Service interface {
	Check(ctx context.Context, userID string) (StorageCheck, error)
	Upload(ctx context.Context, input UploadInput) (types.StoredFile, error)
	List(ctx context.Context, userID string) (ListView, error)
	Delete(ctx context.Context, userID string, fileID uuid.UUID) error
	GrantBlobUpload(ctx context.Context, req BlobUploadRequest) (BlobUploadGrant, error)
	RecordOutput(ctx context.Context, output OutputFile) (*models.SubscriberFile, error)
}

// ServiceParams wires the file service.
type ServiceParams struct {
	Repo          Repository
	Subscriptions subscriptionFinder
	PremiumJobs   premiumJobFinder
	Store         storage.ObjectStore
	Quota         config.QuotaConfig
	PresignTTL    time.Duration
	Now           func() time.Time
}

type service struct {
	repo          Repository
	subscriptions subscriptionFinder
	premiumJobs   premiumJobFinder
	store         storage.ObjectStore
	limit         int64
	warn          int64
	presignTTL    time.Duration
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "file repository required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscription finder required")
	}
	if params.PremiumJobs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "premium job finder required")
	}
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "object store required")
	}
	if params.Quota.StorageLimitBytes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "storage limit must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	ttl := params.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &service{
		repo:          params.Repo,
		subscriptions: params.Subscriptions,
		premiumJobs:   params.PremiumJobs,
		store:         params.Store,
		limit:         params.Quota.StorageLimitBytes,
		warn:          params.Quota.StorageWarnBytes,
		presignTTL:    ttl,
		now:           now,
	}, nil
}

// Check reports the subscriber storage gate. Non-subscribers may always upload
// because their quota is the free weekly limit instead.
func (s *service) Check(ctx context.Context, userID string) (StorageCheck, error) {
	sub, err := s.activeSubscription(ctx, userID)
	if err != nil {
		return StorageCheck{}, err
	}
	if sub == nil {
		return StorageCheck{CanUpload: true}, nil
	}
	used, count, err := s.repo.Usage(ctx, sub.ID)
	if err != nil {
		return StorageCheck{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to check storage")
	}
	return s.evaluate(used, int(count)), nil
}

func (s *service) evaluate(used int64, count int) StorageCheck {
	usage := types.NewStorageUsage(used, s.limit)
	atLimit := used >= s.limit
	return StorageCheck{
		IsSubscriber: true,
		CanUpload:    !atLimit,
		Used:         used,
		Limit:        s.limit,
		Remaining:    usage.Remaining,
		NearLimit:    used >= s.warn,
		AtLimit:      atLimit,
		FileCount:    &count,
	}
}

func (s *service) Upload(ctx context.Context, input UploadInput) (types.StoredFile, error) {
	name := strings.TrimSpace(path.Base(input.FileName))
	if input.Body == nil || name == "" || name == "." || name == "/" {
		return types.StoredFile{}, pkgerrors.New(pkgerrors.CodeValidation, "No file provided")
	}
	fileType := input.FileType
	if fileType == "" {
		fileType = enums.FileTypeInput
	}
	if !fileType.IsValid() {
		return types.StoredFile{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid fileType")
	}

	sub, err := s.activeSubscription(ctx, input.UserID)
	if err != nil {
		return types.StoredFile{}, err
	}
	if sub == nil {
		return types.StoredFile{}, pkgerrors.New(pkgerrors.CodeForbidden, "Active subscription required")
	}
	if fileType == enums.FileTypeOutput {
		existing, err := s.existingOutput(ctx, sub.ID, input.JobID)
		if err != nil {
			return types.StoredFile{}, err
		}
		if existing != nil {
			return types.NewStoredFile(*existing), nil
		}
	}
	used, _, err := s.repo.Usage(ctx, sub.ID)
	if err != nil {
		return types.StoredFile{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to upload file")
	}
	if used+input.Size > s.limit {
		return types.StoredFile{}, pkgerrors.New(pkgerrors.CodeStorageLimit, "Storage limit exceeded. Please delete some files.").
			WithDetails(types.NewStorageUsage(used, s.limit))
	}

	key := fmt.Sprintf("subscribers/%s/%d-%s", input.UserID, s.now().UnixMilli(), name)
	obj, err := s.store.Put(ctx, key, input.Body, input.Size, input.ContentType)
	if err != nil {
		return types.StoredFile{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to upload file")
	}

	size := input.Size
	if obj.Size > 0 {
		size = obj.Size
	}
	record := &models.SubscriberFile{
		SubscriptionID: sub.ID,
		FileName:       name,
		FileSize:       size,
		ObjectKey:      obj.Key,
		URL:            obj.URL,
		FileType:       fileType,
		JobID:          optional(input.JobID),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		_ = s.store.Delete(ctx, obj.Key)
		return types.StoredFile{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to upload file")
	}
	return types.NewStoredFile(*record), nil
}

func (s *service) List(ctx context.Context, userID string) (ListView, error) {
	sub, err := s.activeSubscription(ctx, userID)
	if err != nil {
		return ListView{}, err
	}
	if sub == nil {
		return ListView{Files: []types.StoredFile{}, Storage: types.NewStorageUsage(0, s.limit)}, nil
	}
	rows, err := s.repo.ListBySubscription(ctx, sub.ID)
	if err != nil {
		return ListView{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to list files")
	}
	var used int64
	views := make([]types.StoredFile, 0, len(rows))
	for _, row := range rows {
		used += row.FileSize
		views = append(views, types.NewStoredFile(row))
	}
	return ListView{Files: views, Storage: types.NewStorageUsage(used, s.limit)}, nil
}

// Delete removes the object before the row so a failed object delete keeps the
// file visible and retryable.
func (s *service) Delete(ctx context.Context, userID string, fileID uuid.UUID) error {
	file, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to delete file")
	}
	if file == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "File not found")
	}
	owner, err := s.subscriptions.FindByID(ctx, file.SubscriptionID.String())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to delete file")
	}
	if owner == nil || owner.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "Not authorized")
	}
	if err := s.store.Delete(ctx, file.ObjectKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to delete file")
	}
	if err := s.repo.Delete(ctx, file.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to delete file")
	}
	return nil
}

func (s *service) GrantBlobUpload(ctx context.Context, req BlobUploadRequest) (BlobUploadGrant, error) {
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		return BlobUploadGrant{}, pkgerrors.New(pkgerrors.CodeValidation, "Missing required field: jobId")
	}
	job, err := s.premiumJobs.FindPremiumJob(ctx, jobID)
	if err != nil {
		return BlobUploadGrant{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load premium job")
	}
	if job == nil {
		return BlobUploadGrant{Reason: "Not a premium user job"}, nil
	}
	sub, err := s.activeSubscription(ctx, job.UserID)
	if err != nil {
		return BlobUploadGrant{}, err
	}
	if sub == nil {
		return BlobUploadGrant{Reason: "No active subscription"}, nil
	}
	used, _, err := s.repo.Usage(ctx, sub.ID)
	if err != nil {
		return BlobUploadGrant{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum storage")
	}
	if req.FileSize > 0 && used+req.FileSize > s.limit {
		return BlobUploadGrant{Reason: "Storage limit exceeded"}, nil
	}

	outputName := MasteredName(job.FileName)
	key := fmt.Sprintf("subscribers/%s/%d_%s", sub.ID, s.now().UnixMilli(), outputName)
	uploadURL, err := s.store.PresignPut(ctx, key, "audio/wav", s.presignTTL)
	if err != nil {
		return BlobUploadGrant{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "presign upload")
	}
	return BlobUploadGrant{
		ShouldUpload:   true,
		UploadURL:      uploadURL,
		ObjectKey:      key,
		PublicURL:      s.store.PublicURL(key),
		OutputFileName: outputName,
		SubscriptionID: sub.ID.String(),
		UserID:         job.UserID,
	}, nil
}

// RecordOutput stores the StorageRecord for an artifact the worker uploaded.
// A job keeps a single output record; a repeat returns the first one.
func (s *service) RecordOutput(ctx context.Context, output OutputFile) (*models.SubscriberFile, error) {
	if strings.TrimSpace(output.SubscriptionID) == "" || strings.TrimSpace(output.ObjectKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription and object key required")
	}
	sub, err := s.subscriptions.FindByID(ctx, output.SubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	existing, err := s.existingOutput(ctx, sub.ID, output.JobID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	url := output.URL
	if url == "" {
		url = s.store.PublicURL(output.ObjectKey)
	}
	record := &models.SubscriberFile{
		SubscriptionID: sub.ID,
		FileName:       output.FileName,
		FileSize:       output.FileSize,
		ObjectKey:      output.ObjectKey,
		URL:            url,
		FileType:       enums.FileTypeOutput,
		JobID:          optional(output.JobID),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record output file")
	}
	return record, nil
}

// existingOutput finds the output already recorded for jobID. Both the worker
// callback and the client's cloud copy may deliver the same job.
func (s *service) existingOutput(ctx context.Context, subscriptionID uuid.UUID, jobID string) (*models.SubscriberFile, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, nil
	}
	file, err := s.repo.FindOutput(ctx, subscriptionID, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up job output")
	}
	return file, nil
}

func (s *service) activeSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	sub, err := s.subscriptions.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if !sub.Active() {
		return nil, nil
	}
	return sub, nil
}

// MasteredName swaps the extension for _mastered.wav.
func MasteredName(fileName string) string {
	base := strings.TrimSuffix(fileName, path.Ext(fileName))
	if base == "" {
		base = "output"
	}
	return base + "_mastered.wav"
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
