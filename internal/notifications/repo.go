package notifications

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/pkg/db"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	"github.com/castmaster/castmaster-backend/pkg/enums"
)

// Repository exposes persistence helpers for job notifications and the email log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByJobID(ctx context.Context, jobID string) (*models.JobNotification, error)
	Create(ctx context.Context, notification *models.JobNotification) error
	UpdateEmail(ctx context.Context, jobID, email string) error
	ResubscribeVideo(ctx context.Context, jobID, email string, videoTitle *string) error
	MarkSent(ctx context.Context, jobID, downloadURL string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, jobID string) (bool, error)
	ListPending(ctx context.Context, kind enums.NotificationKind, limit int) ([]models.JobNotification, error)
	CreateLog(ctx context.Context, entry *models.EmailLog) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repositoryImpl{db: conn}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByJobID(ctx context.Context, jobID string) (*models.JobNotification, error) {
	var row models.JobNotification
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&row).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.JobNotification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repositoryImpl) UpdateEmail(ctx context.Context, jobID, email string) error {
	return r.db.WithContext(ctx).
		Model(&models.JobNotification{}).
		Where("job_id = ?", jobID).
		Update("email", email).Error
}

// ResubscribeVideo refreshes a video row. A row that already sent keeps its status.
func (r *repositoryImpl) ResubscribeVideo(ctx context.Context, jobID, email string, videoTitle *string) error {
	updates := map[string]any{
		"email":       email,
		"video_title": videoTitle,
		"kind":        enums.NotificationKindVideo,
		"status": gorm.Expr("CASE WHEN status = ? THEN status ELSE ? END",
			enums.NotificationStatusSent, enums.NotificationStatusPending),
	}
	return r.db.WithContext(ctx).
		Model(&models.JobNotification{}).
		Where("job_id = ?", jobID).
		Updates(updates).Error
}

// MarkSent performs the single transition into sent. It reports false when the
// row was already sent or does not exist.
func (r *repositoryImpl) MarkSent(ctx context.Context, jobID, downloadURL string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.JobNotification{}).
		Where("job_id = ? AND status <> ?", jobID, enums.NotificationStatusSent).
		Updates(map[string]any{
			"status":        enums.NotificationStatusSent,
			"download_url":  downloadURL,
			"email_sent_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) MarkFailed(ctx context.Context, jobID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.JobNotification{}).
		Where("job_id = ? AND status = ?", jobID, enums.NotificationStatusPending).
		Update("status", enums.NotificationStatusFailed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) ListPending(ctx context.Context, kind enums.NotificationKind, limit int) ([]models.JobNotification, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND kind = ?", enums.NotificationStatusPending, kind).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.JobNotification
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) CreateLog(ctx context.Context, entry *models.EmailLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
