package jobs

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/pkg/db"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	"github.com/castmaster/castmaster-backend/pkg/enums"
)

// Repository persists premium job tracking and free-user file rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePremiumJob(ctx context.Context, job *models.PremiumJob) error
	FindPremiumJob(ctx context.Context, jobID string) (*models.PremiumJob, error)
	SetPremiumJobStatus(ctx context.Context, jobID string, status enums.PremiumJobStatus) (bool, error)
	CreateFreeFile(ctx context.Context, file *models.FreeUserFile) error
	ListFreeFiles(ctx context.Context, userID string, now time.Time) ([]models.FreeUserFile, error)
	UpdateFreeFilesForJob(ctx context.Context, jobID, downloadURL string, status enums.JobStatus) (int64, error)
	DeleteExpiredFreeFiles(ctx context.Context, now time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) Repository {
	return &repositoryImpl{db: conn}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreatePremiumJob(ctx context.Context, job *models.PremiumJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repositoryImpl) FindPremiumJob(ctx context.Context, jobID string) (*models.PremiumJob, error) {
	var job models.PremiumJob
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repositoryImpl) SetPremiumJobStatus(ctx context.Context, jobID string, status enums.PremiumJobStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PremiumJob{}).
		Where("job_id = ?", jobID).
		Update("status", status)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) CreateFreeFile(ctx context.Context, file *models.FreeUserFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *repositoryImpl) ListFreeFiles(ctx context.Context, userID string, now time.Time) ([]models.FreeUserFile, error) {
	var rows []models.FreeUserFile
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) UpdateFreeFilesForJob(ctx context.Context, jobID, downloadURL string, status enums.JobStatus) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FreeUserFile{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{"download_url": downloadURL, "status": status})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) DeleteExpiredFreeFiles(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.FreeUserFile{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
