package files

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/pkg/db"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	"github.com/castmaster/castmaster-backend/pkg/enums"
)

// Repository exposes persistence helpers for subscriber files.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, file *models.SubscriberFile) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.SubscriberFile, error)
	FindOutput(ctx context.Context, subscriptionID uuid.UUID, jobID string) (*models.SubscriberFile, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriberFile, error)
	Usage(ctx context.Context, subscriptionID uuid.UUID) (used int64, count int64, err error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a subscriber file repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repositoryImpl{db: conn}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, file *models.SubscriberFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.SubscriberFile, error) {
	var file models.SubscriberFile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// FindOutput returns the output record already stored for jobID, or nil.
func (r *repositoryImpl) FindOutput(ctx context.Context, subscriptionID uuid.UUID, jobID string) (*models.SubscriberFile, error) {
	var file models.SubscriberFile
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND job_id = ? AND file_type = ?", subscriptionID, jobID, enums.FileTypeOutput).
		Order("created_at ASC").
		First(&file).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// ListBySubscription returns files newest first.
func (r *repositoryImpl) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriberFile, error) {
	var files []models.SubscriberFile
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&files).Error
	return files, err
}

func (r *repositoryImpl) Usage(ctx context.Context, subscriptionID uuid.UUID) (int64, int64, error) {
	var row struct {
		Used  int64
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.SubscriberFile{}).
		Select("COALESCE(SUM(file_size), 0) AS used, COUNT(*) AS count").
		Where("subscription_id = ?", subscriptionID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Used, row.Count, nil
}

func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.SubscriberFile{}).Error
}
