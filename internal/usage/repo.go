package usage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/pkg/db/models"
)

// Repository exposes persistence helpers for usage logs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockSubject(ctx context.Context, subject Subject) error
	CountSince(ctx context.Context, subject Subject, since time.Time) (int64, error)
	Create(ctx context.Context, entry *models.UsageLog) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// LockSubject holds a transaction-scoped advisory lock on the subject so
// concurrent records count and insert one at a time. Only Postgres needs it;
// SQLite already serialises writers.
func (r *repositoryImpl) LockSubject(ctx context.Context, subject Subject) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", subjectLockKey(subject)).Error
}

func subjectLockKey(subject Subject) string {
	if subject.IsGuest() {
		return "usage:ip:" + subject.IPHash
	}
	return "usage:user:" + subject.UserID
}

// CountSince counts usage rows at or after since. Guest subjects only count
// rows without a user id so a shared IP never consumes a signed-in user's quota.
func (r *repositoryImpl) CountSince(ctx context.Context, subject Subject, since time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.UsageLog{}).Where("created_at >= ?", since.UTC())
	if subject.IsGuest() {
		query = query.Where("ip_hash = ? AND user_id IS NULL", subject.IPHash)
	} else {
		query = query.Where("user_id = ?", subject.UserID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repositoryImpl) Create(ctx context.Context, entry *models.UsageLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
