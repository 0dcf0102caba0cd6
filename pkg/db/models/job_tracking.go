package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/pkg/enums"
)

// PremiumJob marks a subscriber job whose output the worker may copy into
// durable storage.
type PremiumJob struct {
	ID        uuid.UUID              `gorm:"type:uuid;primaryKey"`
	UserID    string                 `gorm:"column:user_id;not null;index"`
	JobID     string                 `gorm:"column:job_id;not null;uniqueIndex"`
	FileName  string                 `gorm:"column:file_name;not null"`
	FileSize  int64                  `gorm:"column:file_size;not null"`
	Status    enums.PremiumJobStatus `gorm:"column:status;not null;default:'processing'"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (PremiumJob) TableName() string { return "premium_jobs" }

func (j *PremiumJob) BeforeCreate(*gorm.DB) error {
	ensureID(&j.ID)
	return nil
}

// FreeUserFile is a signed-in free user's temporary output, listed until it expires.
type FreeUserFile struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID      string          `gorm:"column:user_id;not null;index"`
	JobID       string          `gorm:"column:job_id;not null;index"`
	FileName    string          `gorm:"column:file_name;not null"`
	FileSize    int64           `gorm:"column:file_size;not null"`
	DownloadURL *string         `gorm:"column:download_url"`
	Status      enums.JobStatus `gorm:"column:status;not null;default:'processing'"`
	ExpiresAt   time.Time       `gorm:"column:expires_at;not null;index"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (FreeUserFile) TableName() string { return "free_user_files" }

func (f *FreeUserFile) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}
