package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/pkg/enums"
)

// SubscriberFile is a durable StorageRecord counted against the subscriber quota.
type SubscriberFile struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	SubscriptionID uuid.UUID      `gorm:"column:subscription_id;type:uuid;not null;index"`
	FileName       string         `gorm:"column:file_name;not null"`
	FileSize       int64          `gorm:"column:file_size;not null"`
	ObjectKey      string         `gorm:"column:object_key;not null"`
	URL            string         `gorm:"column:url;not null"`
	FileType       enums.FileType `gorm:"column:file_type;not null;default:'input'"`
	JobID          *string        `gorm:"column:job_id"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (SubscriberFile) TableName() string { return "subscriber_files" }

func (f *SubscriberFile) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}
