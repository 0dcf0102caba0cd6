package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageLog is one spent unit of the free weekly quota. Exactly one of UserID or
// IPHash identifies the subject.
type UsageLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    *string   `gorm:"column:user_id;index"`
	IPHash    *string   `gorm:"column:ip_hash;index"`
	JobID     string    `gorm:"column:job_id;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index"`
}

func (UsageLog) TableName() string { return "usage_logs" }

func (u *UsageLog) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
