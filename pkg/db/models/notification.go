package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/pkg/enums"
)

// JobNotification records a user's interest in the completion email for a job.
// At most one transition into sent happens per job id.
type JobNotification struct {
	ID          uuid.UUID                `gorm:"type:uuid;primaryKey"`
	JobID       string                   `gorm:"column:job_id;not null;uniqueIndex"`
	Kind        enums.NotificationKind   `gorm:"column:kind;not null;default:'mastering'"`
	Email       string                   `gorm:"column:email;not null"`
	Status      enums.NotificationStatus `gorm:"column:status;not null;default:'pending'"`
	DownloadURL *string                  `gorm:"column:download_url"`
	VideoTitle  *string                  `gorm:"column:video_title"`
	EmailSentAt *time.Time               `gorm:"column:email_sent_at"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (JobNotification) TableName() string { return "job_notifications" }

func (n *JobNotification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}

// EmailLog is an audit row per provider call.
type EmailLog struct {
	ID         uuid.UUID            `gorm:"type:uuid;primaryKey"`
	Recipient  string               `gorm:"column:recipient;not null"`
	Subject    string               `gorm:"column:subject;not null"`
	Type       string               `gorm:"column:type;not null"`
	ProviderID *string              `gorm:"column:provider_id"`
	Status     enums.EmailLogStatus `gorm:"column:status;not null"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (EmailLog) TableName() string { return "email_logs" }

func (l *EmailLog) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
