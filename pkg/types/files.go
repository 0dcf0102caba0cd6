package types

import (
	"time"

	"github.com/castmaster/castmaster-backend/pkg/db/models"
)

// StoredFile is the public view of a subscriber's durable file.
type StoredFile struct {
	ID        string  `json:"id"`
	FileName  string  `json:"fileName"`
	FileSize  int64   `json:"fileSize"`
	URL       string  `json:"url"`
	FileType  string  `json:"fileType"`
	JobID     *string `json:"jobId"`
	CreatedAt string  `json:"createdAt"`
}

// StorageUsage summarizes a subscriber's quota.
type StorageUsage struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// NewStoredFile maps a SubscriberFile row to its public view.
func NewStoredFile(f models.SubscriberFile) StoredFile {
	return StoredFile{
		ID:        f.ID.String(),
		FileName:  f.FileName,
		FileSize:  f.FileSize,
		URL:       f.URL,
		FileType:  string(f.FileType),
		JobID:     f.JobID,
		CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// NewStorageUsage clamps remaining at zero.
func NewStorageUsage(used, limit int64) StorageUsage {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return StorageUsage{Used: used, Limit: limit, Remaining: remaining}
}
