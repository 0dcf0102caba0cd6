package types

import (
	"time"

	"github.com/castmaster/castmaster-backend/pkg/db/models"
)

type PremiumJob struct {
	ID        string `json:"id"`
	JobID     string `json:"jobId"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func NewPremiumJob(j models.PremiumJob) PremiumJob {
	return PremiumJob{
		ID:        j.ID.String(),
		JobID:     j.JobID,
		FileName:  j.FileName,
		FileSize:  j.FileSize,
		Status:    string(j.Status),
		CreatedAt: j.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// FreeFile is a free user's output, downloadable until ExpiresAt.
type FreeFile struct {
	ID          string  `json:"id"`
	JobID       string  `json:"jobId"`
	FileName    string  `json:"fileName"`
	FileSize    int64   `json:"fileSize"`
	DownloadURL *string `json:"downloadUrl"`
	Status      string  `json:"status"`
	ExpiresAt   string  `json:"expiresAt"`
	CreatedAt   string  `json:"createdAt"`
}

func NewFreeFile(f models.FreeUserFile) FreeFile {
	return FreeFile{
		ID:          f.ID.String(),
		JobID:       f.JobID,
		FileName:    f.FileName,
		FileSize:    f.FileSize,
		DownloadURL: f.DownloadURL,
		Status:      string(f.Status),
		ExpiresAt:   f.ExpiresAt.UTC().Format(time.RFC3339Nano),
		CreatedAt:   f.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
