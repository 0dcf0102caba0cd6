package cron

import (
	"context"
	"fmt"

	"github.com/castmaster/castmaster-backend/pkg/logger"
)

type expiredFileCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type FreeFileCleanupJobParams struct {
	Logger  *logger.Logger
	Cleaner expiredFileCleaner
}

func NewFreeFileCleanupJob(params FreeFileCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cleaner == nil {
		return nil, fmt.Errorf("free file cleaner required")
	}
	return &freeFileCleanupJob{logg: params.Logger, cleaner: params.Cleaner}, nil
}

type freeFileCleanupJob struct {
	logg    *logger.Logger
	cleaner expiredFileCleaner
}

func (j *freeFileCleanupJob) Name() string { return "free-file-cleanup" }

func (j *freeFileCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.cleaner.CleanupExpired(ctx)
	if err != nil {
		return fmt.Errorf("free file cleanup: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_deleted", deleted), "free file cleanup complete")
	return nil
}
