package cron

import (
	"context"
	"fmt"

	"github.com/castmaster/castmaster-backend/internal/notifications"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

type notificationSweeper interface {
	Sweep(ctx context.Context) (*notifications.SweepResult, error)
}

type NotificationSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper notificationSweeper
}

// NewNotificationSweepJob delivers completion emails for pending mastering
// jobs whose webhook and client fallback never arrived.
func NewNotificationSweepJob(params NotificationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("notification sweeper required")
	}
	return &notificationSweepJob{logg: params.Logger, sweeper: params.Sweeper}, nil
}

type notificationSweepJob struct {
	logg    *logger.Logger
	sweeper notificationSweeper
}

func (j *notificationSweepJob) Name() string { return "notification-sweep" }

func (j *notificationSweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Sweep(ctx)
	if result != nil {
		counts := map[string]int{}
		for _, item := range result.Results {
			counts[item.Status]++
		}
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"processed": result.Processed,
			"statuses":  counts,
		})
		j.logg.Info(logCtx, "notification sweep complete")
	}
	if err != nil {
		return fmt.Errorf("notification sweep: %w", err)
	}
	return nil
}
