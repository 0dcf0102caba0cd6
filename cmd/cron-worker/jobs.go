package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/castmaster/castmaster-backend/internal/cron"
	"github.com/castmaster/castmaster-backend/internal/files"
	"github.com/castmaster/castmaster-backend/internal/jobs"
	"github.com/castmaster/castmaster-backend/internal/notifications"
	"github.com/castmaster/castmaster-backend/internal/subscriptions"
	"github.com/castmaster/castmaster-backend/pkg/config"
	"github.com/castmaster/castmaster-backend/pkg/db"
	"github.com/castmaster/castmaster-backend/pkg/email"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
	"github.com/castmaster/castmaster-backend/pkg/metrics"
	"github.com/castmaster/castmaster-backend/pkg/redis"
	"github.com/castmaster/castmaster-backend/pkg/storage"
	s3store "github.com/castmaster/castmaster-backend/pkg/storage/s3"
)

// buildJobs wires the notification sweep and the free-file cleanup.
func buildJobs(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) ([]cron.Job, error) {
	masteringClient, err := mastering.NewClient(
		cfg.Mastering.BaseURL,
		mastering.WithTimeouts(cfg.Mastering.RequestTimeout, cfg.Mastering.UploadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("mastering client: %w", err)
	}
	sender, err := email.NewResendSender(cfg.Email)
	if err != nil {
		return nil, fmt.Errorf("email sender: %w", err)
	}

	var store storage.ObjectStore
	if cfg.ObjectStore.Bucket == "" && cfg.App.IsDev() {
		store = storage.NewMemory(cfg.App.PublicURL + "/blobs")
	} else {
		client, err := s3store.NewClient(ctx, cfg.ObjectStore, logg)
		if err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		store = client
	}

	gdb := dbClient.DB()
	jobRepo := jobs.NewRepository(gdb)

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repo:           notifications.NewRepository(gdb),
		Sender:         sender,
		Guard:          redisClient,
		Status:         masteringClient,
		Metrics:        metrics.NewNotificationMetrics(prometheus.DefaultRegisterer),
		Logger:         logg,
		SupportAddress: cfg.Email.SupportAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}

	fileService, err := files.NewService(files.ServiceParams{
		Repo:          files.NewRepository(gdb),
		Subscriptions: subscriptions.NewRepository(gdb),
		PremiumJobs:   jobRepo,
		Store:         store,
		Quota:         cfg.Quota,
		PresignTTL:    cfg.ObjectStore.PresignTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("file service: %w", err)
	}

	jobService, err := jobs.NewService(jobs.ServiceParams{
		Repo:          jobRepo,
		Outputs:       fileService,
		Notifications: notificationService,
		Links:         masteringClient,
		Logger:        logg,
		FreeFileTTL:   cfg.Quota.FreeFileTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("job service: %w", err)
	}

	sweep, err := cron.NewNotificationSweepJob(cron.NotificationSweepJobParams{Logger: logg, Sweeper: notificationService})
	if err != nil {
		return nil, err
	}
	cleanup, err := cron.NewFreeFileCleanupJob(cron.FreeFileCleanupJobParams{Logger: logg, Cleaner: jobService})
	if err != nil {
		return nil, err
	}
	return []cron.Job{sweep, cleanup}, nil
}
