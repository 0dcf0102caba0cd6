package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/castmaster/castmaster-backend/api/routes"
	"github.com/castmaster/castmaster-backend/internal/credits"
	"github.com/castmaster/castmaster-backend/internal/files"
	"github.com/castmaster/castmaster-backend/internal/jobs"
	"github.com/castmaster/castmaster-backend/internal/notifications"
	"github.com/castmaster/castmaster-backend/internal/subscriptions"
	"github.com/castmaster/castmaster-backend/internal/usage"
	stripewebhook "github.com/castmaster/castmaster-backend/internal/webhooks/stripe"
	"github.com/castmaster/castmaster-backend/pkg/config"
	"github.com/castmaster/castmaster-backend/pkg/db"
	"github.com/castmaster/castmaster-backend/pkg/email"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
	"github.com/castmaster/castmaster-backend/pkg/metrics"
	"github.com/castmaster/castmaster-backend/pkg/redis"
	"github.com/castmaster/castmaster-backend/pkg/storage"
	s3store "github.com/castmaster/castmaster-backend/pkg/storage/s3"
	pkgstripe "github.com/castmaster/castmaster-backend/pkg/stripe"
)

// wire builds the service graph behind the router.
func wire(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, registry *prometheus.Registry) (routes.Deps, error) {
	masteringClient, err := mastering.NewClient(
		cfg.Mastering.BaseURL,
		mastering.WithTimeouts(cfg.Mastering.RequestTimeout, cfg.Mastering.UploadTimeout),
	)
	if err != nil {
		return routes.Deps{}, fmt.Errorf("mastering client: %w", err)
	}

	store, err := objectStore(ctx, cfg, logg)
	if err != nil {
		return routes.Deps{}, err
	}

	sender, err := email.NewResendSender(cfg.Email)
	if err != nil {
		return routes.Deps{}, fmt.Errorf("email sender: %w", err)
	}

	var stripeAPI subscriptions.StripeClient
	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	switch {
	case err == nil:
		stripeAPI = subscriptions.NewStripeClient(stripeClient)
	case cfg.App.IsProd():
		return routes.Deps{}, fmt.Errorf("stripe client: %w", err)
	default:
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe disabled; checkout endpoints will fail")
	}

	gdb := dbClient.DB()
	subscriptionRepo := subscriptions.NewRepository(gdb)
	fileRepo := files.NewRepository(gdb)
	jobRepo := jobs.NewRepository(gdb)

	usageService, err := usage.NewService(usage.NewRepository(gdb), dbClient, cfg.Quota, nil)
	if err != nil {
		return routes.Deps{}, fmt.Errorf("usage service: %w", err)
	}

	fileService, err := files.NewService(files.ServiceParams{
		Repo:          fileRepo,
		Subscriptions: subscriptionRepo,
		PremiumJobs:   jobRepo,
		Store:         store,
		Quota:         cfg.Quota,
		PresignTTL:    cfg.ObjectStore.PresignTTL,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("file service: %w", err)
	}

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repo:           notifications.NewRepository(gdb),
		Sender:         sender,
		Guard:          redisClient,
		Status:         masteringClient,
		Metrics:        metrics.NewNotificationMetrics(registry),
		Logger:         logg,
		SupportAddress: cfg.Email.SupportAddress,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("notification service: %w", err)
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
		return routes.Deps{}, fmt.Errorf("job service: %w", err)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:         subscriptionRepo,
		Files:        fileRepo,
		Stripe:       stripeAPI,
		PriceID:      cfg.Stripe.SubscriptionPriceID,
		AppURL:       cfg.App.PublicURL,
		StorageLimit: cfg.Quota.StorageLimitBytes,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("subscription service: %w", err)
	}

	hqCents, currency := stripeClient.HQPrice()
	creditParams := credits.ServiceParams{
		Repo:          credits.NewRepository(gdb),
		Subscriptions: subscriptionService,
		PriceCents:    hqCents,
		Currency:      currency,
		AppURL:        cfg.App.PublicURL,
		Logger:        logg,
	}
	if stripeAPI != nil {
		creditParams.Checkout = stripeAPI
	}
	creditService, err := credits.NewService(creditParams)
	if err != nil {
		return routes.Deps{}, fmt.Errorf("credit service: %w", err)
	}

	stripeEvents, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Subscriptions: subscriptionService,
		Credits:       creditService,
		Guard:         redisClient,
		Logger:        logg,
	})
	if err != nil {
		return routes.Deps{}, fmt.Errorf("stripe webhook service: %w", err)
	}

	return routes.Deps{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Usage:         usageService,
		Files:         fileService,
		Jobs:          jobService,
		Notifications: notificationService,
		Subscriptions: subscriptionService,
		Credits:       creditService,
		StripeEvents:  stripeEvents,
		Gate:          metrics.NewGateMetrics(registry),
		Gatherer:      registry,
	}, nil
}

// objectStore returns the S3-compatible bucket, or an in-memory store in dev
// when no bucket is configured.
func objectStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (storage.ObjectStore, error) {
	if cfg.ObjectStore.Bucket == "" && cfg.App.IsDev() {
		logg.Warn(ctx, "object store bucket not configured; using in-memory storage")
		return storage.NewMemory(cfg.App.PublicURL + "/blobs"), nil
	}
	client, err := s3store.NewClient(ctx, cfg.ObjectStore, logg)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	return client, nil
}
