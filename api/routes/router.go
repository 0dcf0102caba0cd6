package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/castmaster/castmaster-backend/api/controllers"
	webhookcontrollers "github.com/castmaster/castmaster-backend/api/controllers/webhooks"
	"github.com/castmaster/castmaster-backend/api/middleware"
	"github.com/castmaster/castmaster-backend/internal/credits"
	"github.com/castmaster/castmaster-backend/internal/files"
	"github.com/castmaster/castmaster-backend/internal/jobs"
	"github.com/castmaster/castmaster-backend/internal/notifications"
	"github.com/castmaster/castmaster-backend/internal/subscriptions"
	"github.com/castmaster/castmaster-backend/internal/usage"
	"github.com/castmaster/castmaster-backend/pkg/config"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/metrics"
	"github.com/castmaster/castmaster-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         *redis.Client
	Usage         usage.Service
	Files         files.Service
	Jobs          jobs.Service
	Notifications notifications.Service
	Subscriptions subscriptions.Service
	Credits       credits.Service
	StripeEvents  webhookcontrollers.StripeEventProcessor
	Gate          *metrics.GateMetrics
	Gatherer      prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	salt := cfg.Webhook.HashSalt()

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App),
		middleware.Session(cfg.Session, logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(d)))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	subscribePolicy := middleware.NewThrottlePolicy(
		"subscribe",
		cfg.Throttle.SubscribeWindow,
		cfg.Throttle.SubscribeIPLimit,
		cfg.Throttle.SubscribeEmailLimit,
	)
	throttled := func(next http.Handler) http.Handler { return next }
	if d.Redis != nil {
		throttled = middleware.Throttle(subscribePolicy, d.Redis, logg)
	}

	r.Route("/api", func(r chi.Router) {
		// Anonymous surfaces. The gate resolves guests by IP hash.
		r.Get("/rate-limit/check", controllers.RateLimitCheck(d.Usage, salt, d.Gate, logg))
		r.Post("/rate-limit/check", controllers.RateLimitRecord(d.Usage, salt, d.Gate, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.With(throttled).Post("/subscribe", controllers.NotificationSubscribe(d.Notifications, logg))
			r.Get("/subscribe", controllers.NotificationLookup(d.Notifications, logg))
			r.Post("/send", controllers.NotificationSend(d.Notifications, logg))
			r.Get("/send", controllers.NotificationSweep(d.Notifications, logg))
			r.Post("/job-failed", controllers.NotificationJobFailed(d.Notifications, logg))
		})
		r.Route("/video", func(r chi.Router) {
			r.With(throttled).Post("/subscribe", controllers.VideoSubscribe(d.Notifications, logg))
			r.Post("/notify-complete", controllers.VideoNotifyComplete(d.Notifications, logg))
		})
		r.Post("/admin/notify-job-started", controllers.AdminJobStarted(d.Notifications, logg))
		r.Post("/stripe/webhook", webhookcontrollers.StripeWebhook(d.StripeEvents, cfg.Stripe.Secret, logg))

		r.Get("/webhooks/job-complete", webhookcontrollers.Probe("job-complete"))
		r.Get("/webhooks/video-complete", webhookcontrollers.Probe("video-complete"))

		// Mastering worker callbacks.
		r.Group(func(r chi.Router) {
			r.Use(middleware.WebhookSecret(cfg.Webhook.Secret, logg))
			r.Post("/webhooks/job-complete", webhookcontrollers.JobComplete(d.Jobs, logg))
			r.Post("/webhooks/video-complete", webhookcontrollers.VideoComplete(d.Jobs, logg))
			r.Post("/files/blob-upload-url", controllers.BlobUploadURL(d.Files, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(logg))

			r.Get("/storage/check", controllers.StorageCheck(d.Files, d.Gate, logg))
			r.Get("/subscription/status", controllers.SubscriptionStatus(d.Subscriptions, logg))

			r.Route("/files", func(r chi.Router) {
				r.Post("/upload", controllers.FilesUpload(d.Files, logg))
				r.Get("/list", controllers.FilesList(d.Files, logg))
				r.Delete("/delete", controllers.FilesDelete(d.Files, logg))
				r.Post("/premium-job", controllers.PremiumJobTrack(d.Jobs, logg))
				r.Get("/free-user", controllers.FreeFilesList(d.Jobs, logg))
				r.Post("/free-user", controllers.FreeFileCreate(d.Jobs, logg))
			})

			r.Get("/hq-purchase/status", controllers.HQStatus(d.Credits, logg))
			r.Post("/hq-purchase/status", controllers.HQConsume(d.Credits, logg))

			r.Route("/stripe", func(r chi.Router) {
				r.Post("/create-checkout", controllers.StripeCreateCheckout(d.Subscriptions, logg))
				r.Post("/portal", controllers.StripePortal(d.Subscriptions, logg))
				r.Post("/purchase-hq", controllers.StripePurchaseHQ(d.Credits, logg))
			})
		})
	})

	return r
}

func readinessDeps(d Deps) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if d.DB != nil {
		deps["db"] = d.DB
	}
	if d.Redis != nil {
		deps["redis"] = d.Redis
	}
	return deps
}
