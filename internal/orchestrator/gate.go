package orchestrator

import (
	"context"

	"github.com/castmaster/castmaster-backend/pkg/appclient"
	"github.com/castmaster/castmaster-backend/pkg/logger"
)

// Tiers.
const (
	TierFree       = "free"
	TierSubscriber = "subscriber"
)

type entitlementAPI interface {
	CheckUsage(ctx context.Context, userID string) (*appclient.UsageStatus, error)
	CheckStorage(ctx context.Context) (*appclient.StorageStatus, error)
}

// Decision is the outcome of one entitlement check.
type Decision struct {
	Allowed    bool
	Tier       string
	Remaining  int
	Limit      int
	Used       int
	NearLimit  bool
	FailedOpen bool
	Storage    *appclient.StorageStatus
}

// Gate decides whether a job may start. A failing check never blocks.
type Gate struct {
	api  entitlementAPI
	logg *logger.Logger
}

func NewGate(api entitlementAPI, logg *logger.Logger) *Gate {
	if logg == nil {
		logg = logger.Discard()
	}
	return &Gate{api: api, logg: logg}
}

func (g *Gate) Check(ctx context.Context, account Account) Decision {
	if account.Subscriber {
		return g.checkStorage(ctx)
	}
	return g.checkUsage(ctx, account.UserID)
}

func (g *Gate) checkStorage(ctx context.Context) Decision {
	status, err := g.api.CheckStorage(ctx)
	if err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "gate.storage_check_failed")
		return Decision{Allowed: true, Tier: TierSubscriber, FailedOpen: true}
	}
	return Decision{
		Allowed:   status.CanUpload,
		Tier:      TierSubscriber,
		NearLimit: status.NearLimit,
		Storage:   status,
	}
}

func (g *Gate) checkUsage(ctx context.Context, userID string) Decision {
	status, err := g.api.CheckUsage(ctx, userID)
	if err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "gate.usage_check_failed")
		return Decision{Allowed: true, Tier: TierFree, FailedOpen: true}
	}
	return Decision{
		Allowed:    status.Allowed,
		Tier:       TierFree,
		Remaining:  status.Remaining,
		Limit:      status.Limit,
		Used:       status.Used,
		FailedOpen: status.Error != "",
	}
}

func (d Decision) denial() error {
	if d.Allowed {
		return nil
	}
	reason := ReasonQuotaExceeded
	if d.Tier == TierSubscriber {
		reason = ReasonStorageFull
	}
	return &DeniedError{Decision: d, Reason: reason}
}
