package usage

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/pkg/config"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
)

const checkFailedMarker = "check_failed"

// Status is the free-tier entitlement snapshot.
type Status struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Recorded  bool   `json:"recorded,omitempty"`
	Error     string `json:"error,omitempty"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service enforces the weekly free quota.
type Service interface {
	Check(ctx context.Context, subject Subject) (Status, error)
	Record(ctx context.Context, subject Subject, jobID string) (Status, error)
	FailOpen() Status
}

type service struct {
	repo   Repository
	tx     txRunner
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewService builds the quota service.
func NewService(repo Repository, tx txRunner, quota config.QuotaConfig, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "usage repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if quota.WeeklyLimit <= 0 || quota.Window <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quota limit and window must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, tx: tx, limit: quota.WeeklyLimit, window: quota.Window, now: now}, nil
}

func (s *service) Check(ctx context.Context, subject Subject) (Status, error) {
	used, err := s.repo.CountSince(ctx, subject, s.windowStart())
	if err != nil {
		return Status{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count usage")
	}
	return s.snapshot(int(used)), nil
}

// Record re-checks the quota and spends one unit inside a single transaction
// holding the subject's lock. At the limit nothing is written and Allowed is
// false.
func (s *service) Record(ctx context.Context, subject Subject, jobID string) (Status, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Status{}, pkgerrors.New(pkgerrors.CodeValidation, "Missing jobId")
	}

	var status Status
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockSubject(ctx, subject); err != nil {
			return err
		}
		used, err := repo.CountSince(ctx, subject, s.windowStart())
		if err != nil {
			return err
		}
		if int(used) >= s.limit {
			status = s.snapshot(int(used))
			return nil
		}

		entry := &models.UsageLog{JobID: jobID, CreatedAt: s.now().UTC()}
		if subject.IsGuest() {
			hash := subject.IPHash
			entry.IPHash = &hash
		} else {
			id := subject.UserID
			entry.UserID = &id
		}
		if err := repo.Create(ctx, entry); err != nil {
			return err
		}
		status = s.snapshot(int(used) + 1)
		status.Allowed = true
		status.Recorded = true
		return nil
	})
	if err != nil {
		return Status{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "Failed to record usage")
	}
	return status, nil
}

// FailOpen is the answer given when the quota store cannot be read.
func (s *service) FailOpen() Status {
	return Status{Allowed: true, Remaining: s.limit, Limit: s.limit, Used: 0, Error: checkFailedMarker}
}

func (s *service) windowStart() time.Time {
	return s.now().Add(-s.window)
}

func (s *service) snapshot(used int) Status {
	remaining := s.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Status{Allowed: used < s.limit, Remaining: remaining, Limit: s.limit, Used: used}
}
