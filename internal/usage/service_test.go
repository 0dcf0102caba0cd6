package usage

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/pkg/config"
	"github.com/castmaster/castmaster-backend/pkg/db"
	"github.com/castmaster/castmaster-backend/pkg/db/dbtest"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, clock *fakeClock) Service {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), db.Wrap(conn), config.QuotaConfig{WeeklyLimit: 2, Window: 7 * 24 * time.Hour}, clock.Now)
	require.NoError(t, err)
	return svc
}

func TestRecord_GuestWeeklyWindow(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	svc := newTestService(t, clock)
	guest := GuestSubject("203.0.113.9", "salt")

	first, err := svc.Record(ctx, guest, "job-1")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.True(t, first.Recorded)
	assert.Equal(t, 1, first.Remaining)

	clock.now = start.Add(time.Hour)
	second, err := svc.Record(ctx, guest, "job-2")
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)
	assert.Equal(t, 2, second.Used)

	clock.now = start.Add(2 * time.Hour)
	third, err := svc.Record(ctx, guest, "job-3")
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.False(t, third.Recorded)

	check, err := svc.Check(ctx, guest)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, 2, check.Used)

	clock.now = start.Add(7*24*time.Hour + time.Hour)
	check, err = svc.Check(ctx, guest)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 1, check.Used)
}

func TestCheck_GuestIgnoresSignedInRows(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	svc := newTestService(t, clock)

	_, err := svc.Record(ctx, UserSubject("user-1"), "job-1")
	require.NoError(t, err)
	_, err = svc.Record(ctx, UserSubject("user-1"), "job-2")
	require.NoError(t, err)

	guest, err := svc.Check(ctx, GuestSubject("198.51.100.1", "salt"))
	require.NoError(t, err)
	assert.True(t, guest.Allowed)
	assert.Equal(t, 0, guest.Used)

	user, err := svc.Check(ctx, UserSubject("user-1"))
	require.NoError(t, err)
	assert.False(t, user.Allowed)
}

func TestRecord_RequiresJobID(t *testing.T) {
	svc := newTestService(t, &fakeClock{now: time.Now()})
	_, err := svc.Record(context.Background(), UserSubject("u"), "  ")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type failingRepo struct{}

func (failingRepo) WithTx(*gorm.DB) Repository { return failingRepo{} }
func (failingRepo) LockSubject(context.Context, Subject) error { return nil }
func (failingRepo) CountSince(context.Context, Subject, time.Time) (int64, error) {
	return 0, errors.New("db down")
}
func (failingRepo) Create(context.Context, *models.UsageLog) error { return nil }

type orderedRepo struct {
	Repository
	calls *[]string
}

func (r orderedRepo) WithTx(tx *gorm.DB) Repository {
	return orderedRepo{Repository: r.Repository.WithTx(tx), calls: r.calls}
}

func (r orderedRepo) LockSubject(ctx context.Context, subject Subject) error {
	*r.calls = append(*r.calls, "lock:"+subjectLockKey(subject))
	return r.Repository.LockSubject(ctx, subject)
}

func (r orderedRepo) CountSince(ctx context.Context, subject Subject, since time.Time) (int64, error) {
	*r.calls = append(*r.calls, "count")
	return r.Repository.CountSince(ctx, subject, since)
}

func (r orderedRepo) Create(ctx context.Context, entry *models.UsageLog) error {
	*r.calls = append(*r.calls, "create")
	return r.Repository.Create(ctx, entry)
}

func TestRecord_LocksSubjectBeforeCounting(t *testing.T) {
	conn := dbtest.Open(t)
	var calls []string
	repo := orderedRepo{Repository: NewRepository(conn), calls: &calls}
	svc, err := NewService(repo, db.Wrap(conn), config.QuotaConfig{WeeklyLimit: 2, Window: time.Hour}, nil)
	require.NoError(t, err)

	status, err := svc.Record(context.Background(), UserSubject("user-7"), "job-1")
	require.NoError(t, err)
	assert.True(t, status.Recorded)
	assert.Equal(t, []string{"lock:usage:user:user-7", "count", "create"}, calls)

	guest := GuestSubject("203.0.113.9", "salt")
	assert.Equal(t, "usage:ip:"+guest.IPHash, subjectLockKey(guest))
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func TestCheck_ErrorAndFailOpen(t *testing.T) {
	svc, err := NewService(failingRepo{}, passthroughTx{}, config.QuotaConfig{WeeklyLimit: 2, Window: time.Hour}, nil)
	require.NoError(t, err)

	_, err = svc.Check(context.Background(), UserSubject("u"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	open := svc.FailOpen()
	assert.Equal(t, Status{Allowed: true, Remaining: 2, Limit: 2, Used: 0, Error: "check_failed"}, open)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(nil, passthroughTx{}, config.QuotaConfig{WeeklyLimit: 2, Window: time.Hour}, nil)
	require.Error(t, err)
	_, err = NewService(failingRepo{}, nil, config.QuotaConfig{WeeklyLimit: 2, Window: time.Hour}, nil)
	require.Error(t, err)
}

func TestResolveSubject(t *testing.T) {
	h := http.Header{}
	h.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	h.Set("X-Real-IP", "10.0.0.2")

	assert.Equal(t, "user:sess", ResolveSubject("sess", "param", h, "salt").Key())
	assert.Equal(t, "user:param", ResolveSubject("", "param", h, "salt").Key())

	guest := ResolveSubject("", "", h, "salt")
	assert.True(t, guest.IsGuest())
	assert.Equal(t, HashIP("203.0.113.5", "salt"), guest.IPHash)
	assert.Len(t, guest.IPHash, 64)
}

func TestClientIP_Precedence(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, "unknown", ClientIP(h))

	h.Set("CF-Connecting-IP", "192.0.2.3")
	assert.Equal(t, "192.0.2.3", ClientIP(h))

	h.Set("X-Real-IP", "192.0.2.2")
	assert.Equal(t, "192.0.2.2", ClientIP(h))

	h.Set("X-Forwarded-For", "192.0.2.1")
	assert.Equal(t, "192.0.2.1", ClientIP(h))
}
