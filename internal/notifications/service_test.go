package notifications

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/pkg/db/dbtest"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	"github.com/castmaster/castmaster-backend/pkg/email"
	"github.com/castmaster/castmaster-backend/pkg/enums"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
	hold chan struct{}
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) (string, error) {
	if f.hold != nil {
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "email_1", nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeGuard struct {
	mu   sync.Mutex
	keys map[string]string
	err  error
}

func newFakeGuard() *fakeGuard { return &fakeGuard{keys: map[string]string{}} }

func (g *fakeGuard) Get(_ context.Context, key string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keys[key], nil
}

func (g *fakeGuard) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if _, ok := g.keys[key]; ok {
		return false, nil
	}
	g.keys[key] = value.(string)
	return true, nil
}

func (g *fakeGuard) IdempotencyKey(scope, id string) string {
	return "cm:idempotency:" + scope + ":" + id
}

func (g *fakeGuard) Del(_ context.Context, keys ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range keys {
		delete(g.keys, k)
	}
	return nil
}

type fakeStatus map[string]string

func (f fakeStatus) Status(_ context.Context, jobID string) (*mastering.JobStatus, error) {
	status, ok := f[jobID]
	if !ok {
		return nil, &mastering.StatusError{Status: 404, Detail: "Job not found"}
	}
	return &mastering.JobStatus{JobID: jobID, Status: status}, nil
}

func (f fakeStatus) DownloadURL(jobID string) string {
	return "https://api.example/download/" + jobID
}

type fixture struct {
	svc    Service
	db     *gorm.DB
	sender *fakeSender
	guard  *fakeGuard
	status fakeStatus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &fixture{db: conn, sender: &fakeSender{}, guard: newFakeGuard(), status: fakeStatus{}}
	svc, err := NewService(ServiceParams{
		Repo:           NewRepository(conn),
		Sender:         f.sender,
		Guard:          f.guard,
		Status:         f.status,
		SupportAddress: "support@castmaster.app",
		Now:            func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) row(t *testing.T, jobID string) *models.JobNotification {
	t.Helper()
	var row models.JobNotification
	require.NoError(t, f.db.Where("job_id = ?", jobID).First(&row).Error)
	return &row
}

func (f *fixture) logs(t *testing.T) []models.EmailLog {
	t.Helper()
	var rows []models.EmailLog
	require.NoError(t, f.db.Order("created_at").Find(&rows).Error)
	return rows
}

func TestSubscribeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "job-1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Subscribe(ctx, SubscribeInput{JobID: "job-1", Email: "not-an-email"})
	require.Error(t, err)
	assert.Equal(t, "Invalid email format", pkgerrors.As(err).Message())
}

func TestSubscribeThenUpdateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "job-1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.False(t, created.Updated)
	assert.Equal(t, "Successfully subscribed to notifications", created.Message)

	updated, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "job-1", Email: "b@example.com"})
	require.NoError(t, err)
	assert.True(t, updated.Updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Email updated for notification", updated.Message)

	lookup, err := f.svc.Lookup(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, &LookupResult{Subscribed: true, Email: "b@example.com", Status: enums.NotificationStatusPending}, lookup)

	missing, err := f.svc.Lookup(ctx, "job-404")
	require.NoError(t, err)
	assert.False(t, missing.Subscribed)
}

func TestDeliverNoSubscription(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Deliver(context.Background(), DeliverInput{JobID: "job-1", Source: SourceWebhook})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, msgNoSubscription, res.Message)
	assert.Zero(t, f.sender.count())
}

func TestDeliverSendsOnceAcrossTriggers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "job-1", Email: "host@example.com"})
	require.NoError(t, err)

	first, err := f.svc.Deliver(ctx, DeliverInput{JobID: "job-1", Source: SourceWebhook})
	require.NoError(t, err)
	assert.True(t, first.Sent)
	assert.Equal(t, "email_1", first.EmailID)

	second, err := f.svc.Deliver(ctx, DeliverInput{JobID: "job-1", Source: SourceClient})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.AlreadySent)
	assert.False(t, second.Sent)

	require.Equal(t, 1, f.sender.count())
	msg := f.sender.sent[0]
	assert.Equal(t, []string{"host@example.com"}, msg.To)
	assert.Equal(t, []string{"support@castmaster.app"}, msg.Cc)
	assert.Equal(t, email.SubjectMasteringComplete, msg.Subject)
	assert.Contains(t, msg.HTML, "https://api.example/download/job-1")

	row := f.row(t, "job-1")
	assert.Equal(t, enums.NotificationStatusSent, row.Status)
	require.NotNil(t, row.EmailSentAt)
	require.NotNil(t, row.DownloadURL)

	logs := f.logs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, enums.EmailLogStatusSent, logs[0].Status)
	assert.Equal(t, "completion", logs[0].Type)
	assert.Equal(t, email.SubjectMasteringCompleteLog, logs[0].Subject)
}

func TestDeliverConcurrentTriggers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "job-1", Email: "host@example.com"})
	require.NoError(t, err)

	f.sender.hold = make(chan struct{})
	var sent, inFlight int32
	var wg sync.WaitGroup
	for _, source := range []string{SourceWebhook, SourceClient, SourceSweep, SourceExplicit} {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			res, err := f.svc.Deliver(ctx, DeliverInput{JobID: "job-1", Source: source})
			if !assert.NoError(t, err) {
				return
			}
			if res.Sent {
				atomic.AddInt32(&sent, 1)
			}
			if res.InFlight || res.AlreadySent {
				atomic.AddInt32(&inFlight, 1)
			}
		}(source)
	}
	time.Sleep(50 * time.Millisecond)
	close(f.sender.hold)
	wg.Wait()

	assert.EqualValues(t, 1, sent)
	assert.EqualValues(t, 3, inFlight)
	assert.Equal(t, 1, f.sender.count())
}

func TestDeliverProviderErrorKeepsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "job-1", Email: "host@example.com"})
	require.NoError(t, err)

	f.sender.err = errors.New("resend down")
	_, err = f.svc.Deliver(ctx, DeliverInput{JobID: "job-1", Source: SourceWebhook})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, enums.NotificationStatusPending, f.row(t, "job-1").Status)
	assert.Empty(t, f.guard.keys)

	logs := f.logs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, enums.EmailLogStatusFailed, logs[0].Status)

	f.sender.err = nil
	res, err := f.svc.Deliver(ctx, DeliverInput{JobID: "job-1", Source: SourceSweep})
	require.NoError(t, err)
	assert.True(t, res.Sent)
}

func TestDeliverGuardUnavailableStillSends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "job-1", Email: "host@example.com"})
	require.NoError(t, err)
	f.guard.err = errors.New("redis down")

	res, err := f.svc.Deliver(ctx, DeliverInput{JobID: "job-1"})
	require.NoError(t, err)
	assert.True(t, res.Sent)
}

func TestFailedJobNeverGetsEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "job-1", Email: "host@example.com"})
	require.NoError(t, err)

	updated, err := f.svc.MarkFailed(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, updated)

	res, err := f.svc.Deliver(ctx, DeliverInput{JobID: "job-1", Source: SourceClient})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, f.sender.count())
}

func TestMarkFailedLeavesSentAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "job-1", Email: "host@example.com"})
	require.NoError(t, err)
	_, err = f.svc.Deliver(ctx, DeliverInput{JobID: "job-1"})
	require.NoError(t, err)

	updated, err := f.svc.MarkFailed(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, enums.NotificationStatusSent, f.row(t, "job-1").Status)
}

func TestVideoDeliver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "vid-1", Email: "host@example.com", Kind: enums.NotificationKindVideo})
	require.NoError(t, err)

	_, err = f.svc.Deliver(ctx, DeliverInput{JobID: "vid-1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	res, err := f.svc.Deliver(ctx, DeliverInput{JobID: "vid-1", DownloadURL: "https://cdn.example/v.mp4", VideoTitle: "Episode 12"})
	require.NoError(t, err)
	assert.True(t, res.Sent)
	require.Equal(t, 1, f.sender.count())
	assert.Equal(t, email.SubjectVideoComplete, f.sender.sent[0].Subject)
	assert.Contains(t, f.sender.sent[0].HTML, "Episode 12")
	assert.Equal(t, "video_completion", f.logs(t)[0].Type)
}

func TestVideoResubscribeKeepsSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "vid-1", Email: "host@example.com", Kind: enums.NotificationKindVideo})
	require.NoError(t, err)
	_, err = f.svc.Deliver(ctx, DeliverInput{JobID: "vid-1", DownloadURL: "https://cdn.example/v.mp4"})
	require.NoError(t, err)

	res, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: "vid-1", Email: "other@example.com", Kind: enums.NotificationKindVideo, VideoTitle: "New"})
	require.NoError(t, err)
	assert.Equal(t, enums.NotificationStatusSent, res.Status)
	assert.Equal(t, "other@example.com", res.Email)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"done", "broken", "busy", "gone"} {
		_, err := f.svc.Subscribe(ctx, SubscribeInput{JobID: id, Email: "host@example.com"})
		require.NoError(t, err)
	}
	f.status["done"] = "completed"
	f.status["broken"] = "failed"
	f.status["busy"] = "processing"

	result, err := f.svc.Sweep(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job gone")
	require.NotNil(t, result)
	assert.Equal(t, 4, result.Processed)

	byJob := map[string]string{}
	for _, item := range result.Results {
		byJob[item.JobID] = item.Status
	}
	assert.Equal(t, map[string]string{
		"done":   "sent",
		"broken": "job_failed",
		"busy":   "processing",
		"gone":   "error",
	}, byJob)
	assert.Equal(t, 1, f.sender.count())
	assert.Equal(t, enums.NotificationStatusFailed, f.row(t, "broken").Status)
}

func TestNotifyJobStarted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.NotifyJobStarted(ctx, email.JobStartedDetails{JobID: "job-1", FileName: "ep1.wav", FileSize: 2048}))
	require.Equal(t, 1, f.sender.count())
	assert.Equal(t, []string{"support@castmaster.app"}, f.sender.sent[0].To)
	assert.Equal(t, "🎙️ New Mastering Job: ep1.wav", f.sender.sent[0].Subject)

	f.sender.err = errors.New("boom")
	err := f.svc.NotifyJobStarted(ctx, email.JobStartedDetails{JobID: "job-2"})
	require.Error(t, err)
	assert.NotContains(t, pkgerrors.As(err).Message(), "boom")
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
