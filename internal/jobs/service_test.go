package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/castmaster/castmaster-backend/internal/files"
	"github.com/castmaster/castmaster-backend/internal/notifications"
	"github.com/castmaster/castmaster-backend/pkg/db/dbtest"
	"github.com/castmaster/castmaster-backend/pkg/db/models"
	"github.com/castmaster/castmaster-backend/pkg/enums"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
)

type fakeOutputs struct {
	recorded []files.OutputFile
	err      error
}

func (f *fakeOutputs) RecordOutput(_ context.Context, output files.OutputFile) (*models.SubscriberFile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.recorded = append(f.recorded, output)
	return &models.SubscriberFile{FileName: output.FileName}, nil
}

type fakeNotifier struct {
	subscribed map[string]bool
	failed     []string
	delivered  []notifications.DeliverInput
	result     *notifications.DeliverResult
	err        error
}

func (f *fakeNotifier) Lookup(_ context.Context, jobID string) (*notifications.LookupResult, error) {
	return &notifications.LookupResult{Subscribed: f.subscribed[jobID]}, nil
}

func (f *fakeNotifier) Deliver(_ context.Context, input notifications.DeliverInput) (*notifications.DeliverResult, error) {
	f.delivered = append(f.delivered, input)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeNotifier) MarkFailed(_ context.Context, jobID string) (bool, error) {
	f.failed = append(f.failed, jobID)
	return true, nil
}

type links struct{}

func (links) DownloadURL(jobID string) string { return "https://api.example/download/" + jobID }

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      Service
	db       *gorm.DB
	repo     Repository
	outputs  *fakeOutputs
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &fixture{
		db:       conn,
		repo:     NewRepository(conn),
		outputs:  &fakeOutputs{},
		notifier: &fakeNotifier{subscribed: map[string]bool{}},
	}
	svc, err := NewService(ServiceParams{
		Repo:          f.repo,
		Outputs:       f.outputs,
		Notifications: f.notifier,
		Links:         links{},
		Now:           func() time.Time { return testNow },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestTrackPremiumJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.TrackPremiumJob(ctx, "u1", TrackInput{JobID: "job-1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.TrackPremiumJob(ctx, "", TrackInput{JobID: "job-1", FileName: "ep.wav"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	job, err := f.svc.TrackPremiumJob(ctx, "u1", TrackInput{JobID: "job-1", FileName: "ep.wav", FileSize: 10})
	require.NoError(t, err)
	assert.Equal(t, enums.PremiumJobStatusProcessing, job.Status)

	found, err := f.repo.FindPremiumJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "u1", found.UserID)

	missing, err := f.repo.FindPremiumJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFreeFilesExpireAfterTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file, err := f.svc.TrackFreeFile(ctx, "u1", TrackInput{JobID: "job-1", FileName: "ep.wav"})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(24*time.Hour), file.ExpiresAt)

	stale := &models.FreeUserFile{UserID: "u1", JobID: "job-0", FileName: "old.wav", ExpiresAt: testNow.Add(-time.Minute)}
	require.NoError(t, f.db.Create(stale).Error)

	listed, err := f.svc.ListFreeFiles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "job-1", listed[0].JobID)

	deleted, err := f.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestCompleteJobWithBlobData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.TrackPremiumJob(ctx, "u1", TrackInput{JobID: "job-1", FileName: "ep.wav"})
	require.NoError(t, err)
	f.notifier.subscribed["job-1"] = true
	f.notifier.result = &notifications.DeliverResult{Success: true, Message: "Email sent successfully", EmailID: "email_1", Sent: true}

	res, err := f.svc.CompleteJob(ctx, JobCompletion{
		JobID:  "job-1",
		Status: "completed",
		BlobData: &BlobData{
			BlobURL:        "https://files.example/subscribers/s1/ep_mastered.wav",
			BlobPathname:   "subscribers/s1/ep_mastered.wav",
			SubscriptionID: "s1",
			OutputFileName: "ep_mastered.wav",
			FileSize:       99,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, &CompletionResult{Success: true, Message: "Email sent successfully", EmailSent: true, EmailID: "email_1"}, res)

	require.Len(t, f.outputs.recorded, 1)
	assert.Equal(t, "subscribers/s1/ep_mastered.wav", f.outputs.recorded[0].ObjectKey)

	job, err := f.repo.FindPremiumJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PremiumJobStatusCompleted, job.Status)

	require.Len(t, f.notifier.delivered, 1)
	assert.Equal(t, notifications.SourceWebhook, f.notifier.delivered[0].Source)
	assert.Equal(t, "https://api.example/download/job-1", f.notifier.delivered[0].DownloadURL)
}

func TestCompleteJobOutputFailureMarksPremiumFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.TrackPremiumJob(ctx, "u1", TrackInput{JobID: "job-1", FileName: "ep.wav"})
	require.NoError(t, err)
	f.outputs.err = errors.New("db down")

	res, err := f.svc.CompleteJob(ctx, JobCompletion{JobID: "job-1", Status: "completed", BlobData: &BlobData{SubscriptionID: "s1"}})
	require.NoError(t, err)
	assert.False(t, res.EmailSent)

	job, err := f.repo.FindPremiumJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PremiumJobStatusFailed, job.Status)
}

func TestCompleteJobFailedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.TrackFreeFile(ctx, "u1", TrackInput{JobID: "job-1", FileName: "ep.wav"})
	require.NoError(t, err)
	f.notifier.subscribed["job-1"] = true

	res, err := f.svc.CompleteJob(ctx, JobCompletion{JobID: "job-1", Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, "Job status is failed, no email sent", res.Message)
	assert.False(t, res.EmailSent)
	assert.Equal(t, []string{"job-1"}, f.notifier.failed)
	assert.Empty(t, f.notifier.delivered)

	var file models.FreeUserFile
	require.NoError(t, f.db.Where("job_id = ?", "job-1").First(&file).Error)
	assert.Equal(t, enums.JobStatusFailed, file.Status)
	require.NotNil(t, file.DownloadURL)
}

func TestCompleteJobWithoutSubscription(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CompleteJob(context.Background(), JobCompletion{JobID: "job-1", Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, &CompletionResult{Success: true, Message: "No notification subscription found for this job"}, res)
	assert.Empty(t, f.notifier.delivered)

	_, err = f.svc.CompleteJob(context.Background(), JobCompletion{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCompleteVideoPassesTitleAndURL(t *testing.T) {
	f := newFixture(t)
	f.notifier.subscribed["vid-1"] = true
	f.notifier.result = &notifications.DeliverResult{Success: true, Message: "Email already sent for this job", AlreadySent: true}

	res, err := f.svc.CompleteVideo(context.Background(), VideoCompletion{JobID: "vid-1", Status: "completed", DownloadURL: "https://cdn.example/v.mp4", VideoTitle: "Ep 3"})
	require.NoError(t, err)
	assert.False(t, res.EmailSent)
	require.Len(t, f.notifier.delivered, 1)
	assert.Equal(t, "Ep 3", f.notifier.delivered[0].VideoTitle)
	assert.Equal(t, "https://cdn.example/v.mp4", f.notifier.delivered[0].DownloadURL)
}
