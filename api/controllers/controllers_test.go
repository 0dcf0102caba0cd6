package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castmaster/castmaster-backend/api/middleware"
	"github.com/castmaster/castmaster-backend/internal/credits"
	"github.com/castmaster/castmaster-backend/internal/files"
	"github.com/castmaster/castmaster-backend/internal/notifications"
	"github.com/castmaster/castmaster-backend/internal/usage"
	"github.com/castmaster/castmaster-backend/pkg/auth"
	"github.com/castmaster/castmaster-backend/pkg/email"
	"github.com/castmaster/castmaster-backend/pkg/enums"
	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/types"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func asUser(req *http.Request, id string) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), auth.Identity{UserID: id, Email: id + "@example.com"}))
}

type stubUsage struct {
	checkErr  error
	recordErr error
	subject   usage.Subject
}

func (s *stubUsage) Check(_ context.Context, subject usage.Subject) (usage.Status, error) {
	s.subject = subject
	if s.checkErr != nil {
		return usage.Status{}, s.checkErr
	}
	return usage.Status{Allowed: true, Remaining: 1, Limit: 2, Used: 1}, nil
}

func (s *stubUsage) Record(_ context.Context, subject usage.Subject, _ string) (usage.Status, error) {
	s.subject = subject
	if s.recordErr != nil {
		return usage.Status{}, s.recordErr
	}
	return usage.Status{Allowed: true, Remaining: 0, Limit: 2, Used: 2, Recorded: true}, nil
}

func (s *stubUsage) FailOpen() usage.Status {
	return usage.Status{Allowed: true, Remaining: 2, Limit: 2, Error: "check_failed"}
}

func TestRateLimitCheckFailsOpen(t *testing.T) {
	svc := &stubUsage{checkErr: errors.New("db down")}
	rec := serve(RateLimitCheck(svc, "salt", nil, logger.Discard()), httptest.NewRequest(http.MethodGet, "/api/rate-limit/check", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, "check_failed", body["error"])
	assert.EqualValues(t, 0, body["used"])
}

func TestRateLimitCheckPrefersSessionUser(t *testing.T) {
	svc := &stubUsage{}
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/rate-limit/check?userId=other", nil), "u-1")
	rec := serve(RateLimitCheck(svc, "salt", nil, logger.Discard()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", svc.subject.UserID)
}

func TestRateLimitRecordRequiresJobID(t *testing.T) {
	rec := serve(RateLimitRecord(&stubUsage{}, "salt", nil, logger.Discard()),
		httptest.NewRequest(http.MethodPost, "/api/rate-limit/check", strings.NewReader(`{"userId":"u"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing jobId", decode(t, rec)["error"])
}

func TestRateLimitRecordReportsStoreFailure(t *testing.T) {
	svc := &stubUsage{recordErr: pkgerrors.New(pkgerrors.CodeInternal, "insert usage")}
	rec := serve(RateLimitRecord(svc, "salt", nil, logger.Discard()),
		httptest.NewRequest(http.MethodPost, "/api/rate-limit/check", strings.NewReader(`{"jobId":"j1"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type stubNotifications struct {
	notifications.Service
	subscribed notifications.SubscribeInput
	delivered  notifications.DeliverInput
	startedErr error
	sweepErr   error
}

func (s *stubNotifications) Subscribe(_ context.Context, in notifications.SubscribeInput) (*notifications.SubscribeResult, error) {
	s.subscribed = in
	if in.Email == "bad" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid email format")
	}
	msg := "Successfully subscribed to notifications"
	if in.Kind == enums.NotificationKindVideo {
		msg = "Subscribed to video completion notifications"
	}
	return &notifications.SubscribeResult{
		ID:      uuid.MustParse("6f8f7c1e-3c1d-4e45-9a8f-0c6a3f6b1a11"),
		JobID:   in.JobID,
		Email:   in.Email,
		Status:  enums.NotificationStatusPending,
		Message: msg,
	}, nil
}

func (s *stubNotifications) Deliver(_ context.Context, in notifications.DeliverInput) (*notifications.DeliverResult, error) {
	s.delivered = in
	return &notifications.DeliverResult{Success: true, Message: "Email already sent for this job", AlreadySent: true}, nil
}

func (s *stubNotifications) Sweep(context.Context) (*notifications.SweepResult, error) {
	return &notifications.SweepResult{Processed: 1, Results: []notifications.SweepItem{{JobID: "j1", Status: "error", Error: "boom"}}}, s.sweepErr
}

func (s *stubNotifications) NotifyJobStarted(context.Context, email.JobStartedDetails) error {
	return s.startedErr
}

func TestNotificationSubscribeShape(t *testing.T) {
	svc := &stubNotifications{}
	rec := serve(NotificationSubscribe(svc, logger.Discard()),
		httptest.NewRequest(http.MethodPost, "/api/notifications/subscribe", strings.NewReader(`{"jobId":"j1","email":"a@b.co"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Successfully subscribed to notifications", body["message"])
	assert.Equal(t, "6f8f7c1e-3c1d-4e45-9a8f-0c6a3f6b1a11", body["id"])
	assert.Equal(t, enums.NotificationKindMastering, svc.subscribed.Kind)
}

func TestNotificationSubscribeRejectsBadEmail(t *testing.T) {
	rec := serve(NotificationSubscribe(&stubNotifications{}, logger.Discard()),
		httptest.NewRequest(http.MethodPost, "/api/notifications/subscribe", strings.NewReader(`{"jobId":"j1","email":"bad"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid email format", decode(t, rec)["error"])
}

func TestNotificationSendUsesClientSource(t *testing.T) {
	svc := &stubNotifications{}
	rec := serve(NotificationSend(svc, logger.Discard()),
		httptest.NewRequest(http.MethodPost, "/api/notifications/send", strings.NewReader(`{"jobId":"j1"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, notifications.SourceClient, svc.delivered.Source)
	assert.Equal(t, true, decode(t, rec)["alreadySent"])

	rec = serve(NotificationSend(svc, logger.Discard()),
		httptest.NewRequest(http.MethodPost, "/api/notifications/send", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required field: jobId", decode(t, rec)["error"])
}

func TestNotificationSweepReportsPartialFailure(t *testing.T) {
	svc := &stubNotifications{sweepErr: errors.New("j1: boom")}
	rec := serve(NotificationSweep(svc, logger.Discard()), httptest.NewRequest(http.MethodGet, "/api/notifications/send", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["processed"])
}

func TestVideoSubscribeShape(t *testing.T) {
	svc := &stubNotifications{}
	rec := serve(VideoSubscribe(svc, logger.Discard()),
		httptest.NewRequest(http.MethodPost, "/api/video/subscribe", strings.NewReader(`{"jobId":"v1","email":"a@b.co","videoTitle":"  Ep 2 "}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	notification, ok := body["notification"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v1", notification["jobId"])
	assert.Equal(t, "pending", notification["status"])
	assert.Equal(t, "Ep 2", svc.subscribed.VideoTitle)
	assert.Equal(t, enums.NotificationKindVideo, svc.subscribed.Kind)
}

func TestVideoNotifyCompleteRequiresDownloadURL(t *testing.T) {
	rec := serve(VideoNotifyComplete(&stubNotifications{}, logger.Discard()),
		httptest.NewRequest(http.MethodPost, "/api/video/notify-complete", strings.NewReader(`{"jobId":"v1"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "downloadUrl")
}

func TestAdminJobStartedHidesProviderErrors(t *testing.T) {
	svc := &stubNotifications{startedErr: pkgerrors.New(pkgerrors.CodeDependency, "resend: 422 invalid from")}
	rec := serve(AdminJobStarted(svc, logger.Discard()),
		httptest.NewRequest(http.MethodPost, "/api/admin/notify-job-started", strings.NewReader(`{"jobId":"j1","fileName":"ep.wav"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
}

type stubFiles struct {
	files.Service
	deleted uuid.UUID
	upload  files.UploadInput
	delErr  error
}

func (s *stubFiles) Upload(_ context.Context, in files.UploadInput) (types.StoredFile, error) {
	s.upload = in
	return types.StoredFile{ID: "f1", FileName: in.FileName, FileSize: in.Size, URL: "https://cdn/f1", FileType: string(in.FileType)}, nil
}

func (s *stubFiles) Delete(_ context.Context, _ string, id uuid.UUID) error {
	s.deleted = id
	return s.delErr
}

func TestFilesUploadMultipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "../../episode.wav")
	require.NoError(t, err)
	_, _ = part.Write([]byte("RIFF...."))
	require.NoError(t, mw.WriteField("jobId", "job-7"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	svc := &stubFiles{}
	rec := serve(FilesUpload(svc, logger.Discard()), asUser(req, "u-1"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "episode.wav", svc.upload.FileName)
	assert.Equal(t, enums.FileTypeInput, svc.upload.FileType)
	assert.Equal(t, "job-7", svc.upload.JobID)
	assert.Equal(t, "u-1", svc.upload.UserID)
	assert.Equal(t, true, decode(t, rec)["success"])
}

func TestFilesUploadWithoutFile(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("jobId", "job-7"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(FilesUpload(&stubFiles{}, logger.Discard()), asUser(req, "u-1"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", decode(t, rec)["error"])
}

func TestFilesDelete(t *testing.T) {
	svc := &stubFiles{}
	id := uuid.New()
	rec := serve(FilesDelete(svc, logger.Discard()),
		asUser(httptest.NewRequest(http.MethodDelete, "/api/files/delete", strings.NewReader(`{"fileId":"`+id.String()+`"}`)), "u-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, svc.deleted)

	rec = serve(FilesDelete(svc, logger.Discard()),
		asUser(httptest.NewRequest(http.MethodDelete, "/api/files/delete", strings.NewReader(`{}`)), "u-1"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "File ID required", decode(t, rec)["error"])

	svc.delErr = pkgerrors.New(pkgerrors.CodeForbidden, "Not authorized")
	rec = serve(FilesDelete(svc, logger.Discard()),
		asUser(httptest.NewRequest(http.MethodDelete, "/api/files/delete", strings.NewReader(`{"fileId":"`+id.String()+`"}`)), "u-2"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

type stubCredits struct {
	credits.Service
	remaining int
	err       error
}

func (s *stubCredits) Consume(context.Context, string) (int, error) {
	return s.remaining, s.err
}

func TestHQConsume(t *testing.T) {
	rec := serve(HQConsume(&stubCredits{remaining: credits.Unlimited}, logger.Discard()),
		asUser(httptest.NewRequest(http.MethodPost, "/api/hq-purchase/status", nil), "u-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, -1, decode(t, rec)["creditsRemaining"])

	rec = serve(HQConsume(&stubCredits{err: pkgerrors.New(pkgerrors.CodeValidation, "No HQ credits available")}, logger.Discard()),
		asUser(httptest.NewRequest(http.MethodPost, "/api/hq-purchase/status", nil), "u-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStripeCheckoutRequiresIdentity(t *testing.T) {
	rec := serve(StripeCreateCheckout(nil, logger.Discard()), httptest.NewRequest(http.MethodPost, "/api/stripe/create-checkout", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
