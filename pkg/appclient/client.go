// Package appclient is the typed client for the CastMaster application API
// used by the job orchestrator and castctl.
package appclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/types"
)

const (
	defaultTimeout             = 30 * time.Second
	errorBodyReadLimit   int64 = 4096
	sessionHeaderPrefix        = "Bearer "
)

var errBaseURLRequired = errors.New("application api base url is required")

// APIError is a non-2xx answer from the application API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("app api status %d", e.Status)
	}
	return fmt.Sprintf("app api status %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	httpClient   *http.Client
	uploadClient *http.Client
	baseURL      string
	token        string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithUploadTimeout bounds durable-storage uploads separately from API calls.
func WithUploadTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.uploadClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithSessionToken authenticates every request as the signed-in user.
func WithSessionToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	c := &Client{
		baseURL:      trimmed,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		uploadClient: &http.Client{Timeout: time.Hour},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Authenticated reports whether requests carry a session.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// UsageStatus is the free-tier gate answer.
type UsageStatus struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Recorded  bool   `json:"recorded"`
	Error     string `json:"error"`
}

// StorageStatus is the subscriber-tier gate answer.
type StorageStatus struct {
	IsSubscriber bool  `json:"isSubscriber"`
	CanUpload    bool  `json:"canUpload"`
	Used         int64 `json:"used"`
	Limit        int64 `json:"limit"`
	Remaining    int64 `json:"remaining"`
	NearLimit    bool  `json:"nearLimit"`
	AtLimit      bool  `json:"atLimit"`
	FileCount    int   `json:"fileCount"`
}

type SubscriptionSummary struct {
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
}

type SubscriptionStatus struct {
	IsSubscribed bool                 `json:"isSubscribed"`
	Subscription *SubscriptionSummary `json:"subscription"`
	Storage      *struct {
		types.StorageUsage
		Files []types.StoredFile `json:"files"`
	} `json:"storage"`
}

type HQBalance struct {
	HasCredits   bool `json:"hasCredits"`
	Credits      int  `json:"credits"`
	IsSubscriber bool `json:"isSubscriber"`
}

// DeliveryResult mirrors the notification coordinator's answer.
type DeliveryResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	EmailID     string `json:"emailId"`
	AlreadySent bool   `json:"alreadySent"`
	InFlight    bool   `json:"inFlight"`
}

type FileList struct {
	Files   []types.StoredFile `json:"files"`
	Storage types.StorageUsage `json:"storage"`
}

// JobStarted feeds the admin alert.
type JobStarted struct {
	JobID         string `json:"jobId"`
	FileName      string `json:"fileName"`
	FileSize      int64  `json:"fileSize"`
	FileID        string `json:"fileId"`
	TemplateName  string `json:"templateName"`
	OutputQuality string `json:"outputQuality"`
	LimiterMode   string `json:"limiterMode"`
}

func (c *Client) CheckUsage(ctx context.Context, userID string) (*UsageStatus, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("userId", userID)
	}
	var out UsageStatus
	if err := c.do(ctx, http.MethodGet, "api/rate-limit/check", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordUsage spends one free-tier unit for jobID.
func (c *Client) RecordUsage(ctx context.Context, jobID, userID string) (*UsageStatus, error) {
	body := map[string]string{"jobId": jobID}
	if userID != "" {
		body["userId"] = userID
	}
	var out UsageStatus
	if err := c.do(ctx, http.MethodPost, "api/rate-limit/check", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CheckStorage(ctx context.Context) (*StorageStatus, error) {
	var out StorageStatus
	if err := c.do(ctx, http.MethodGet, "api/storage/check", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Subscription(ctx context.Context) (*SubscriptionStatus, error) {
	var out SubscriptionStatus
	if err := c.do(ctx, http.MethodGet, "api/subscription/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) HQStatus(ctx context.Context) (*HQBalance, error) {
	var out HQBalance
	if err := c.do(ctx, http.MethodGet, "api/hq-purchase/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConsumeHQ spends one HQ credit and returns what is left (-1 for subscribers).
func (c *Client) ConsumeHQ(ctx context.Context) (int, error) {
	var out struct {
		CreditsRemaining int `json:"creditsRemaining"`
	}
	if err := c.do(ctx, http.MethodPost, "api/hq-purchase/status", nil, map[string]string{}, &out); err != nil {
		return 0, err
	}
	return out.CreditsRemaining, nil
}

func (c *Client) Subscribe(ctx context.Context, jobID, email string) error {
	return c.do(ctx, http.MethodPost, "api/notifications/subscribe", nil, map[string]string{"jobId": jobID, "email": email}, nil)
}

func (c *Client) SubscribeVideo(ctx context.Context, jobID, email, title string) error {
	return c.do(ctx, http.MethodPost, "api/video/subscribe", nil,
		map[string]string{"jobId": jobID, "email": email, "videoTitle": title}, nil)
}

// SendNotification asks the coordinator for the completion email of jobID.
// The server dedups, so calling it more than once is harmless.
func (c *Client) SendNotification(ctx context.Context, jobID string) (*DeliveryResult, error) {
	var out DeliveryResult
	if err := c.do(ctx, http.MethodPost, "api/notifications/send", nil, map[string]string{"jobId": jobID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) NotifyVideoComplete(ctx context.Context, jobID, downloadURL, title string) (*DeliveryResult, error) {
	var out DeliveryResult
	body := map[string]string{"jobId": jobID, "downloadUrl": downloadURL, "videoTitle": title}
	if err := c.do(ctx, http.MethodPost, "api/video/notify-complete", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ReportJobFailed(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "api/notifications/job-failed", nil, map[string]string{"jobId": jobID}, nil)
}

func (c *Client) NotifyJobStarted(ctx context.Context, details JobStarted) error {
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "api/admin/notify-job-started", nil, details, &out); err != nil {
		return err
	}
	if !out.Success {
		return pkgerrors.New(pkgerrors.CodeDependency, "admin alert not delivered")
	}
	return nil
}

func (c *Client) TrackPremiumJob(ctx context.Context, jobID, fileName string, fileSize int64) (*types.PremiumJob, error) {
	var out struct {
		Job types.PremiumJob `json:"job"`
	}
	body := map[string]any{"jobId": jobID, "fileName": fileName, "fileSize": fileSize}
	if err := c.do(ctx, http.MethodPost, "api/files/premium-job", nil, body, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

func (c *Client) TrackFreeFile(ctx context.Context, jobID, fileName string, fileSize int64) (*types.FreeFile, error) {
	var out struct {
		File types.FreeFile `json:"file"`
	}
	body := map[string]any{"jobId": jobID, "fileName": fileName, "fileSize": fileSize}
	if err := c.do(ctx, http.MethodPost, "api/files/free-user", nil, body, &out); err != nil {
		return nil, err
	}
	return &out.File, nil
}

func (c *Client) ListFiles(ctx context.Context) (*FileList, error) {
	var out FileList
	if err := c.do(ctx, http.MethodGet, "api/files/list", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadFile streams body into the subscriber's durable storage as multipart.
func (c *Client) UploadFile(ctx context.Context, fileName, fileType, jobID string, body io.Reader) (*types.StoredFile, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUploadForm(mw, fileName, fileType, jobID, body)
		_ = pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "api/files/upload", nil, pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		Success bool             `json:"success"`
		File    types.StoredFile `json:"file"`
	}
	if err := c.send(c.uploadClient, req, &out); err != nil {
		return nil, err
	}
	return &out.File, nil
}

func writeUploadForm(mw *multipart.Writer, fileName, fileType, jobID string, body io.Reader) error {
	if fileType != "" {
		if err := mw.WriteField("fileType", fileType); err != nil {
			return err
		}
	}
	if jobID != "" {
		if err := mw.WriteField("jobId", jobID); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal request")
		}
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, path, query, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(c.httpClient, req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", sessionHeaderPrefix+c.token)
	}
	return req, nil
}

func (c *Client) send(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s", req.Method, req.URL.Path))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response")
	}
	return nil
}

func readAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	apiErr := &APIError{Status: resp.StatusCode}
	var body types.ErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Code = body.Code
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}
