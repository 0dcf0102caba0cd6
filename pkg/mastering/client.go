package mastering

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
)

const (
	defaultRequestTimeout       = 30 * time.Second
	defaultUploadTimeout        = 10 * time.Hour
	responseBodyReadLimit int64 = 4096
)

var errBaseURLRequired = errors.New("mastering api base url is required")

// Client talks to the external Mastering/Render API.
type Client struct {
	httpClient   *http.Client
	uploadClient *http.Client
	baseURL      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithUploadClient overrides the client used for the presigned PUT, which
// needs a much longer timeout than ordinary API calls.
func WithUploadClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.uploadClient = client
		}
	}
}

// WithTimeouts sets the API and upload timeouts on the default clients.
func WithTimeouts(request, upload time.Duration) Option {
	return func(c *Client) {
		if request > 0 {
			c.httpClient = &http.Client{Timeout: request}
		}
		if upload > 0 {
			c.uploadClient = &http.Client{Timeout: upload}
		}
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		baseURL:      trimmed,
		httpClient:   &http.Client{Timeout: defaultRequestTimeout},
		uploadClient: &http.Client{Timeout: defaultUploadTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UploadSlot is a presigned upload destination.
type UploadSlot struct {
	FileID    string `json:"file_id"`
	UploadURL string `json:"upload_url"`
	ObjectKey string `json:"r2_key"`
}

// ConfirmedUpload is the acknowledgement for a finished PUT.
type ConfirmedUpload struct {
	FileID string `json:"file_id"`
	Size   int64  `json:"size"`
	Status string `json:"status"`
}

// MasterRequest starts a mastering job. One of TemplateID or ReferenceFileID is required.
type MasterRequest struct {
	TargetFileID    string
	TemplateID      string
	ReferenceFileID string
	OutputQuality   string
	LimiterMode     string
}

// Segment is one transcribed caption span.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// JobStatus is the status document shared by mastering, render and transcription jobs.
type JobStatus struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	Progress    float64   `json:"progress"`
	Message     string    `json:"message"`
	Error       string    `json:"error"`
	OutputFile  string    `json:"output_file"`
	DownloadURL string    `json:"download_url"`
	Segments    []Segment `json:"segments"`
	Text        string    `json:"text"`
}

// FailureMessage returns the most specific failure text on the document.
func (s JobStatus) FailureMessage() string {
	if strings.TrimSpace(s.Error) != "" {
		return s.Error
	}
	return s.Message
}

// Template is a built-in mastering reference.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RenderRequest starts a server-side video render.
type RenderRequest struct {
	AudioURL        string    `json:"audio_url"`
	Title           string    `json:"title"`
	Subtitle        string    `json:"subtitle,omitempty"`
	Captions        []Segment `json:"captions"`
	GradientFrom    string    `json:"gradient_from,omitempty"`
	GradientTo      string    `json:"gradient_to,omitempty"`
	AccentColor     string    `json:"accent_color,omitempty"`
	ShowProgressBar bool      `json:"show_progress_bar"`
	AspectRatio     string    `json:"aspect_ratio,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	FPS             int       `json:"fps"`
}

type jobStarted struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// GetUploadURL requests a presigned upload slot for filename.
func (c *Client) GetUploadURL(ctx context.Context, filename, contentType string) (*UploadSlot, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "filename is required")
	}
	q := url.Values{}
	q.Set("filename", filename)
	if contentType != "" {
		q.Set("content_type", contentType)
	}
	var slot UploadSlot
	if err := c.do(ctx, http.MethodPost, "get-upload-url", q, nil, &slot); err != nil {
		return nil, err
	}
	if slot.FileID == "" || slot.UploadURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "upload slot missing file id or url")
	}
	return &slot, nil
}

// PutObject streams body to a presigned URL. Non-2xx answers come back as
// *StatusError; transport failures are returned as-is.
func (c *Client) PutObject(ctx context.Context, uploadURL string, body io.Reader, size int64, contentType string) error {
	if size == 0 {
		// An empty non-nil body goes out chunked; presigned PUTs require Content-Length.
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build upload request")
	}
	req.ContentLength = size
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ConfirmUpload acknowledges a completed PUT.
func (c *Client) ConfirmUpload(ctx context.Context, fileID string, size int64) (*ConfirmedUpload, error) {
	q := url.Values{}
	q.Set("file_id", fileID)
	q.Set("size", strconv.FormatInt(size, 10))
	var out ConfirmedUpload
	if err := c.do(ctx, http.MethodPost, "confirm-upload", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Master starts a mastering job and returns its id.
func (c *Client) Master(ctx context.Context, req MasterRequest) (string, error) {
	if strings.TrimSpace(req.TargetFileID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "target file id is required")
	}
	if req.TemplateID == "" && req.ReferenceFileID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "either template_id or reference_file_id must be provided")
	}
	q := url.Values{}
	q.Set("target_file_id", req.TargetFileID)
	if req.TemplateID != "" {
		q.Set("template_id", req.TemplateID)
	}
	if req.ReferenceFileID != "" {
		q.Set("reference_file_id", req.ReferenceFileID)
	}
	if req.OutputQuality != "" {
		q.Set("output_quality", req.OutputQuality)
	}
	if req.LimiterMode != "" {
		q.Set("limiter_mode", req.LimiterMode)
	}
	var out jobStarted
	if err := c.do(ctx, http.MethodPost, "master", q, nil, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// Status fetches a mastering job's status.
func (c *Client) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	return c.status(ctx, "status/"+url.PathEscape(jobID))
}

// DownloadURL is the mastered artifact link for a job.
func (c *Client) DownloadURL(jobID string) string {
	return c.buildURL("download/" + url.PathEscape(jobID))
}

// Download opens the mastered artifact. The API answers with a redirect to
// object storage, which the http client follows.
func (c *Client) Download(ctx context.Context, jobID string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(jobID), nil)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build download request")
	}
	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute download request")
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, 0, readStatusError(resp)
	}
	return resp.Body, resp.ContentLength, nil
}

// StartTranscription starts a caption job from an object key or, failing that, a URL.
func (c *Client) StartTranscription(ctx context.Context, objectKey, audioURL string) (string, error) {
	q := url.Values{}
	switch {
	case strings.TrimSpace(objectKey) != "":
		q.Set("audio_r2_key", objectKey)
	case strings.TrimSpace(audioURL) != "":
		q.Set("audio_url", audioURL)
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "audio key or url is required")
	}
	var out jobStarted
	if err := c.do(ctx, http.MethodPost, "transcribe", q, nil, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

func (c *Client) TranscriptionStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	return c.status(ctx, "transcribe/"+url.PathEscape(jobID))
}

// StartRender starts a video render job.
func (c *Client) StartRender(ctx context.Context, req RenderRequest) (string, error) {
	if strings.TrimSpace(req.AudioURL) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "audio url is required")
	}
	if req.Captions == nil {
		req.Captions = []Segment{}
	}
	var out jobStarted
	if err := c.do(ctx, http.MethodPost, "video/render", nil, req, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "No job ID received")
	}
	return out.JobID, nil
}

func (c *Client) RenderStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	return c.status(ctx, "video/status/"+url.PathEscape(jobID))
}

// Templates lists the built-in mastering references.
func (c *Client) Templates(ctx context.Context) ([]Template, error) {
	var out struct {
		Templates []Template `json:"templates"`
	}
	if err := c.do(ctx, http.MethodGet, "templates", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

func (c *Client) status(ctx context.Context, path string) (*JobStatus, error) {
	var out JobStatus
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.buildURL(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s", method, path))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
