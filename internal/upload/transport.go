// Package upload moves a local audio file into the Mastering API's object
// storage: request a slot, PUT the bytes, confirm.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
)

const (
	defaultContentType = "application/octet-stream"
	defaultEmitEvery   = 250 * time.Millisecond
)

var (
	// ErrSetup means no upload slot could be obtained.
	ErrSetup = errors.New("failed to get upload url")
	// ErrNetwork means the connection broke during the PUT. Safe to retry.
	ErrNetwork = errors.New("network error during upload")
	// ErrRejected means storage answered the PUT with a non-2xx; a new slot is needed.
	ErrRejected = errors.New("upload to storage failed")
	// ErrConfirm means the bytes landed but the API did not acknowledge them;
	// the file id must not be used.
	ErrConfirm = errors.New("failed to confirm upload")
)

// Retryable reports whether the same upload may simply be attempted again.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// File is a local file ready to upload.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

type storageAPI interface {
	GetUploadURL(ctx context.Context, filename, contentType string) (*mastering.UploadSlot, error)
	PutObject(ctx context.Context, uploadURL string, body io.Reader, size int64, contentType string) error
	ConfirmUpload(ctx context.Context, fileID string, size int64) (*mastering.ConfirmedUpload, error)
}

type Transport struct {
	api       storageAPI
	logg      *logger.Logger
	now       func() time.Time
	emitEvery time.Duration
}

type Option func(*Transport)

func WithClock(now func() time.Time) Option {
	return func(t *Transport) {
		if now != nil {
			t.now = now
		}
	}
}

// WithEmitInterval limits how often mid-PUT progress events fire. Zero emits on every read.
func WithEmitInterval(d time.Duration) Option {
	return func(t *Transport) {
		t.emitEvery = d
	}
}

func New(api storageAPI, logg *logger.Logger, opts ...Option) (*Transport, error) {
	if api == nil {
		return nil, errors.New("storage api required")
	}
	if logg == nil {
		logg = logger.Discard()
	}
	t := &Transport{api: api, logg: logg, now: time.Now, emitEvery: defaultEmitEvery}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Upload returns the remote file id once the API has confirmed the object.
// onProgress may be nil.
func (t *Transport) Upload(ctx context.Context, f File, onProgress func(Progress)) (string, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	if f.Body == nil || strings.TrimSpace(f.Name) == "" {
		return "", fmt.Errorf("%w: file name and body are required", ErrSetup)
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	ctx = t.logg.WithFields(ctx, map[string]any{"file_name": f.Name, "file_size": f.Size})

	tracker := NewTracker(f.Size, t.now())
	onProgress(tracker.Observe(0, t.now()))

	slot, err := t.api.GetUploadURL(ctx, f.Name, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSetup, err)
	}
	ctx = t.logg.WithField(ctx, "file_id", slot.FileID)

	body := &countingReader{r: f.Body, onRead: t.emitter(tracker, onProgress)}
	if err := t.api.PutObject(ctx, slot.UploadURL, body, f.Size, contentType); err != nil {
		if se, ok := mastering.AsStatusError(err); ok {
			t.logg.Warn(t.logg.WithField(ctx, "status", se.Status), "upload.rejected")
			return "", fmt.Errorf("%w: %d", ErrRejected, se.Status)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		t.logg.Warn(t.logg.WithField(ctx, "error", err.Error()), "upload.network_error")
		return "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	onProgress(tracker.Transferred())

	if _, err := t.api.ConfirmUpload(ctx, slot.FileID, f.Size); err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfirm, err)
	}
	onProgress(tracker.Confirmed())
	t.logg.Info(ctx, "upload.confirmed")
	return slot.FileID, nil
}

func (t *Transport) emitter(tracker *Tracker, onProgress func(Progress)) func(int64) {
	var mu sync.Mutex
	gate := &rate.Sometimes{First: 1, Interval: t.emitEvery}
	return func(sent int64) {
		mu.Lock()
		defer mu.Unlock()
		if t.emitEvery <= 0 {
			onProgress(tracker.Observe(sent, t.now()))
			return
		}
		gate.Do(func() { onProgress(tracker.Observe(sent, t.now())) })
	}
}

type countingReader struct {
	r      io.Reader
	n      int64
	onRead func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.onRead(c.n)
	}
	return n, err
}
