// Package orchestrator drives one external job from upload to completion:
// entitlement, submission, polling, the notification fallback and cloud sync.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/castmaster/castmaster-backend/internal/upload"
	"github.com/castmaster/castmaster-backend/pkg/appclient"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
	"github.com/castmaster/castmaster-backend/pkg/types"
)

const (
	qualityHigh     = "high"
	qualityStandard = "standard"
	fileTypeOutput  = "output"
)

// Account is who the session acts for. A zero Account is an anonymous visitor.
type Account struct {
	UserID     string
	Email      string
	Subscriber bool
}

func (a Account) signedIn() bool {
	return strings.TrimSpace(a.UserID) != ""
}

type jobAPI interface {
	Master(ctx context.Context, req mastering.MasterRequest) (string, error)
	StartRender(ctx context.Context, req mastering.RenderRequest) (string, error)
	StartTranscription(ctx context.Context, objectKey, audioURL string) (string, error)
	Status(ctx context.Context, jobID string) (*mastering.JobStatus, error)
	RenderStatus(ctx context.Context, jobID string) (*mastering.JobStatus, error)
	TranscriptionStatus(ctx context.Context, jobID string) (*mastering.JobStatus, error)
	DownloadURL(jobID string) string
	Download(ctx context.Context, jobID string) (io.ReadCloser, int64, error)
}

type appAPI interface {
	entitlementAPI
	RecordUsage(ctx context.Context, jobID, userID string) (*appclient.UsageStatus, error)
	HQStatus(ctx context.Context) (*appclient.HQBalance, error)
	ConsumeHQ(ctx context.Context) (int, error)
	Subscribe(ctx context.Context, jobID, email string) error
	SubscribeVideo(ctx context.Context, jobID, email, title string) error
	SendNotification(ctx context.Context, jobID string) (*appclient.DeliveryResult, error)
	NotifyVideoComplete(ctx context.Context, jobID, downloadURL, title string) (*appclient.DeliveryResult, error)
	ReportJobFailed(ctx context.Context, jobID string) error
	NotifyJobStarted(ctx context.Context, details appclient.JobStarted) error
	TrackPremiumJob(ctx context.Context, jobID, fileName string, fileSize int64) (*types.PremiumJob, error)
	TrackFreeFile(ctx context.Context, jobID, fileName string, fileSize int64) (*types.FreeFile, error)
	UploadFile(ctx context.Context, fileName, fileType, jobID string, body io.Reader) (*types.StoredFile, error)
}

type fileUploader interface {
	Upload(ctx context.Context, f upload.File, onProgress func(upload.Progress)) (string, error)
}

// Config wires a Session.
type Config struct {
	Kind     Kind
	Account  Account
	Jobs     jobAPI
	App      appAPI
	Uploader fileUploader
	Logger   *logger.Logger
	// PollInterval overrides the kind's cadence; used by tests.
	PollInterval time.Duration
}

// MasterParams are the user's mastering choices.
type MasterParams struct {
	TemplateID      string
	TemplateName    string
	ReferenceFileID string
	OutputQuality   string
	LimiterMode     string
}

// Session owns one job. Methods are safe for concurrent use. Observers run
// in order and must not call mutating Session methods.
type Session struct {
	kind     Kind
	account  Account
	jobs     jobAPI
	app      appAPI
	uploader fileUploader
	gate     *Gate
	logg     *logger.Logger
	interval time.Duration

	mu         sync.Mutex
	snap       Snapshot
	videoTitle string
	issued     uint64
	applied    uint64
	notified   bool
	syncing    bool
	finished   bool
	observers  map[int]func(Snapshot)
	nextObs    int

	notifyMu sync.Mutex
}

func NewSession(cfg Config) (*Session, error) {
	if !cfg.Kind.valid() {
		return nil, errors.New("orchestrator: unknown job kind")
	}
	if cfg.Jobs == nil {
		return nil, errors.New("orchestrator: job api required")
	}
	if cfg.App == nil {
		return nil, errors.New("orchestrator: application api required")
	}
	if cfg.Kind == KindMastering && cfg.Uploader == nil {
		return nil, errors.New("orchestrator: uploader required for mastering")
	}
	logg := cfg.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = cfg.Kind.PollInterval()
	}
	return &Session{
		kind:      cfg.Kind,
		account:   cfg.Account,
		jobs:      cfg.Jobs,
		app:       cfg.App,
		uploader:  cfg.Uploader,
		gate:      NewGate(cfg.App, logg),
		logg:      logg,
		interval:  interval,
		snap:      Snapshot{Kind: cfg.Kind, State: StateIdle},
		observers: map[int]func(Snapshot){},
	}, nil
}

// Observe registers fn for every applied transition and returns a cancel func.
func (s *Session) Observe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// update mutates the snapshot under the lock and publishes it. fn returns
// false to skip publishing.
func (s *Session) update(fn func(*Snapshot) bool) Snapshot {
	s.mu.Lock()
	if !fn(&s.snap) {
		snap := s.snap
		s.mu.Unlock()
		return snap
	}
	snap := s.snap
	observers := make([]func(Snapshot), 0, len(s.observers))
	for i := 0; i < s.nextObs; i++ {
		if obs, ok := s.observers[i]; ok {
			observers = append(observers, obs)
		}
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, obs := range observers {
		obs(snap)
	}
	return snap
}

// Upload moves a local file to the Mastering API. The session returns to
// idle with the file attached, ready for SubmitMaster.
func (s *Session) Upload(ctx context.Context, f upload.File) (string, error) {
	if s.kind != KindMastering {
		return "", ErrWrongKind
	}
	busy := false
	s.update(func(snap *Snapshot) bool {
		if snap.State != StateIdle {
			busy = true
			return false
		}
		snap.State = StateUploading
		snap.Upload = upload.Progress{BytesTotal: f.Size}
		snap.Message = ""
		snap.FileID = ""
		return true
	})
	if busy {
		return "", ErrBusy
	}

	fileID, err := s.uploader.Upload(ctx, f, func(p upload.Progress) {
		s.update(func(snap *Snapshot) bool {
			snap.Upload = p
			return true
		})
	})
	s.update(func(snap *Snapshot) bool {
		snap.State = StateIdle
		if err != nil {
			snap.Message = UserMessage(err)
			return true
		}
		snap.FileID = fileID
		snap.FileName = f.Name
		snap.FileSize = f.Size
		return true
	})
	return fileID, err
}

// SubmitMaster passes the gate and starts a mastering job for the uploaded file.
func (s *Session) SubmitMaster(ctx context.Context, params MasterParams) (string, error) {
	if s.kind != KindMastering {
		return "", ErrWrongKind
	}
	snap := s.Snapshot()
	if snap.State != StateIdle {
		return "", ErrBusy
	}
	if snap.FileID == "" {
		return "", ErrNoFile
	}

	decision := s.gate.Check(ctx, s.account)
	if err := decision.denial(); err != nil {
		s.logg.Info(s.logg.WithField(ctx, "tier", decision.Tier), "orchestrator.gate_denied")
		return "", err
	}
	if decision.NearLimit {
		s.logg.Warn(ctx, "orchestrator.storage_near_limit")
	}

	quality := params.OutputQuality
	spendCredit := false
	if quality == qualityHigh && !s.account.Subscriber {
		if spendCredit = s.hasHQCredit(ctx); !spendCredit {
			quality = qualityStandard
			s.logg.Warn(ctx, "orchestrator.hq_downgraded")
		}
	}

	jobID, err := s.jobs.Master(ctx, mastering.MasterRequest{
		TargetFileID:    snap.FileID,
		TemplateID:      params.TemplateID,
		ReferenceFileID: params.ReferenceFileID,
		OutputQuality:   quality,
		LimiterMode:     params.LimiterMode,
	})
	if err != nil {
		s.update(func(sn *Snapshot) bool { sn.Message = UserMessage(err); return true })
		return "", err
	}
	ctx = s.logg.WithJobID(ctx, jobID)
	s.mu.Lock()
	s.snap.OutputQuality = quality
	s.mu.Unlock()
	s.markSubmitted(jobID, "Starting...")

	if !s.account.Subscriber {
		if _, err := s.app.RecordUsage(ctx, jobID, s.account.UserID); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orchestrator.record_usage_failed")
		}
		if spendCredit {
			if _, err := s.app.ConsumeHQ(ctx); err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orchestrator.hq_consume_failed")
			}
		}
	}

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	if s.account.Email != "" {
		g.Go(func() error {
			if err := s.app.Subscribe(gctx, jobID, s.account.Email); err != nil {
				return s.sideEffectFailed(gctx, "auto_subscribe", err)
			}
			s.update(func(sn *Snapshot) bool { sn.EmailSubscribed = true; return true })
			return nil
		})
	}
	g.Go(func() error {
		name := params.TemplateName
		if name == "" {
			name = params.TemplateID
		}
		err := s.app.NotifyJobStarted(gctx, appclient.JobStarted{
			JobID:         jobID,
			FileName:      snap.FileName,
			FileSize:      snap.FileSize,
			FileID:        snap.FileID,
			TemplateName:  name,
			OutputQuality: quality,
			LimiterMode:   params.LimiterMode,
		})
		return s.sideEffectFailed(gctx, "admin_alert", err)
	})
	if s.account.signedIn() {
		g.Go(func() error {
			var err error
			if s.account.Subscriber {
				_, err = s.app.TrackPremiumJob(gctx, jobID, snap.FileName, snap.FileSize)
			} else {
				_, err = s.app.TrackFreeFile(gctx, jobID, snap.FileName, snap.FileSize)
			}
			return s.sideEffectFailed(gctx, "track_job", err)
		})
	}
	_ = g.Wait()
	return jobID, nil
}

// hasHQCredit reports whether a free account may export in high quality.
// Anonymous users have no balance; an unreadable balance counts as none.
func (s *Session) hasHQCredit(ctx context.Context) bool {
	if !s.account.signedIn() {
		return false
	}
	balance, err := s.app.HQStatus(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orchestrator.hq_status_failed")
		return false
	}
	return balance.Credits > 0
}

// sideEffectFailed logs and swallows err. Returning nil keeps sibling side
// effects running.
func (s *Session) sideEffectFailed(ctx context.Context, what string, err error) error {
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"side_effect": what, "error": err.Error()}), "orchestrator.side_effect_failed")
	}
	return nil
}

// SubmitRender starts a video render. Signed-in users are subscribed to the
// completion email.
func (s *Session) SubmitRender(ctx context.Context, req mastering.RenderRequest) (string, error) {
	if s.kind != KindVideo {
		return "", ErrWrongKind
	}
	if s.Snapshot().State != StateIdle {
		return "", ErrBusy
	}
	jobID, err := s.jobs.StartRender(ctx, req)
	if err != nil {
		s.update(func(sn *Snapshot) bool { sn.Message = UserMessage(err); return true })
		return "", err
	}
	s.mu.Lock()
	s.videoTitle = req.Title
	s.mu.Unlock()
	s.markSubmitted(jobID, "Rendering video...")

	if s.account.Email != "" {
		ctx = s.logg.WithJobID(ctx, jobID)
		if err := s.app.SubscribeVideo(ctx, jobID, s.account.Email, req.Title); err != nil {
			_ = s.sideEffectFailed(ctx, "auto_subscribe", err)
		} else {
			s.update(func(sn *Snapshot) bool { sn.EmailSubscribed = true; return true })
		}
	}
	return jobID, nil
}

// SubmitTranscription starts a caption job from an object key or URL.
func (s *Session) SubmitTranscription(ctx context.Context, objectKey, audioURL string) (string, error) {
	if s.kind != KindTranscription {
		return "", ErrWrongKind
	}
	if s.Snapshot().State != StateIdle {
		return "", ErrBusy
	}
	jobID, err := s.jobs.StartTranscription(ctx, objectKey, audioURL)
	if err != nil {
		s.update(func(sn *Snapshot) bool { sn.Message = UserMessage(err); return true })
		return "", err
	}
	s.markSubmitted(jobID, "Transcribing...")
	return jobID, nil
}

// Attach points the session at an already running job, e.g. to resume polling.
func (s *Session) Attach(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return ErrNotSubmitted
	}
	if s.Snapshot().State != StateIdle {
		return ErrBusy
	}
	s.markSubmitted(jobID, "")
	return nil
}

func (s *Session) markSubmitted(jobID, msg string) {
	s.update(func(sn *Snapshot) bool {
		sn.JobID = jobID
		sn.State = StatePending
		sn.JobProgress = 0
		sn.Message = msg
		return true
	})
}

// SubscribeEmail is the explicit "notify me" opt-in for anonymous users. It
// only registers interest.
func (s *Session) SubscribeEmail(ctx context.Context, email string) error {
	snap := s.Snapshot()
	if snap.JobID == "" {
		return ErrNotSubmitted
	}
	var err error
	if s.kind == KindVideo {
		s.mu.Lock()
		title := s.videoTitle
		s.mu.Unlock()
		err = s.app.SubscribeVideo(ctx, snap.JobID, email, title)
	} else {
		err = s.app.Subscribe(ctx, snap.JobID, email)
	}
	if err != nil {
		return err
	}
	s.update(func(sn *Snapshot) bool { sn.EmailSubscribed = true; return true })
	return nil
}

// Reset is the explicit "Try Again": back to idle, dropping any late poll
// responses and the once-per-session flags.
func (s *Session) Reset() {
	s.mu.Lock()
	s.applied = s.issued
	s.notified = false
	s.syncing = false
	s.finished = false
	s.videoTitle = ""
	s.mu.Unlock()
	s.update(func(sn *Snapshot) bool {
		*sn = Snapshot{Kind: s.kind, State: StateIdle}
		return true
	})
}
