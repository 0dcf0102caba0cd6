package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/castmaster/castmaster-backend/pkg/appclient"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
)

// Poll drives the submitted job to a terminal state. The first request goes
// out immediately, then one per interval. Responses are applied in issue
// order; late or regressing answers are dropped. Poll returns once the job is
// terminal and its completion side effects have run, or when ctx ends. If an
// earlier Poll ended after the terminal state landed but before its side
// effects ran, the next Poll runs them.
func (s *Session) Poll(ctx context.Context) (Snapshot, error) {
	snap := s.Snapshot()
	if snap.JobID == "" {
		return snap, ErrNotSubmitted
	}
	jobID := snap.JobID
	ctx = s.logg.WithJobID(ctx, jobID)
	if snap.State.Terminal() {
		s.finish(ctx, jobID, snap.State)
		return s.Snapshot(), nil
	}

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		done = make(chan State, 1)
	)
	issue := func() {
		s.mu.Lock()
		s.issued++
		seq := s.issued
		s.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := s.fetchStatus(pollCtx, jobID)
			if err != nil {
				if pollCtx.Err() == nil {
					s.logg.Warn(s.logg.WithField(pollCtx, "error", err.Error()), "orchestrator.poll_failed")
				}
				return
			}
			if state, ok := s.apply(seq, jobID, status); ok && state.Terminal() {
				select {
				case done <- state:
				default:
				}
			}
		}()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	issue()

	var final State
	for final == "" {
		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			return s.Snapshot(), ctx.Err()
		case final = <-done:
		case <-ticker.C:
			issue()
		}
	}
	cancel()
	wg.Wait()

	s.finish(ctx, jobID, final)
	return s.Snapshot(), nil
}

// finish runs the terminal side effects once per job.
func (s *Session) finish(ctx context.Context, jobID string, final State) {
	s.mu.Lock()
	done := s.finished || s.snap.JobID != jobID
	if !done {
		s.finished = true
	}
	s.mu.Unlock()
	if done {
		return
	}
	if final == StateCompleted {
		s.onCompleted(ctx, jobID)
	} else {
		s.onFailed(ctx, jobID)
	}
}

func (s *Session) fetchStatus(ctx context.Context, jobID string) (*mastering.JobStatus, error) {
	switch s.kind {
	case KindVideo:
		return s.jobs.RenderStatus(ctx, jobID)
	case KindTranscription:
		return s.jobs.TranscriptionStatus(ctx, jobID)
	default:
		return s.jobs.Status(ctx, jobID)
	}
}

// apply folds one status response into the snapshot. It reports the
// resulting state and whether the response was accepted.
func (s *Session) apply(seq uint64, jobID string, status *mastering.JobStatus) (State, bool) {
	next, known := remoteState(status.Status)
	if !known {
		s.logg.Debug(s.logg.WithField(context.Background(), "status", status.Status), "orchestrator.unknown_status")
		return "", false
	}

	s.mu.Lock()
	stale := seq <= s.applied
	if !stale {
		s.applied = seq
	}
	s.mu.Unlock()
	if stale {
		return "", false
	}

	accepted := false
	s.update(func(sn *Snapshot) bool {
		if sn.JobID != jobID || sn.State.Terminal() || next.rank() < sn.State.rank() {
			return false
		}
		accepted = true
		sn.State = next
		if status.Progress > sn.JobProgress {
			sn.JobProgress = status.Progress
		}
		switch next {
		case StateCompleted:
			sn.JobProgress = 100
			sn.Message = ""
			sn.OutputRef = status.OutputFile
			sn.DownloadURL = status.DownloadURL
			if s.kind == KindMastering && sn.DownloadURL == "" {
				sn.DownloadURL = s.jobs.DownloadURL(jobID)
			}
			sn.Transcript = status.Text
			sn.Segments = status.Segments
		case StateFailed:
			sn.Message = status.FailureMessage()
		default:
			if status.Message != "" {
				sn.Message = status.Message
			}
		}
		return true
	})
	return next, accepted
}

func (s *Session) onCompleted(ctx context.Context, jobID string) {
	s.sendFallbackNotification(ctx, jobID)
	if s.kind == KindMastering && s.account.Subscriber {
		s.syncToCloud(ctx, jobID)
	}
}

// sendFallbackNotification asks the server to deliver the completion email in
// case the worker callback never arrived. The server deduplicates; the session
// only asks once.
func (s *Session) sendFallbackNotification(ctx context.Context, jobID string) {
	s.mu.Lock()
	snap := s.snap
	skip := s.notified || !snap.EmailSubscribed
	if !skip {
		s.notified = true
	}
	title := s.videoTitle
	s.mu.Unlock()
	if skip {
		return
	}

	var (
		res *appclient.DeliveryResult
		err error
	)
	switch s.kind {
	case KindMastering:
		res, err = s.app.SendNotification(ctx, jobID)
	case KindVideo:
		res, err = s.app.NotifyVideoComplete(ctx, jobID, snap.DownloadURL, title)
	default:
		return
	}
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orchestrator.notification_fallback_failed")
		return
	}
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{"already_sent": res.AlreadySent, "in_flight": res.InFlight}), "orchestrator.notification_fallback")
}

func (s *Session) onFailed(ctx context.Context, jobID string) {
	if s.kind != KindMastering {
		return
	}
	if err := s.app.ReportJobFailed(ctx, jobID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orchestrator.report_failed_failed")
	}
}
