package orchestrator

import (
	"context"

	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
)

const cloudPrefix = "mastered-"

// syncToCloud copies a finished master into the subscriber's file storage.
// It runs at most once per session and is never retried.
func (s *Session) syncToCloud(ctx context.Context, jobID string) {
	s.mu.Lock()
	skip := s.syncing || s.snap.CloudSynced
	s.syncing = true
	name := s.snap.FileName
	s.mu.Unlock()
	if skip {
		return
	}
	if name == "" {
		name = jobID + ".wav"
	}

	if err := s.copyOutput(ctx, jobID, cloudPrefix+name); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "file_name", name), "orchestrator.cloud_sync_failed", err)
		return
	}
	s.update(func(sn *Snapshot) bool {
		if sn.JobID != jobID {
			return false
		}
		sn.CloudSynced = true
		return true
	})
	s.logg.Info(ctx, "orchestrator.cloud_synced")
}

func (s *Session) copyOutput(ctx context.Context, jobID, name string) error {
	body, _, err := s.jobs.Download(ctx, jobID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "download mastered output")
	}
	defer body.Close()
	if _, err := s.app.UploadFile(ctx, name, fileTypeOutput, jobID, body); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store mastered output")
	}
	return nil
}
