package orchestrator

import (
	"strings"
	"time"

	"github.com/castmaster/castmaster-backend/internal/upload"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
)

// State is where a job session stands.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// rank orders remote job states; a session never moves to a lower rank
// through polling.
func (s State) rank() int {
	switch s {
	case StatePending:
		return 1
	case StateProcessing:
		return 2
	case StateCompleted, StateFailed:
		return 3
	default:
		return 0
	}
}

// remoteState maps an external status string onto a session state.
func remoteState(status string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "pending", "queued", "submitted":
		return StatePending, true
	case "processing", "running", "rendering", "transcribing":
		return StateProcessing, true
	case "completed", "complete", "done":
		return StateCompleted, true
	case "failed", "error":
		return StateFailed, true
	}
	return "", false
}

// Kind selects the external job type and its poll cadence.
type Kind string

const (
	KindMastering     Kind = "mastering"
	KindVideo         Kind = "video"
	KindTranscription Kind = "transcription"
)

// PollInterval is the fixed status cadence for the kind.
func (k Kind) PollInterval() time.Duration {
	switch k {
	case KindVideo:
		return 5 * time.Second
	case KindTranscription:
		return 2 * time.Second
	default:
		return time.Second
	}
}

func (k Kind) valid() bool {
	return k == KindMastering || k == KindVideo || k == KindTranscription
}

// Snapshot is an immutable view of a session handed to observers.
type Snapshot struct {
	Kind            Kind
	State           State
	JobID           string
	FileID          string
	FileName        string
	FileSize        int64
	OutputQuality   string
	Upload          upload.Progress
	JobProgress     float64
	Message         string
	OutputRef       string
	DownloadURL     string
	Transcript      string
	Segments        []mastering.Segment
	EmailSubscribed bool
	CloudSynced     bool
}
