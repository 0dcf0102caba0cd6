package enums

import "fmt"

// JobStatus mirrors the status field reported by the Mastering and Render APIs.
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusUploading  JobStatus = "uploading"
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

var validJobStatuses = []JobStatus{
	JobStatusIdle,
	JobStatusUploading,
	JobStatusPending,
	JobStatusProcessing,
	JobStatusCompleted,
	JobStatusFailed,
}

func (s JobStatus) IsValid() bool {
	for _, candidate := range validJobStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Rank orders statuses so observed transitions never move backwards.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusIdle:
		return 0
	case JobStatusUploading:
		return 1
	case JobStatusPending:
		return 2
	case JobStatusProcessing:
		return 3
	case JobStatusCompleted, JobStatusFailed:
		return 4
	default:
		return -1
	}
}

// ParseJobStatus converts remote status strings. Unknown remote values such as
// "queued" or "rendering" are folded into pending/processing.
func ParseJobStatus(value string) (JobStatus, error) {
	for _, candidate := range validJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	switch value {
	case "queued", "submitted":
		return JobStatusPending, nil
	case "running", "rendering", "transcribing":
		return JobStatusProcessing, nil
	case "error":
		return JobStatusFailed, nil
	}
	return "", fmt.Errorf("invalid job status %q", value)
}

// JobKind selects which remote API a job session drives.
type JobKind string

const (
	JobKindMastering     JobKind = "mastering"
	JobKindVideoRender   JobKind = "video-render"
	JobKindTranscription JobKind = "transcription"
)

func (k JobKind) IsValid() bool {
	switch k {
	case JobKindMastering, JobKindVideoRender, JobKindTranscription:
		return true
	}
	return false
}

// OutputQuality is the mastering export bit-depth selector.
type OutputQuality string

const (
	OutputQualityStandard OutputQuality = "standard"
	OutputQualityHigh     OutputQuality = "high"
)

func (q OutputQuality) IsValid() bool {
	return q == OutputQualityStandard || q == OutputQualityHigh
}

// LimiterMode is the mastering limiter aggressiveness.
type LimiterMode string

const (
	LimiterModeGentle LimiterMode = "gentle"
	LimiterModeNormal LimiterMode = "normal"
	LimiterModeLoud   LimiterMode = "loud"
)

func (m LimiterMode) IsValid() bool {
	switch m {
	case LimiterModeGentle, LimiterModeNormal, LimiterModeLoud:
		return true
	}
	return false
}
