package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/castmaster/castmaster-backend/internal/upload"
	"github.com/castmaster/castmaster-backend/pkg/appclient"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
)

var (
	ErrNoFile       = errors.New("no uploaded file to submit")
	ErrBusy         = errors.New("session is busy")
	ErrWrongKind    = errors.New("operation does not match session kind")
	ErrNotSubmitted = errors.New("no job has been submitted")
)

// Denial reasons.
const (
	ReasonQuotaExceeded = "quota_exceeded"
	ReasonStorageFull   = "storage_full"
)

// DeniedError is an entitlement refusal. It is an expected outcome the UI
// renders as an upgrade or cleanup prompt, not a failure banner.
type DeniedError struct {
	Decision Decision
	Reason   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("entitlement denied: %s", e.Reason)
}

// IsDenied reports whether err is an entitlement refusal.
func IsDenied(err error) (*DeniedError, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}

// UserMessage converts any orchestrator error into the single line shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if denied, ok := IsDenied(err); ok {
		if denied.Reason == ReasonStorageFull {
			return "Your cloud storage is full. Delete some files to keep mastering."
		}
		return fmt.Sprintf("You've used all %d free masters this week. Upgrade for unlimited mastering.", denied.Decision.Limit)
	}
	switch {
	case errors.Is(err, upload.ErrNetwork):
		return "Network error during upload. Please try again."
	case errors.Is(err, upload.ErrRejected):
		return "Upload to storage failed. Please select the file again."
	case errors.Is(err, upload.ErrConfirm):
		return "Failed to confirm upload"
	}
	if se, ok := mastering.AsStatusError(err); ok && strings.TrimSpace(se.Detail) != "" {
		return se.Detail
	}
	var apiErr *appclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, upload.ErrSetup) {
		return "Failed to get upload URL"
	}
	return err.Error()
}
