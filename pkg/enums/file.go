package enums

import (
	"fmt"
	"strings"
)

// FileType tags a subscriber StorageRecord as an uploaded input or a job output.
type FileType string

const (
	FileTypeInput  FileType = "input"
	FileTypeOutput FileType = "output"
)

func (f FileType) IsValid() bool {
	return f == FileTypeInput || f == FileTypeOutput
}

// ParseFileType defaults blank values to input.
func ParseFileType(value string) (FileType, error) {
	v := FileType(strings.ToLower(strings.TrimSpace(value)))
	if v == "" {
		return FileTypeInput, nil
	}
	if !v.IsValid() {
		return "", fmt.Errorf("invalid file type %q", value)
	}
	return v, nil
}

// PremiumJobStatus tracks subscriber jobs awaiting their output copy.
type PremiumJobStatus string

const (
	PremiumJobStatusProcessing PremiumJobStatus = "processing"
	PremiumJobStatusCompleted  PremiumJobStatus = "completed"
	PremiumJobStatusFailed     PremiumJobStatus = "failed"
)
