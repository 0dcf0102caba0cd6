package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	SubjectMasteringComplete    = "🎧 Your Mastered Podcast is Ready!"
	SubjectMasteringCompleteLog = "Your Mastered Podcast is Ready!"
	SubjectVideoComplete        = "🎬 Your Video is Ready for Download!"
	SubjectVideoCompleteLog     = "Your Video is Ready for Download!"

	DefaultVideoTitle = "Your Video"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("email").ParseFS(templateFS, "templates/*.html"))

// JobStartedDetails describes a freshly submitted mastering job for the admin alert.
type JobStartedDetails struct {
	JobID         string
	FileName      string
	FileSize      int64
	FileID        string
	TemplateName  string
	OutputQuality string
	LimiterMode   string
}

// MasteringComplete renders the completion email for a mastered podcast.
func MasteringComplete(downloadURL string) (string, error) {
	return render("mastering_complete.html", map[string]any{
		"DownloadURL": downloadURL,
	})
}

// VideoComplete renders the video completion email. The link forces a download.
func VideoComplete(downloadURL, videoTitle string) (string, error) {
	if strings.TrimSpace(videoTitle) == "" {
		videoTitle = DefaultVideoTitle
	}
	return render("video_complete.html", map[string]any{
		"DownloadURL":       downloadURL,
		"ForcedDownloadURL": forceDownload(downloadURL),
		"VideoTitle":        videoTitle,
	})
}

// JobStartedSubject is the admin alert subject line.
func JobStartedSubject(fileName string) string {
	if strings.TrimSpace(fileName) == "" {
		fileName = "Unknown file"
	}
	return "🎙️ New Mastering Job: " + fileName
}

// JobStarted renders the admin alert for a new mastering job.
func JobStarted(d JobStartedDetails) (string, error) {
	size := "Unknown"
	if d.FileSize > 0 {
		size = humanize.IBytes(uint64(d.FileSize))
	}
	fileName := d.FileName
	if strings.TrimSpace(fileName) == "" {
		fileName = "Unknown file"
	}
	return render("job_started.html", map[string]any{
		"JobID":         d.JobID,
		"FileName":      fileName,
		"FileSize":      size,
		"FileID":        d.FileID,
		"TemplateName":  orDefault(d.TemplateName, "Default"),
		"OutputQuality": orDefault(d.OutputQuality, "standard"),
		"LimiterMode":   orDefault(d.LimiterMode, "normal"),
	})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func forceDownload(raw string) string {
	if strings.Contains(raw, "?") {
		return raw + "&download=1"
	}
	return raw + "?download=1"
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
