package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/castmaster/castmaster-backend/internal/orchestrator"
	"github.com/castmaster/castmaster-backend/internal/upload"
)

// progressPrinter renders session snapshots. On a terminal it redraws one
// line; otherwise it prints a line per state or message change.
type progressPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	live     bool
	lastLine string
	lastKey  string
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, live: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *progressPrinter) observe(snap orchestrator.Snapshot) {
	line := describe(snap)
	if line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.live {
		pad := ""
		if n := len(p.lastLine) - len(line); n > 0 {
			pad = strings.Repeat(" ", n)
		}
		fmt.Fprintf(p.out, "\r%s%s", line, pad)
		if snap.State.Terminal() {
			fmt.Fprintln(p.out)
		}
		p.lastLine = line
		return
	}

	key := string(snap.State) + "|" + snap.Message
	if key == p.lastKey {
		return
	}
	p.lastKey = key
	fmt.Fprintln(p.out, line)
}

// finish ends a redrawn line that never reached a terminal state.
func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live && p.lastLine != "" {
		fmt.Fprintln(p.out)
		p.lastLine = ""
	}
}

func describe(snap orchestrator.Snapshot) string {
	switch snap.State {
	case orchestrator.StateUploading:
		return describeUpload(snap.FileName, snap.Upload)
	case orchestrator.StatePending:
		return fmt.Sprintf("Queued  %s", orDefault(snap.Message, "waiting for a worker"))
	case orchestrator.StateProcessing:
		return fmt.Sprintf("Working %3.0f%%  %s", snap.JobProgress, snap.Message)
	case orchestrator.StateCompleted:
		return "Done"
	case orchestrator.StateFailed:
		return "Failed: " + orDefault(snap.Message, "job failed")
	}
	return ""
}

func describeUpload(name string, p upload.Progress) string {
	parts := []string{fmt.Sprintf("Uploading %3.0f%%", p.Percent)}
	if p.BytesTotal > 0 {
		parts = append(parts, fmt.Sprintf("%s / %s", humanize.Bytes(uint64(p.BytesSent)), humanize.Bytes(uint64(p.BytesTotal))))
	}
	if p.SmoothedSpeed > 0 {
		parts = append(parts, humanize.Bytes(uint64(p.SmoothedSpeed))+"/s")
	}
	if p.Percent < 95 {
		parts = append(parts, "ETA "+p.ETAText())
	}
	if name != "" {
		parts = append([]string{name}, parts...)
	}
	return strings.Join(parts, "  ")
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
