package upload

import (
	"fmt"
	"math"
	"time"
)

// Percent ceilings for each phase. The bar never shows 100 until the API has
// confirmed the object.
const (
	putCeiling     = 95.0
	putDonePercent = 98.0
	donePercent    = 100.0

	instantWeight = 0.3
	averageWeight = 0.7
)

// Progress is one upload progress event.
type Progress struct {
	Percent       float64
	BytesSent     int64
	BytesTotal    int64
	InstantSpeed  float64 // bytes/s since the previous event
	SmoothedSpeed float64 // bytes/s
	ETA           time.Duration
	ETAKnown      bool
}

// ETAText renders the remaining time the way the UI shows it.
func (p Progress) ETAText() string {
	if !p.ETAKnown {
		return "calculating…"
	}
	d := p.ETA.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// Tracker turns byte counts into progress events. Not safe for concurrent use.
type Tracker struct {
	total     int64
	start     time.Time
	lastTime  time.Time
	lastBytes int64
	instant   float64
	percent   float64
}

func NewTracker(total int64, start time.Time) *Tracker {
	if total < 0 {
		total = 0
	}
	return &Tracker{total: total, start: start, lastTime: start}
}

// Observe records that sent bytes have been written as of now.
func (t *Tracker) Observe(sent int64, now time.Time) Progress {
	if sent > t.total && t.total > 0 {
		sent = t.total
	}
	if sent < t.lastBytes {
		sent = t.lastBytes
	}

	if dt := now.Sub(t.lastTime).Seconds(); dt > 0 {
		t.instant = float64(sent-t.lastBytes) / dt
	}
	var average float64
	if elapsed := now.Sub(t.start).Seconds(); elapsed > 0 {
		average = float64(sent) / elapsed
	}
	smoothed := t.instant
	if average > 0 {
		smoothed = instantWeight*t.instant + averageWeight*average
	}

	p := Progress{
		BytesSent:     sent,
		BytesTotal:    t.total,
		InstantSpeed:  t.instant,
		SmoothedSpeed: smoothed,
	}
	remaining := t.total - sent
	switch {
	case remaining <= 0:
		p.ETAKnown = true
	case smoothed > 0:
		p.ETA = time.Duration(float64(remaining) / smoothed * float64(time.Second))
		p.ETAKnown = true
	}

	if t.total > 0 {
		t.raise(math.Min(float64(sent)/float64(t.total)*putCeiling, putCeiling))
	}
	p.Percent = t.percent

	t.lastBytes = sent
	t.lastTime = now
	return p
}

// Transferred is the event emitted once the PUT has been accepted.
func (t *Tracker) Transferred() Progress {
	t.raise(putDonePercent)
	return t.final()
}

// Confirmed is the event emitted once the API has acknowledged the upload.
func (t *Tracker) Confirmed() Progress {
	t.raise(donePercent)
	return t.final()
}

func (t *Tracker) final() Progress {
	return Progress{Percent: t.percent, BytesSent: t.total, BytesTotal: t.total, ETAKnown: true}
}

func (t *Tracker) raise(p float64) {
	if p > t.percent {
		t.percent = p
	}
}
