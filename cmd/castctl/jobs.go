package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/castmaster/castmaster-backend/internal/orchestrator"
)

// runJob optionally opts an email in, then polls to completion while printing
// progress. It returns the terminal snapshot.
func runJob(ctx context.Context, out io.Writer, s *orchestrator.Session, notify string, wait bool) (orchestrator.Snapshot, error) {
	snap := s.Snapshot()
	fmt.Fprintf(out, "Job %s\n", snap.JobID)

	if email := strings.TrimSpace(notify); email != "" && !snap.EmailSubscribed {
		if err := s.SubscribeEmail(ctx, email); err != nil {
			fmt.Fprintf(out, "Could not register %s for a completion email: %s\n", email, orchestrator.UserMessage(err))
		} else {
			fmt.Fprintf(out, "We'll email %s when it's ready\n", email)
		}
	}
	if !wait {
		return s.Snapshot(), nil
	}

	printer := newProgressPrinter(out)
	unsubscribe := s.Observe(printer.observe)
	defer unsubscribe()
	defer printer.finish()

	final, err := s.Poll(ctx)
	if err != nil {
		return final, err
	}
	if final.State == orchestrator.StateFailed {
		return final, fmt.Errorf("%s", orDefault(final.Message, "job failed"))
	}
	return final, nil
}
