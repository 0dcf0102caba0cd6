// Command castctl masters, renders and transcribes podcast audio from the
// terminal using the same job lifecycle as the web app.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/castmaster/castmaster-backend/internal/orchestrator"
)

const (
	exitFailure = 1
	// exitDenied marks an entitlement refusal (quota or storage), so scripts
	// can tell "upgrade needed" apart from a broken run.
	exitDenied = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(report(os.Stderr, err))
	}
}

// report prints err and returns the exit code. Denials print as a plain
// prompt without the error prefix.
func report(w io.Writer, err error) int {
	if errors.Is(err, context.Canceled) {
		return exitFailure
	}
	if _, ok := orchestrator.IsDenied(err); ok {
		fmt.Fprintln(w, orchestrator.UserMessage(err))
		return exitDenied
	}
	fmt.Fprintln(w, "error:", orchestrator.UserMessage(err))
	return exitFailure
}
