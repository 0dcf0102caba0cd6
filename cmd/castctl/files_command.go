package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/castmaster/castmaster-backend/pkg/types"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List files saved to your CastMaster storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}
			if !ctx.cfg.Authenticated() {
				return fmt.Errorf("files require a session token (CASTCTL_SESSION_TOKEN)")
			}
			list, err := ctx.app.ListFiles(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderFiles(list.Files, time.Now()))
			fmt.Fprintf(out, "%s of %s used\n", humanize.Bytes(uint64(list.Storage.Used)), humanize.Bytes(uint64(list.Storage.Limit)))
			return nil
		},
	}
}

func renderFiles(files []types.StoredFile, now time.Time) string {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		created := f.CreatedAt
		if ts, err := time.Parse(time.RFC3339, f.CreatedAt); err == nil {
			created = humanize.RelTime(ts, now, "ago", "from now")
		}
		job := ""
		if f.JobID != nil {
			job = *f.JobID
		}
		rows = append(rows, []string{f.FileName, f.FileType, humanize.Bytes(uint64(f.FileSize)), created, job})
	}
	return renderTable([]string{"Name", "Type", "Size", "Saved", "Job"}, rows, 3)
}
