package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/castmaster/castmaster-backend/internal/orchestrator"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		kind   string
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show or follow a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := orchestrator.Kind(strings.ToLower(kind))
			switch k {
			case orchestrator.KindMastering, orchestrator.KindVideo, orchestrator.KindTranscription:
			default:
				return fmt.Errorf("unknown kind %q", kind)
			}
			if err := ctx.ensure(); err != nil {
				return err
			}
			c := cmd.Context()
			out := cmd.OutOrStdout()

			if follow {
				s, err := ctx.session(c, k)
				if err != nil {
					return err
				}
				if err := s.Attach(args[0]); err != nil {
					return err
				}
				final, err := runJob(c, out, s, "", true)
				if err != nil {
					return err
				}
				if final.DownloadURL != "" {
					fmt.Fprintf(out, "Download: %s\n", final.DownloadURL)
				}
				return nil
			}

			var (
				st  *mastering.JobStatus
				err error
			)
			switch k {
			case orchestrator.KindVideo:
				st, err = ctx.jobs.RenderStatus(c, args[0])
			case orchestrator.KindTranscription:
				st, err = ctx.jobs.TranscriptionStatus(c, args[0])
			default:
				st, err = ctx.jobs.Status(c, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderStatus(args[0], st))
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(orchestrator.KindMastering), "Job kind: mastering, video or transcription")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Poll until the job finishes")
	return cmd
}

func renderStatus(jobID string, st *mastering.JobStatus) string {
	rows := [][]string{
		{"Job", jobID},
		{"Status", st.Status},
		{"Progress", fmt.Sprintf("%.0f%%", st.Progress)},
	}
	if st.Message != "" {
		rows = append(rows, []string{"Message", st.Message})
	}
	if st.Error != "" {
		rows = append(rows, []string{"Error", st.Error})
	}
	if st.OutputFile != "" {
		rows = append(rows, []string{"Output", st.OutputFile})
	}
	if st.DownloadURL != "" {
		rows = append(rows, []string{"Download", st.DownloadURL})
	}
	return renderTable([]string{"Field", "Value"}, rows)
}
