package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/castmaster/castmaster-backend/internal/orchestrator"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var (
		objectKey string
		audioURL  string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe audio into timed caption segments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if objectKey == "" && audioURL == "" {
				return fmt.Errorf("provide --object-key or --audio-url")
			}
			if err := ctx.ensure(); err != nil {
				return err
			}
			c := cmd.Context()
			s, err := ctx.session(c, orchestrator.KindTranscription)
			if err != nil {
				return err
			}
			if _, err := s.SubmitTranscription(c, objectKey, audioURL); err != nil {
				return err
			}
			progress := cmd.ErrOrStderr()
			if !asJSON {
				progress = cmd.OutOrStdout()
			}
			final, err := runJob(c, progress, s, "", true)
			if err != nil {
				return err
			}
			return writeTranscript(cmd.OutOrStdout(), final.Segments, final.Transcript, asJSON)
		},
	}

	f := cmd.Flags()
	f.StringVar(&objectKey, "object-key", "", "Object key of previously uploaded audio")
	f.StringVar(&audioURL, "audio-url", "", "Public URL of the audio")
	f.BoolVar(&asJSON, "json", false, "Print segments as JSON (usable with castctl video --captions)")
	return cmd
}

func writeTranscript(out io.Writer, segments []mastering.Segment, text string, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if segments == nil {
			segments = []mastering.Segment{}
		}
		return enc.Encode(segments)
	}
	if len(segments) == 0 {
		_, err := fmt.Fprintln(out, text)
		return err
	}
	rows := make([][]string, 0, len(segments))
	for _, seg := range segments {
		rows = append(rows, []string{timestamp(seg.Start), timestamp(seg.End), seg.Text})
	}
	_, err := fmt.Fprintln(out, renderTable([]string{"Start", "End", "Text"}, rows, 1, 2))
	return err
}

func timestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(10 * time.Millisecond)
	m := int(d / time.Minute)
	s := float64(d%time.Minute) / float64(time.Second)
	return fmt.Sprintf("%02d:%05.2f", m, s)
}
