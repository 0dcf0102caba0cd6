package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/castmaster/castmaster-backend/internal/orchestrator"
	"github.com/castmaster/castmaster-backend/pkg/mastering"
)

func newVideoCommand(ctx *commandContext) *cobra.Command {
	var (
		req      mastering.RenderRequest
		captions string
		notify   string
		noWait   bool
	)

	cmd := &cobra.Command{
		Use:   "video",
		Short: "Render an audiogram video from mastered audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("notify") {
				notify = ctx.cfg.Email
			}
			if captions != "" {
				segments, err := readSegments(captions)
				if err != nil {
					return err
				}
				req.Captions = segments
			}
			c := cmd.Context()
			s, err := ctx.session(c, orchestrator.KindVideo)
			if err != nil {
				return err
			}
			if _, err := s.SubmitRender(c, req); err != nil {
				return err
			}
			final, err := runJob(c, cmd.OutOrStdout(), s, notify, !noWait)
			if err != nil || noWait {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Video: %s\n", final.DownloadURL)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.AudioURL, "audio-url", "", "Public URL of the audio to visualise")
	f.StringVar(&req.Title, "title", "", "Episode title")
	f.StringVar(&req.Subtitle, "subtitle", "", "Subtitle line")
	f.StringVar(&captions, "captions", "", "JSON file of caption segments (as written by castctl transcribe --json)")
	f.StringVar(&req.GradientFrom, "gradient-from", "", "Background gradient start colour")
	f.StringVar(&req.GradientTo, "gradient-to", "", "Background gradient end colour")
	f.StringVar(&req.AccentColor, "accent", "", "Waveform accent colour")
	f.BoolVar(&req.ShowProgressBar, "progress-bar", true, "Draw a progress bar")
	f.StringVar(&req.AspectRatio, "aspect", "16:9", "Aspect ratio (16:9, 9:16 or 1:1)")
	f.IntVar(&req.DurationSeconds, "duration", 0, "Clip length in seconds (0 renders the whole file)")
	f.IntVar(&req.FPS, "fps", 30, "Frames per second")
	f.StringVar(&notify, "notify", "", "Email to notify on completion")
	f.BoolVar(&noWait, "no-wait", false, "Return once the render is submitted")
	_ = cmd.MarkFlagRequired("audio-url")
	return cmd
}

func readSegments(path string) ([]mastering.Segment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var segments []mastering.Segment
	if err := json.Unmarshal(raw, &segments); err != nil {
		return nil, fmt.Errorf("parse captions %s: %w", path, err)
	}
	return segments, nil
}
