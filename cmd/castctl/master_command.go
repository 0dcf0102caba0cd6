package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/castmaster/castmaster-backend/internal/orchestrator"
	"github.com/castmaster/castmaster-backend/internal/upload"
)

type masterOptions struct {
	template  string
	reference string
	quality   string
	limiter   string
	notify    string
	output    string
	noWait    bool
}

func newMasterCommand(ctx *commandContext) *cobra.Command {
	var opts masterOptions

	cmd := &cobra.Command{
		Use:   "master <audio-file>",
		Short: "Upload an episode and master it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}
			defaults := ctx.cfg.Defaults
			if !cmd.Flags().Changed("template") && defaults.Template != "" {
				opts.template = defaults.Template
			}
			if !cmd.Flags().Changed("quality") && defaults.Quality != "" {
				opts.quality = defaults.Quality
			}
			if !cmd.Flags().Changed("limiter") && defaults.Limiter != "" {
				opts.limiter = defaults.Limiter
			}
			if !cmd.Flags().Changed("notify") {
				opts.notify = ctx.cfg.Email
			}
			return runMaster(cmd, ctx, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.template, "template", "t", "", "Mastering template id")
	f.StringVar(&opts.reference, "reference", "", "Uploaded reference file id to match")
	f.StringVar(&opts.quality, "quality", "standard", "Output quality (standard or high)")
	f.StringVar(&opts.limiter, "limiter", "", "Limiter mode")
	f.StringVar(&opts.notify, "notify", "", "Email to notify on completion")
	f.StringVarP(&opts.output, "output", "o", "", "Write the mastered file here")
	f.BoolVar(&opts.noWait, "no-wait", false, "Return once the job is submitted")
	return cmd
}

func runMaster(cmd *cobra.Command, ctx *commandContext, path string, opts masterOptions) error {
	if opts.template == "" && opts.reference == "" {
		return fmt.Errorf("choose a --template or a --reference file")
	}
	out := cmd.OutOrStdout()
	c := cmd.Context()

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}

	s, err := ctx.session(c, orchestrator.KindMastering)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	fmt.Fprintf(out, "Uploading %s (%s)\n", name, humanize.Bytes(uint64(info.Size())))
	printer := newProgressPrinter(out)
	unsubscribe := s.Observe(printer.observe)
	_, err = s.Upload(c, upload.File{
		Name:        name,
		Size:        info.Size(),
		ContentType: contentType(name),
		Body:        file,
	})
	printer.finish()
	unsubscribe()
	if err != nil {
		return err
	}

	if _, err := s.SubmitMaster(c, orchestrator.MasterParams{
		TemplateID:      opts.template,
		TemplateName:    opts.template,
		ReferenceFileID: opts.reference,
		OutputQuality:   opts.quality,
		LimiterMode:     opts.limiter,
	}); err != nil {
		return err
	}
	if opts.quality == "high" && s.Snapshot().OutputQuality != "high" {
		fmt.Fprintln(out, "No HQ credits available, exporting in standard quality")
	}

	final, err := runJob(c, out, s, opts.notify, !opts.noWait)
	if err != nil || opts.noWait {
		return err
	}
	fmt.Fprintf(out, "Download: %s\n", final.DownloadURL)
	if final.CloudSynced {
		fmt.Fprintln(out, "Saved to your CastMaster files")
	}
	if opts.output != "" {
		n, err := saveOutput(cmd, ctx, final.JobID, opts.output)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s (%s)\n", opts.output, humanize.Bytes(uint64(n)))
	}
	return nil
}

func saveOutput(cmd *cobra.Command, ctx *commandContext, jobID, dest string) (int64, error) {
	body, _, err := ctx.jobs.Download(cmd.Context(), jobID)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func contentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
