package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var flags globalFlags
	ctx := newCommandContext(&flags)

	rootCmd := &cobra.Command{
		Use:           "castctl",
		Short:         "Master, render and transcribe podcast audio",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Client config file (default ~/.config/castctl/config.toml)")
	pf.StringVar(&flags.appURL, "app-url", "", "Application server URL")
	pf.StringVar(&flags.masteringURL, "mastering-url", "", "Mastering API URL")
	pf.BoolVar(&flags.verbose, "verbose", false, "Log requests to stderr")

	rootCmd.AddCommand(newMasterCommand(ctx))
	rootCmd.AddCommand(newVideoCommand(ctx))
	rootCmd.AddCommand(newTranscribeCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newFilesCommand(ctx))
	rootCmd.AddCommand(newTemplatesCommand(ctx))
	rootCmd.AddCommand(newUsageCommand(ctx))

	return rootCmd
}
