package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"apkd/internal/config"
	"apkd/internal/format"
)

type globalOptions struct {
	logLevel  string
	serverURL string
	output    string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "apkd",
		Short:         "apkd serves the latest APK build to auto-updating clients",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(opts.logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			formatter, err := format.ForName(opts.output)
			if err != nil {
				return err
			}
			outputFormatter = formatter
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.serverURL, "server", "", "apkd server base URL (default from config server_url)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text, json, or yaml")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newUploadCmd(cfg, opts),
		newStatusCmd(cfg, opts),
		newFetchCmd(cfg, opts),
		newTokenCmd(),
		newConfigCmd(cfg),
		newMigrateCmd(cfg),
	)

	return cmd
}
