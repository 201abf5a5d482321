package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"apkd/internal/config"
)

func newStatusCmd(cfg *config.Config, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the release advertised by update.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(cfg, opts).Update(cmd.Context())
			if err != nil {
				return err
			}
			if ok, err := writeStructured(resp); ok || err != nil {
				return err
			}
			if !resp.Published() {
				return writePlain("no release published\n")
			}
			return writeLines(
				fmt.Sprintf("versionCode: %d", resp.VersionCode),
				fmt.Sprintf("apkUrl: %s", resp.ApkURL),
				fmt.Sprintf("sha256: %s", resp.SHA256),
			)
		},
	}
}
