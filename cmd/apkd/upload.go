package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"apkd/internal/api"
	"apkd/internal/config"
	"apkd/internal/digest"
)

func newUploadCmd(cfg *config.Config, opts *globalOptions) *cobra.Command {
	var versionCode int64
	var name string
	var token string

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Publish an artifact as the current release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}

			req := api.UploadRequest{Filename: filepath.Base(path)}
			if strings.TrimSpace(name) != "" {
				req.Filename = strings.TrimSpace(name)
			}
			if cmd.Flags().Changed("version-code") {
				if versionCode < 1 {
					return fmt.Errorf("--version-code must be >= 1")
				}
				req.VersionCode = &versionCode
			}

			localSum, err := digest.File(path)
			if err != nil {
				return err
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			client := newAPIClient(cfg, opts)
			// $APKD_UPLOAD_TOKEN is already folded into the config.
			if token == "" {
				token = cfg.Auth.UploadToken
			}
			client.WithToken(token)
			resp, err := client.Upload(cmd.Context(), req, f)
			if err != nil {
				return err
			}
			if resp.SHA256 != localSum {
				return fmt.Errorf("%w: server stored %s, local file is %s", digest.ErrMismatch, resp.SHA256, localSum)
			}

			if ok, err := writeStructured(resp); ok || err != nil {
				return err
			}
			return writeLines(
				fmt.Sprintf("published versionCode %d (%s)", resp.VersionCode, humanize.IBytes(uint64(info.Size()))),
				fmt.Sprintf("apkUrl: %s", resp.ApkURL),
				fmt.Sprintf("sha256: %s", resp.SHA256),
			)
		},
	}

	cmd.Flags().Int64Var(&versionCode, "version-code", 0, "explicit versionCode (default: previous + 1)")
	cmd.Flags().StringVar(&name, "name", "", "artifact filename to publish under (default: base name of path)")
	cmd.Flags().StringVar(&token, "token", "", "upload token (default: $APKD_UPLOAD_TOKEN or auth.upload_token)")
	return cmd
}
