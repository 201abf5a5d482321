package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"apkd/internal/config"
	"apkd/internal/contentstore"
	"apkd/internal/digest"
)

var errNothingPublished = errors.New("no release published")

func newFetchCmd(cfg *config.Config, opts *globalOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the current release and verify its sha256",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cfg, opts)
			update, err := client.Update(cmd.Context())
			if err != nil {
				return err
			}
			if !update.Published() {
				return errNothingPublished
			}

			target := out
			if target == "" {
				target = artifactFileName(update.ApkURL)
			}

			dir := filepath.Dir(target)
			tmp, err := os.CreateTemp(dir, ".apkd-fetch-*")
			if err != nil {
				return err
			}
			tmpName := tmp.Name()
			defer os.Remove(tmpName)

			n, err := client.Download(cmd.Context(), update.ApkURL, tmp)
			if closeErr := tmp.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}

			got, err := digest.File(tmpName)
			if err != nil {
				return err
			}
			if got != update.SHA256 {
				return fmt.Errorf("%w: update.json advertises %s, downloaded %s", digest.ErrMismatch, update.SHA256, got)
			}
			if err := os.Rename(tmpName, target); err != nil {
				return err
			}

			result := fetchResult{Path: target, VersionCode: update.VersionCode, SHA256: got, Bytes: n}
			if ok, err := writeStructured(result); ok || err != nil {
				return err
			}
			return writePlain("saved versionCode %d to %s (%s, sha256 verified)\n", update.VersionCode, target, humanize.IBytes(uint64(n)))
		},
	}

	cmd.Flags().StringVarP(&out, "out", "O", "", "destination path (default: artifact name in the current directory)")
	return cmd
}

type fetchResult struct {
	Path        string `json:"path"`
	VersionCode int64  `json:"versionCode"`
	SHA256      string `json:"sha256"`
	Bytes       int64  `json:"bytes"`
}

// artifactFileName derives a safe local file name from an apkUrl.
func artifactFileName(apkURL string) string {
	name := ""
	if u, err := url.Parse(apkURL); err == nil {
		name = path.Base(u.Path)
	}
	return contentstore.Sanitize(name)
}
