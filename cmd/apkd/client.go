package main

import (
	"strings"

	"apkd/internal/api"
	"apkd/internal/config"
)

func newAPIClient(cfg *config.Config, opts *globalOptions) *api.Client {
	baseURL := cfg.ServerURL
	if opts != nil && strings.TrimSpace(opts.serverURL) != "" {
		baseURL = strings.TrimSpace(opts.serverURL)
	}
	return api.NewClient(baseURL)
}
