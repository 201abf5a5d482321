package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/spf13/cobra"

	"apkd/internal/config"
	"apkd/internal/contentstore"
	"apkd/internal/metastore"
	"apkd/internal/release"
	"apkd/internal/server"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	var (
		gops      bool
		ephemeral bool
	)

	cmd := &cobra.Command{
		Use:   "srv",
		Short: "Run the apkd update server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}

			logger := slog.Default().With("component", "server")

			if gops {
				if err := agent.Listen(agent.Options{}); err != nil {
					logger.Warn("could not start gops agent", "error", err)
				} else {
					defer agent.Close()
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runCfg := *cfg
			if ephemeral {
				runCfg.Metadata.Backend = metastore.BackendMemory
				runCfg.Content.Backend = contentstore.BackendMemory
				logger.Warn("ephemeral mode: releases are kept in memory and lost on exit")
			}

			svc, closeStores, err := openService(ctx, &runCfg, logger)
			if err != nil {
				return err
			}
			defer closeStores()

			if cfg.InsecureDefaultToken() {
				logger.Warn("uploads are protected by the insecure default token; set APKD_UPLOAD_TOKEN or auth.upload_token_hash")
			}
			if cfg.LoadedPath != "" {
				logger.Info("loaded config", "path", cfg.LoadedPath)
			}

			srv := server.New(svc, serverOptions(cfg), logger)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().BoolVar(&gops, "gops", false, "start a gops diagnostics agent")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "keep metadata and artifacts in memory only")
	return cmd
}

func openService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*release.Service, func(), error) {
	logger.Info("opening metadata store", "backend", cfg.Metadata.Backend, "path", cfg.Metadata.Path)
	meta, err := metastore.Open(cfg.Metadata.Backend, cfg.Metadata.Path)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("opening content store", "backend", cfg.Content.Backend, "dir", cfg.Content.Dir, "bucket", cfg.Content.Bucket)
	content, err := contentstore.Open(ctx, contentstore.Options{
		Backend:  cfg.Content.Backend,
		Dir:      cfg.Content.Dir,
		Bucket:   cfg.Content.Bucket,
		Prefix:   cfg.Content.Prefix,
		Region:   cfg.Content.Region,
		Profile:  cfg.Content.Profile,
		Endpoint: cfg.Content.Endpoint,
	})
	if err != nil {
		_ = meta.Close()
		return nil, nil, err
	}

	closeStores := func() {
		if err := content.Close(); err != nil {
			logger.Warn("close content store", "error", err)
		}
		if err := meta.Close(); err != nil {
			logger.Warn("close metadata store", "error", err)
		}
	}
	return release.NewService(meta, content, slog.Default().With("component", "release")), closeStores, nil
}

func serverOptions(cfg *config.Config) server.Options {
	return server.Options{
		Addr:              cfg.ListenAddr,
		PublicURL:         cfg.Server.PublicURL,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration,
		UploadToken:       cfg.Auth.UploadToken,
		UploadTokenHash:   cfg.Auth.UploadTokenHash,
		MaxUploadBytes:    cfg.Upload.MaxBytes,
		MultipartMemory:   cfg.Upload.MultipartMemory,
		AuthMaxFailures:   cfg.Auth.MaxFailures,
		AuthFailureWindow: cfg.Auth.FailureWindow.Duration,
		AuthBlockDuration: cfg.Auth.BlockDuration.Duration,
	}
}
