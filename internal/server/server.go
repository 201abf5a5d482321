package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"apkd/internal/auth"
	"apkd/internal/release"
)

const (
	readHeaderTimeout   = 5 * time.Second
	readTimeout         = 0
	defaultWriteTimeout = 10 * time.Minute
	idleTimeout         = 60 * time.Second
	shutdownTimeout     = 15 * time.Second

	defaultMaxUploadBytes  int64 = 512 << 20
	defaultMultipartMemory int64 = 8 << 20
)

// Options configures the HTTP layer. Zero values fall back to defaults.
type Options struct {
	Addr string
	// PublicURL overrides the request scheme and host when building apkUrl.
	PublicURL         string
	TrustProxyHeaders bool
	WriteTimeout      time.Duration

	UploadToken     string
	UploadTokenHash string

	MaxUploadBytes  int64
	MultipartMemory int64

	AuthMaxFailures   int
	AuthFailureWindow time.Duration
	AuthBlockDuration time.Duration
}

// Server wraps HTTP handlers for the update API.
type Server struct {
	addr        string
	service     *release.Service
	logger      *slog.Logger
	opts        Options
	verifier    auth.Verifier
	authLimiter *authFailureLimiter
	now         func() time.Time
}

// New creates a new server instance.
func New(service *release.Service, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.MultipartMemory <= 0 {
		opts.MultipartMemory = defaultMultipartMemory
	}

	return &Server{
		addr:        opts.Addr,
		service:     service,
		logger:      logger,
		opts:        opts,
		verifier:    auth.NewVerifier(opts.UploadToken, opts.UploadTokenHash),
		authLimiter: newAuthFailureLimiter(opts.AuthMaxFailures, opts.AuthFailureWindow, opts.AuthBlockDuration),
		now:         time.Now,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRecovery(s.withRequestLogging(s.routes()))
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log().Info("starting server", "addr", s.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
