// Package release publishes uploaded artifacts and answers "what is the
// latest version" queries.
package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"apkd/internal/contentstore"
	"apkd/internal/digest"
	"apkd/internal/metastore"
	"apkd/internal/models"
)

// Service composes the metadata and content stores.
type Service struct {
	meta    metastore.Store
	content contentstore.Store
	logger  *slog.Logger
	now     func() time.Time

	// publishMu covers save, hash and the metadata read-modify-write so
	// concurrent uploads apply one after another.
	publishMu sync.Mutex
}

// PublishInput is one upload request.
type PublishInput struct {
	Filename string
	Body     io.Reader
	// VersionCode overrides the default of previous+1 when set.
	VersionCode *int64
}

// NewService wires a service. A nil logger uses slog.Default.
func NewService(meta metastore.Store, content contentstore.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{meta: meta, content: content, logger: logger, now: time.Now}
}

// Current returns the persisted release record.
func (s *Service) Current(ctx context.Context) (models.Release, error) {
	release, err := s.meta.Read(ctx)
	if err != nil {
		return models.Release{}, storageError("read metadata", err)
	}
	return release, nil
}

// CurrentArtifact returns the record plus size information for the current
// artifact. The info is zero when nothing is published or the file is gone.
func (s *Service) CurrentArtifact(ctx context.Context) (models.Release, contentstore.ObjectInfo, error) {
	release, err := s.Current(ctx)
	if err != nil {
		return models.Release{}, contentstore.ObjectInfo{}, err
	}
	if !release.Published() {
		return release, contentstore.ObjectInfo{}, nil
	}
	info, err := s.content.Stat(ctx, release.FilenameOrEmpty())
	if err != nil {
		if errors.Is(err, contentstore.ErrNotFound) {
			s.logger.Warn("current artifact missing from content store", "filename", release.FilenameOrEmpty())
			return release, contentstore.ObjectInfo{}, nil
		}
		return models.Release{}, contentstore.ObjectInfo{}, storageError("stat artifact", err)
	}
	return release, info, nil
}

// Artifact opens any stored artifact by name. Missing artifacts return an
// error matching contentstore.ErrNotFound.
func (s *Service) Artifact(ctx context.Context, name string) (*contentstore.Object, error) {
	obj, err := s.content.Open(ctx, name)
	if err != nil {
		if errors.Is(err, contentstore.ErrNotFound) {
			return nil, err
		}
		return nil, storageError("open artifact", err)
	}
	return obj, nil
}

// Publish stores the artifact, hashes it and records it as current. The
// metadata record is written only after the content is stored and hashed.
func (s *Service) Publish(ctx context.Context, in PublishInput) (models.Release, error) {
	if in.Body == nil {
		return models.Release{}, &ValidationError{Field: "file", Message: "No file uploaded"}
	}
	if in.Filename == "" {
		return models.Release{}, &ValidationError{Field: "file", Message: "Empty filename"}
	}
	if in.VersionCode != nil && *in.VersionCode < models.DefaultVersionCode {
		return models.Release{}, &ValidationError{Field: "versionCode", Message: "must be >= 1"}
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	name, err := s.content.Save(ctx, in.Filename, in.Body)
	if err != nil {
		return models.Release{}, storageError("save artifact", err)
	}

	sum, err := s.hashStored(ctx, name)
	if err != nil {
		return models.Release{}, err
	}

	previous, err := s.meta.Read(ctx)
	if err != nil {
		return models.Release{}, storageError("read metadata", err)
	}

	version := previous.VersionCode + 1
	if in.VersionCode != nil {
		version = *in.VersionCode
	}

	next := models.NewRelease(version, name, sum, s.now())
	if err := s.meta.Write(ctx, next); err != nil {
		return models.Release{}, storageError("write metadata", err)
	}

	s.logger.Info("published artifact",
		"filename", name,
		"version_code", version,
		"previous_version_code", previous.VersionCode,
		"sha256", sum,
	)
	return next, nil
}

func (s *Service) hashStored(ctx context.Context, name string) (string, error) {
	obj, err := s.content.Open(ctx, name)
	if err != nil {
		return "", storageError("reopen artifact", err)
	}
	defer obj.Body.Close()

	sum, err := digest.Reader(obj.Body)
	if err != nil {
		return "", storageError("hash artifact", err)
	}
	return sum, nil
}

// ParseVersionCode parses the optional versionCode form field. Blank input
// yields nil.
func ParseVersionCode(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: "versionCode", Message: fmt.Sprintf("invalid integer %q", raw)}
	}
	if value < models.DefaultVersionCode {
		return nil, &ValidationError{Field: "versionCode", Message: "must be >= 1"}
	}
	return &value, nil
}
