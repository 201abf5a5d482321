package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultVersionCode is the version stored before anything is published.
	DefaultVersionCode int64 = 1

	// UnpublishedVersionCode is reported to clients while no artifact exists.
	UnpublishedVersionCode int64 = 0

	timestampLayout = "2006-01-02T15:04:05.000000"
)

// Release is the single persisted record describing the current artifact.
// Filename and SHA256 are either both nil or both set.
type Release struct {
	VersionCode int64   `json:"versionCode"`
	Filename    *string `json:"filename"`
	SHA256      *string `json:"sha256"`
	UpdatedAt   *string `json:"updatedAt"`
}

// DefaultRelease returns the record used when nothing has been persisted yet.
func DefaultRelease() Release {
	return Release{VersionCode: DefaultVersionCode}
}

// NewRelease builds a published record.
func NewRelease(versionCode int64, filename, sha256 string, updatedAt time.Time) Release {
	stamp := FormatTimestamp(updatedAt)
	return Release{
		VersionCode: versionCode,
		Filename:    &filename,
		SHA256:      &sha256,
		UpdatedAt:   &stamp,
	}
}

// Published reports whether the record points at an artifact.
func (r Release) Published() bool {
	return r.Filename != nil && strings.TrimSpace(*r.Filename) != ""
}

// FilenameOrEmpty returns the artifact filename or "".
func (r Release) FilenameOrEmpty() string {
	if r.Filename == nil {
		return ""
	}
	return *r.Filename
}

// SHA256OrEmpty returns the artifact digest or "".
func (r Release) SHA256OrEmpty() string {
	if r.SHA256 == nil {
		return ""
	}
	return *r.SHA256
}

// UpdatedAtOrEmpty returns the last publish timestamp or "".
func (r Release) UpdatedAtOrEmpty() string {
	if r.UpdatedAt == nil {
		return ""
	}
	return *r.UpdatedAt
}

// Validate checks the record invariants before it is persisted.
func (r Release) Validate() error {
	if r.VersionCode < 1 {
		return fmt.Errorf("versionCode must be >= 1, got %d", r.VersionCode)
	}
	hasName := r.Filename != nil
	hasSum := r.SHA256 != nil
	if hasName != hasSum {
		return fmt.Errorf("filename and sha256 must be set together")
	}
	if hasName && strings.TrimSpace(*r.Filename) == "" {
		return fmt.Errorf("filename must not be empty")
	}
	if hasSum && !isLowerHexDigest(*r.SHA256) {
		return fmt.Errorf("sha256 must be a lowercase hex digest")
	}
	return nil
}

// FormatTimestamp renders t in UTC ISO-8601 with microseconds and a trailing Z.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout) + "Z"
}

func isLowerHexDigest(value string) bool {
	if len(value) != 64 {
		return false
	}
	for _, ch := range value {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return false
		}
	}
	return true
}
