package contentstore

import (
	"context"
	"fmt"
	"strings"
)

const (
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend  string
	Dir      string
	Bucket   string
	Prefix   string
	Region   string
	Profile  string
	Endpoint string
}

// Open builds the store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendLocal:
		return NewLocal(opts.Dir)
	case BackendS3:
		return NewS3(S3Options{
			Bucket:   opts.Bucket,
			Prefix:   opts.Prefix,
			Region:   opts.Region,
			Profile:  opts.Profile,
			Endpoint: opts.Endpoint,
		})
	case BackendGCS:
		return NewGCS(ctx, GCSOptions{Bucket: opts.Bucket, Prefix: opts.Prefix, Endpoint: opts.Endpoint})
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown content backend %q", opts.Backend)
	}
}
