package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSOptions configures a Google Cloud Storage backed store.
type GCSOptions struct {
	Bucket string
	Prefix string
	// Endpoint points the client at an emulator; it disables authentication.
	Endpoint string
}

// GCS stores artifacts as objects in a GCS bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ Store = (*GCS)(nil)

// NewGCS creates a client using application default credentials.
func NewGCS(ctx context.Context, opts GCSOptions) (*GCS, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	var clientOpts []option.ClientOption
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}
	return &GCS{client: client, bucket: opts.Bucket, prefix: normalizePrefix(opts.Prefix)}, nil
}

func (g *GCS) Save(ctx context.Context, rawName string, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("reader is required")
	}
	name := Sanitize(rawName)
	gcsURL := g.url(name)

	w := g.object(name).NewWriter(ctx)
	w.ContentType = artifactContentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("uploading to %s: %w", gcsURL, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing GCS writer for %s: %w", gcsURL, err)
	}
	return name, nil
}

func (g *GCS) Open(ctx context.Context, name string) (*Object, error) {
	name = Sanitize(name)
	r, err := g.object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("opening object %s: %w", g.url(name), err)
	}
	return &Object{
		ObjectInfo: ObjectInfo{Name: name, Size: r.Attrs.Size, ModTime: r.Attrs.LastModified},
		Body:       r,
	}, nil
}

func (g *GCS) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	name = Sanitize(name)
	attrs, err := g.object(name).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ObjectInfo{}, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("getting object attributes for %s: %w", g.url(name), err)
	}
	return ObjectInfo{Name: name, Size: attrs.Size, ModTime: attrs.Updated}, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) object(name string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(objectKey(g.prefix, name))
}

func (g *GCS) url(name string) string {
	return "gs://" + g.bucket + "/" + objectKey(g.prefix, name)
}
