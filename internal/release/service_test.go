package release

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"apkd/internal/contentstore"
	"apkd/internal/digest"
	"apkd/internal/metastore"
	"apkd/internal/models"
)

func newTestService(t *testing.T) (*Service, *metastore.MemoryStore, *contentstore.Memory) {
	t.Helper()
	meta := metastore.NewMemoryStore()
	content := contentstore.NewMemory()
	svc := NewService(meta, content, nil)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, meta, content
}

func int64Ptr(v int64) *int64 { return &v }

func TestPublishIncrementsVersion(t *testing.T) {
	ctx := context.Background()
	svc, meta, _ := newTestService(t)
	seed := models.NewRelease(5, "old.apk", digest.Bytes([]byte("old")), time.Now())
	if err := meta.Write(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	payload := make([]byte, 32)
	rel, err := svc.Publish(ctx, PublishInput{Filename: "app-v2.bin", Body: bytes.NewReader(payload)})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rel.VersionCode != 6 {
		t.Fatalf("expected version 6, got %d", rel.VersionCode)
	}
	if rel.SHA256OrEmpty() != digest.Bytes(payload) {
		t.Fatalf("unexpected digest %s", rel.SHA256OrEmpty())
	}
	if rel.FilenameOrEmpty() != "app-v2.bin" {
		t.Fatalf("unexpected filename %s", rel.FilenameOrEmpty())
	}
	if rel.UpdatedAtOrEmpty() != "2024-06-01T12:00:00.000000Z" {
		t.Fatalf("unexpected timestamp %s", rel.UpdatedAtOrEmpty())
	}

	current, err := svc.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.VersionCode != 6 || current.SHA256OrEmpty() != rel.SHA256OrEmpty() {
		t.Fatalf("metadata not persisted: %#v", current)
	}
}

func TestPublishFirstUploadFromDefault(t *testing.T) {
	svc, _, _ := newTestService(t)
	rel, err := svc.Publish(context.Background(), PublishInput{Filename: "a.apk", Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rel.VersionCode != 2 {
		t.Fatalf("expected default 1 + 1 = 2, got %d", rel.VersionCode)
	}
}

func TestPublishExplicitVersion(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	for _, version := range []int64{42, 3} {
		rel, err := svc.Publish(ctx, PublishInput{Filename: "a.apk", Body: strings.NewReader("x"), VersionCode: int64Ptr(version)})
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
		if rel.VersionCode != version {
			t.Fatalf("expected %d, got %d", version, rel.VersionCode)
		}
	}
}

func TestPublishValidation(t *testing.T) {
	svc, meta, content := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   PublishInput
		want string
	}{
		{name: "no body", in: PublishInput{Filename: "a.apk"}, want: "No file uploaded"},
		{name: "empty filename", in: PublishInput{Body: strings.NewReader("x")}, want: "Empty filename"},
		{name: "zero version", in: PublishInput{Filename: "a.apk", Body: strings.NewReader("x"), VersionCode: int64Ptr(0)}, want: "must be >= 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Publish(ctx, tt.in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if vErr.Message != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, vErr.Message)
			}
		})
	}
	if meta.Writes() != 0 {
		t.Fatalf("expected no metadata writes, got %d", meta.Writes())
	}
	if len(content.Names()) != 0 {
		t.Fatalf("expected no stored content, got %v", content.Names())
	}
}

type brokenOpenStore struct {
	*contentstore.Memory
}

func (b brokenOpenStore) Open(context.Context, string) (*contentstore.Object, error) {
	return nil, errors.New("io error")
}

func TestPublishHashFailureKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	meta := metastore.NewMemoryStore()
	svc := NewService(meta, brokenOpenStore{contentstore.NewMemory()}, nil)

	before, err := svc.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	_, err = svc.Publish(ctx, PublishInput{Filename: "a.apk", Body: strings.NewReader("x")})
	var sErr *StorageError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected storage error, got %v", err)
	}
	after, err := svc.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if after.Published() || after.VersionCode != before.VersionCode || meta.Writes() != 0 {
		t.Fatalf("metadata must be untouched: %#v", after)
	}
}

type failingWriteMeta struct {
	*metastore.MemoryStore
}

func (failingWriteMeta) Write(context.Context, models.Release) error {
	return errors.New("read-only filesystem")
}

func TestPublishMetadataWriteFailureSurfaces(t *testing.T) {
	svc := NewService(failingWriteMeta{metastore.NewMemoryStore()}, contentstore.NewMemory(), nil)
	_, err := svc.Publish(context.Background(), PublishInput{Filename: "a.apk", Body: strings.NewReader("x")})
	var sErr *StorageError
	if !errors.As(err, &sErr) || sErr.Op != "write metadata" {
		t.Fatalf("expected write metadata storage error, got %v", err)
	}
}

func TestPublishConcurrentUploadsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	const uploads = 16
	var wg sync.WaitGroup
	errs := make(chan error, uploads)
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Publish(ctx, PublishInput{
				Filename: fmt.Sprintf("app-%d.apk", i),
				Body:     strings.NewReader(fmt.Sprintf("payload %d", i)),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	current, err := svc.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.VersionCode != 1+uploads {
		t.Fatalf("expected version %d, got %d", 1+uploads, current.VersionCode)
	}

	obj, err := svc.Artifact(ctx, current.FilenameOrEmpty())
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if digest.Bytes(data) != current.SHA256OrEmpty() {
		t.Fatal("current digest does not match current artifact")
	}
}

func TestCurrentArtifactInfo(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	rel, info, err := svc.CurrentArtifact(ctx)
	if err != nil {
		t.Fatalf("current artifact: %v", err)
	}
	if rel.Published() || info.Size != 0 {
		t.Fatalf("expected empty state, got %#v %#v", rel, info)
	}

	if _, err := svc.Publish(ctx, PublishInput{Filename: "a.apk", Body: strings.NewReader("12345")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_, info, err = svc.CurrentArtifact(ctx)
	if err != nil {
		t.Fatalf("current artifact: %v", err)
	}
	if info.Size != 5 || info.Name != "a.apk" {
		t.Fatalf("unexpected info %#v", info)
	}
}

func TestArtifactNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Artifact(context.Background(), "missing.apk")
	if !errors.Is(err, contentstore.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParseVersionCode(t *testing.T) {
	tests := []struct {
		raw     string
		want    *int64
		wantErr bool
	}{
		{raw: "", want: nil},
		{raw: "  ", want: nil},
		{raw: "7", want: int64Ptr(7)},
		{raw: " 12 ", want: int64Ptr(12)},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "1.5", wantErr: true},
		{raw: "seven", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseVersionCode(tt.raw)
			if tt.wantErr {
				if !IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
