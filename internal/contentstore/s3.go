package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

const artifactContentType = "application/octet-stream"

// S3Options configures an S3-backed store.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Profile  string
	Endpoint string
}

// S3 stores artifacts as objects in an AWS S3 bucket.
type S3 struct {
	bucket   string
	prefix   string
	client   s3iface.S3API
	uploader s3manageriface.UploaderAPI
}

var _ Store = (*S3)(nil)

// NewS3 creates an S3 store using the shared AWS credential chain, or the
// named profile when one is given.
func NewS3(opts S3Options) (*S3, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg := aws.NewConfig()
	if opts.Region != "" {
		cfg = cfg.WithRegion(opts.Region)
	}
	if opts.Profile != "" {
		cfg = cfg.WithCredentials(credentials.NewSharedCredentials("", opts.Profile))
	}
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	client := s3.New(sess)
	return newS3WithClient(client, s3manager.NewUploaderWithClient(client), opts.Bucket, opts.Prefix), nil
}

func newS3WithClient(client s3iface.S3API, uploader s3manageriface.UploaderAPI, bucket, prefix string) *S3 {
	return &S3{
		bucket:   bucket,
		prefix:   normalizePrefix(prefix),
		client:   client,
		uploader: uploader,
	}
}

func (s *S3) Save(ctx context.Context, rawName string, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("reader is required")
	}
	name := Sanitize(rawName)
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(s.prefix, name)),
		Body:        r,
		ContentType: aws.String(artifactContentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to s3://%s: %w", name, s.bucket, err)
	}
	return name, nil
}

func (s *S3) Open(ctx context.Context, name string) (*Object, error) {
	name = Sanitize(name)
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("getting %s from s3://%s: %w", name, s.bucket, err)
	}
	return &Object{
		ObjectInfo: ObjectInfo{
			Name:    name,
			Size:    aws.Int64Value(out.ContentLength),
			ModTime: aws.TimeValue(out.LastModified),
		},
		Body: out.Body,
	}, nil
}

func (s *S3) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	name = Sanitize(name)
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ObjectInfo{}, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("head %s in s3://%s: %w", name, s.bucket, err)
	}
	return ObjectInfo{
		Name:    name,
		Size:    aws.Int64Value(out.ContentLength),
		ModTime: aws.TimeValue(out.LastModified),
	}, nil
}

func (s *S3) Close() error {
	return nil
}

func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return path.Clean(prefix)
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
