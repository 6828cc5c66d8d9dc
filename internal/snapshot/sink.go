package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Sink stores and retrieves snapshot blobs by name.
type Sink interface {
	Save(ctx context.Context, name string, r io.Reader, size int64) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// ObjectScheme prefixes object-storage snapshot locations.
const ObjectScheme = "minio://"

// SplitObjectURL splits minio://bucket/key. ok is false for anything else.
func SplitObjectURL(loc string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(loc, ObjectScheme)
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// FileSink keeps snapshots on the local filesystem. Names are relative to
// Dir; an empty Dir uses names as paths.
type FileSink struct {
	Dir string
}

func (s FileSink) path(name string) string {
	if s.Dir == "" {
		return name
	}
	return filepath.Join(s.Dir, name)
}

// Save writes through a temp file and renames, so readers never see a
// partial snapshot.
func (s FileSink) Save(_ context.Context, name string, r io.Reader, _ int64) error {
	dst := s.path(name)
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Open returns the named snapshot. The caller closes it.
func (s FileSink) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	return f, nil
}

// MinIOConfig addresses an S3-compatible bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOSink keeps snapshots in object storage.
type MinIOSink struct {
	mc     *minio.Client
	bucket string
}

// NewMinIOSink creates a client for cfg. It does not contact the server.
func NewMinIOSink(cfg MinIOConfig) (*MinIOSink, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio access_key and secret_key are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinIOSink{mc: mc, bucket: cfg.Bucket}, nil
}

// Bucket returns the target bucket name.
func (s *MinIOSink) Bucket() string { return s.bucket }

// EnsureBucket creates the bucket if it does not exist.
func (s *MinIOSink) EnsureBucket(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Save uploads a snapshot object.
func (s *MinIOSink) Save(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := s.mc.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// Open downloads a snapshot object. The caller closes it.
func (s *MinIOSink) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := s.mc.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	// GetObject is lazy; Stat surfaces a missing key now.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("snapshot %s not found in bucket %s", name, s.bucket)
		}
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	return obj, nil
}
