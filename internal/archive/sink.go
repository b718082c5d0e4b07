package archive

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/afero"

	"verdandi/internal/config"
)

const contentType = "application/yaml"

// Sink stores archived snapshots.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
	Describe() string
}

// FilesystemSink writes snapshots below Root on an afero filesystem.
type FilesystemSink struct {
	FS   afero.Fs
	Root string
}

// NewFilesystemSink returns a sink backed by the OS filesystem.
func NewFilesystemSink(root string) *FilesystemSink {
	return &FilesystemSink{FS: afero.NewOsFs(), Root: root}
}

// Put writes data atomically via a temp file and rename.
func (s *FilesystemSink) Put(_ context.Context, key string, data []byte) error {
	target := filepath.Join(s.Root, filepath.FromSlash(key))
	dir := filepath.Dir(target)
	if err := s.FS.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive directory %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(s.FS, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = s.FS.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.FS.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", target, err)
	}
	return nil
}

// Describe implements Sink.
func (s *FilesystemSink) Describe() string {
	return "filesystem:" + s.Root
}

// MinioSink uploads snapshots to an S3-compatible bucket.
type MinioSink struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinioSink connects to the configured endpoint. The bucket is created on
// first use when missing.
func NewMinioSink(cfg config.Archive) (*MinioSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioSink{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// Put implements Sink.
func (s *MinioSink) Put(ctx context.Context, key string, data []byte) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}
	_, err := s.client.PutObject(ctx, s.bucket, path.Clean(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Describe implements Sink.
func (s *MinioSink) Describe() string {
	return "s3://" + s.bucket
}

// Check verifies the bucket is reachable.
func (s *MinioSink) Check(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioSink) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
