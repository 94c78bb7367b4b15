package ledger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig configures the S3-compatible ledger backend.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	Key       string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Validate checks the required fields.
func (c ObjectStoreConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("ledger.s3.endpoint must be set for s3 backend")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("ledger.s3.bucket must be set for s3 backend")
	}
	if strings.TrimSpace(c.Key) == "" {
		return fmt.Errorf("ledger.s3.key must be set for s3 backend")
	}
	return nil
}

// objectClient is the subset of the minio client used by ObjectStoreBackend.
type objectClient interface {
	ReadObject(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// minioObjects adapts *minio.Client to objectClient.
type minioObjects struct {
	*minio.Client
}

func (m minioObjects) ReadObject(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	obj, err := m.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// ObjectStoreBackend stores the ledger as a single object in an S3-compatible bucket.
type ObjectStoreBackend struct {
	client objectClient
	cfg    ObjectStoreConfig
}

// NewObjectStoreBackend dials the object store described by cfg.
func NewObjectStoreBackend(cfg ObjectStoreConfig) (*ObjectStoreBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, &BackendError{Op: "open", Backend: "s3:" + cfg.Endpoint, Err: err}
	}
	return &ObjectStoreBackend{client: minioObjects{client}, cfg: cfg}, nil
}

// Read implements Backend.
func (b *ObjectStoreBackend) Read(ctx context.Context) ([]byte, error) {
	obj, err := b.client.ReadObject(ctx, b.cfg.Bucket, b.cfg.Key)
	if err != nil {
		return nil, b.readErr(err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, b.readErr(err)
	}
	return data, nil
}

func (b *ObjectStoreBackend) readErr(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return ErrNoSnapshot
	}
	return &BackendError{Op: "read", Backend: b.Describe(), Err: err}
}

// Write implements Backend. The bucket is created on first write.
func (b *ObjectStoreBackend) Write(ctx context.Context, data []byte) error {
	exists, err := b.client.BucketExists(ctx, b.cfg.Bucket)
	if err != nil {
		return &BackendError{Op: "write", Backend: b.Describe(), Err: err}
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.cfg.Bucket, minio.MakeBucketOptions{Region: b.cfg.Region}); err != nil {
			return &BackendError{Op: "write", Backend: b.Describe(), Err: fmt.Errorf("create bucket: %w", err)}
		}
	}

	_, err = b.client.PutObject(ctx, b.cfg.Bucket, b.cfg.Key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return &BackendError{Op: "write", Backend: b.Describe(), Err: err}
	}
	return nil
}

// Describe implements Backend.
func (b *ObjectStoreBackend) Describe() string {
	return fmt.Sprintf("s3://%s/%s", b.cfg.Bucket, b.cfg.Key)
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
