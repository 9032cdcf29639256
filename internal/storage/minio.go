package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOpts は Minio の設定を変更する関数です。
type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	useSSL          bool
}

// WithEndpoint は接続先を設定します。
func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) { c.endpoint = endpoint }
}

// WithBucket は保存先バケットを設定します。
func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) { c.bucket = bucket }
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) { c.accessKey = accessKey }
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) { c.secretAccessKey = secretKey }
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) { c.useSSL = useSSL }
}

// Minio は S3 互換ストレージに保存します。
type Minio struct {
	bucket string
	client *minio.Client
}

// NewMinio はクライアントを作成し、バケットが無ければ作成します。
func NewMinio(ctx context.Context, opts ...MinioOpts) (*Minio, error) {
	cfg := &minioConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.endpoint == "" || cfg.bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.bucket, err)
		}
	}
	return &Minio{bucket: cfg.bucket, client: client}, nil
}

func (m *Minio) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	_, err = m.client.PutObject(ctx, m.bucket, cleaned, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *Minio) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, 0, err
	}
	object, err := m.client.GetObject(ctx, m.bucket, cleaned, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, translateMinioError(err)
	}
	info, err := object.Stat()
	if err != nil {
		object.Close()
		return nil, 0, translateMinioError(err)
	}
	return object, info.Size, nil
}

func (m *Minio) Delete(ctx context.Context, key string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	return translateMinioError(m.client.RemoveObject(ctx, m.bucket, cleaned, minio.RemoveObjectOptions{}))
}

func translateMinioError(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return err
}
