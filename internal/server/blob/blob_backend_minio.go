package blob

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioBackend struct {
	client *minio.Client
	bucket string
}

func NewMinioBackend(ctx context.Context, cfg *MinioConfig) (*MinioBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		slog.Info("minio create bucket", "bucket", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &MinioBackend{client: client, bucket: cfg.BucketName}, nil
}

func (m *MinioBackend) Name() string {
	return "minio:" + m.bucket
}

func (m *MinioBackend) Get(ctx context.Context, key string, rng *ByteRange) (*Object, error) {
	if !ValidateKey(key) {
		return nil, ErrInvalidKey
	}

	opts := minio.GetObjectOptions{}
	if rng != nil {
		if err := opts.SetRange(rng.Start, rng.End); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
		}
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key, opts)
	if err != nil {
		return nil, m.mapErr(key, err)
	}

	// GetObject is lazy, Stat performs the request and surfaces missing keys
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, m.mapErr(key, err)
	}

	length := info.Size
	if rng != nil {
		length = rng.Length()
	}

	return &Object{
		Body:         obj,
		Length:       length,
		ETag:         info.ETag,
		LastModified: info.LastModified.UTC(),
	}, nil
}

func (m *MinioBackend) Put(ctx context.Context, params *PutParams) (*ObjectInfo, error) {
	if !ValidateKey(params.Key) {
		return nil, ErrInvalidKey
	}

	info, err := m.client.PutObject(ctx, m.bucket, params.Key, params.Body, params.Size, minio.PutObjectOptions{
		ContentType:  params.ContentType,
		StorageClass: params.StorageClass,
	})
	if err != nil {
		return nil, err
	}

	return &ObjectInfo{
		Key:          params.Key,
		ETag:         info.ETag,
		Size:         info.Size,
		LastModified: info.LastModified.UTC(),
	}, nil
}

func (m *MinioBackend) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	if !ValidateKey(key) {
		return nil, ErrInvalidKey
	}

	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, m.mapErr(key, err)
	}

	return &ObjectInfo{
		Key:          key,
		ETag:         info.ETag,
		Size:         info.Size,
		LastModified: info.LastModified.UTC(),
	}, nil
}

func (m *MinioBackend) Delete(ctx context.Context, key string) error {
	if !ValidateKey(key) {
		return ErrInvalidKey
	}
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *MinioBackend) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	var objects []*ObjectInfo

	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		objects = append(objects, &ObjectInfo{
			Key:          obj.Key,
			ETag:         obj.ETag,
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC(),
		})
	}

	return objects, nil
}

func (m *MinioBackend) mapErr(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return err
}

var _ Backend = (*MinioBackend)(nil)
