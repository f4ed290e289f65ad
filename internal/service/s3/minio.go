package s3

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioAPI - подмножество методов minio.Core
type MinioAPI interface {
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	Presign(ctx context.Context, method, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	PresignedPutObject(ctx context.Context, bucket, object string, expires time.Duration) (*url.URL, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// MinioClient реализует Storage поверх MinIO
type MinioClient struct {
	core   MinioAPI
	bucket string
	retry  retrier
	logger zerolog.Logger
}

// NewMinioClient создает клиента для self-hosted MinIO
func NewMinioClient(conf *Config, logger zerolog.Logger) (*MinioClient, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(conf.Endpoint, "https://"), "http://")
	core, err := minio.NewCore(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKeyID, conf.SecretAccessKey, ""),
		Secure: conf.UseSSL,
		Region: conf.Region,
	})
	if err != nil {
		return nil, classify("NewCore", "", err)
	}

	return NewMinioClientWithAPI(core, conf.Bucket, logger), nil
}

func NewMinioClientWithAPI(core MinioAPI, bucket string, logger zerolog.Logger) *MinioClient {
	logger = logger.With().Str("component", "minio").Str("bucket", bucket).Logger()
	return &MinioClient{
		core:   core,
		bucket: bucket,
		retry:  newRetrier(logger),
		logger: logger,
	}
}

func (m *MinioClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ok, err := m.core.BucketExists(ctx, m.bucket)
	if err != nil {
		return classify("BucketExists", "", err)
	}
	if !ok {
		return &Error{Op: "BucketExists", Kind: KindMisconfigured, ProviderCode: "NoSuchBucket",
			Err: fmt.Errorf("bucket %s does not exist", m.bucket)}
	}
	return nil
}

func (m *MinioClient) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	var uploadID string
	err := m.retry.do(ctx, "CreateMultipartUpload", key, func(ctx context.Context) error {
		id, err := m.core.NewMultipartUpload(ctx, m.bucket, key, minio.PutObjectOptions{ContentType: contentType})
		if err != nil {
			return err
		}
		uploadID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return uploadID, nil
}

// PresignUploadPart подписывает PUT с параметрами partNumber и uploadId
func (m *MinioClient) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("partNumber", strconv.Itoa(partNumber))
	params.Set("uploadId", uploadID)

	u, err := m.core.Presign(ctx, http.MethodPut, m.bucket, key, ttl, params)
	if err != nil {
		return "", classify("PresignUploadPart", key, err)
	}
	return u.String(), nil
}

func (m *MinioClient) PresignPutObject(ctx context.Context, key, _ string, ttl time.Duration) (string, error) {
	u, err := m.core.PresignedPutObject(ctx, m.bucket, key, ttl)
	if err != nil {
		return "", classify("PresignPutObject", key, err)
	}
	return u.String(), nil
}

func (m *MinioClient) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) (string, error) {
	completeParts := make([]minio.CompletePart, 0, len(parts))
	for _, part := range parts {
		completeParts = append(completeParts, minio.CompletePart{
			PartNumber: part.PartNumber,
			ETag:       part.ETag,
		})
	}

	var etag string
	err := m.retry.do(ctx, "CompleteMultipartUpload", key, func(ctx context.Context) error {
		info, err := m.core.CompleteMultipartUpload(ctx, m.bucket, key, uploadID, completeParts, minio.PutObjectOptions{})
		if err != nil {
			return err
		}
		etag = info.ETag
		return nil
	})
	if err != nil {
		return "", err
	}
	return etag, nil
}

func (m *MinioClient) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	return m.retry.do(ctx, "AbortMultipartUpload", key, func(ctx context.Context) error {
		return m.core.AbortMultipartUpload(ctx, m.bucket, key, uploadID)
	})
}

func (m *MinioClient) StatObject(ctx context.Context, key string) (*ObjectInfo, error) {
	var info *ObjectInfo
	err := m.retry.do(ctx, "StatObject", key, func(ctx context.Context) error {
		oi, err := m.core.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
		if err != nil {
			return err
		}
		info = &ObjectInfo{
			Key:         key,
			Size:        oi.Size,
			ETag:        oi.ETag,
			ContentType: oi.ContentType,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (m *MinioClient) DeleteObject(ctx context.Context, key string) error {
	err := m.retry.do(ctx, "RemoveObject", key, func(ctx context.Context) error {
		return m.core.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
	})
	if IsNotFound(err) {
		return nil
	}
	return err
}

// New выбирает реализацию хранилища по Config.Provider
func New(conf *Config, logger zerolog.Logger) (Storage, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if conf.Provider == ProviderMinio {
		return NewMinioClient(conf, logger)
	}
	return NewClient(conf, logger)
}
