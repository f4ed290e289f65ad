// storage.go
package s3

import (
	"context"
	"time"
)

const (
	ProviderS3    = "s3"
	ProviderMinio = "minio"
)

// ObjectInfo описывает объект, уже записанный в хранилище
type ObjectInfo struct {
	Key         string
	Size        int64
	ETag        string
	ContentType string
}

// Storage определяет интерфейс для работы с S3-совместимым хранилищем.
// Тело файла через сервер не проходит: клиент пишет части напрямую по
// presigned-ссылкам, сервер управляет только жизненным циклом загрузки.
type Storage interface {
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int, ttl time.Duration) (string, error)
	PresignPutObject(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) (string, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	StatObject(ctx context.Context, key string) (*ObjectInfo, error)
	DeleteObject(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// CompletedPart представляет загруженную часть файла
type CompletedPart struct {
	PartNumber int
	ETag       string
}
