package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

const defaultTimeout = 30 * time.Second

// API - подмножество методов *s3.Client, которыми пользуется хранилище
type API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Presigner - подмножество методов *s3.PresignClient
type Presigner interface {
	PresignUploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Client предоставляет методы для работы с S3-совместимым хранилищем
type Client struct {
	api       API
	presigner Presigner
	bucket    string
	retry     retrier
	logger    zerolog.Logger
}

// NewClient создает новый экземпляр клиента S3
func NewClient(conf *Config, logger zerolog.Logger) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	opts := s3.Options{
		Region:       conf.Region,
		Credentials:  creds,
		UsePathStyle: conf.UsePathStyle,
		// Повторы выполняет retrier, встроенные отключены
		RetryMaxAttempts: 1,
	}
	if conf.Endpoint != "" {
		opts.BaseEndpoint = aws.String(conf.Endpoint)
	}

	client := s3.New(opts)
	return NewClientWithAPI(client, s3.NewPresignClient(client), conf.Bucket, logger), nil
}

// NewClientWithAPI собирает клиента поверх готовых реализаций API
func NewClientWithAPI(api API, presigner Presigner, bucket string, logger zerolog.Logger) *Client {
	logger = logger.With().Str("component", "s3").Str("bucket", bucket).Logger()
	return &Client{
		api:       api,
		presigner: presigner,
		bucket:    bucket,
		retry:     newRetrier(logger),
		logger:    logger,
	}
}

// Ping проверяет доступность бакета
func (h *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := h.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(h.bucket)})
	if err != nil {
		return classify("HeadBucket", "", err)
	}
	return nil
}

// CreateMultipartUpload инициализирует загрузку по частям
func (h *Client) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	var uploadID string
	err := h.retry.do(ctx, "CreateMultipartUpload", key, func(ctx context.Context) error {
		result, err := h.api.CreateMultipartUpload(ctx, input)
		if err != nil {
			return err
		}
		uploadID = aws.ToString(result.UploadId)
		return nil
	})
	if err != nil {
		return "", err
	}
	if uploadID == "" {
		return "", classify("CreateMultipartUpload", key, fmt.Errorf("provider returned empty upload id"))
	}

	return uploadID, nil
}

// PresignUploadPart выдает ссылку для PUT одной части
func (h *Client) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int, ttl time.Duration) (string, error) {
	req, err := h.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(h.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(int32(partNumber)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", classify("PresignUploadPart", key, err)
	}
	return req.URL, nil
}

// PresignPutObject выдает ссылку для загрузки небольшого файла одним запросом
func (h *Client) PresignPutObject(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := h.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", classify("PresignPutObject", key, err)
	}
	return req.URL, nil
}

// CompleteMultipartUpload завершает загрузку по частям и возвращает ETag объекта
func (h *Client) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) (string, error) {
	completedParts := make([]types.CompletedPart, 0, len(parts))
	for _, part := range parts {
		completedParts = append(completedParts, types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(int32(part.PartNumber)),
		})
	}

	input := &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(h.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	}

	var etag string
	err := h.retry.do(ctx, "CompleteMultipartUpload", key, func(ctx context.Context) error {
		result, err := h.api.CompleteMultipartUpload(ctx, input)
		if err != nil {
			return err
		}
		etag = aws.ToString(result.ETag)
		return nil
	})
	if err != nil {
		return "", err
	}

	return etag, nil
}

// AbortMultipartUpload отменяет загрузку по частям
func (h *Client) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	input := &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(h.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	}

	return h.retry.do(ctx, "AbortMultipartUpload", key, func(ctx context.Context) error {
		_, err := h.api.AbortMultipartUpload(ctx, input)
		return err
	})
}

// StatObject возвращает метаданные объекта
func (h *Client) StatObject(ctx context.Context, key string) (*ObjectInfo, error) {
	var info *ObjectInfo
	err := h.retry.do(ctx, "HeadObject", key, func(ctx context.Context) error {
		result, err := h.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(h.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		info = &ObjectInfo{
			Key:         key,
			Size:        aws.ToInt64(result.ContentLength),
			ETag:        aws.ToString(result.ETag),
			ContentType: aws.ToString(result.ContentType),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// DeleteObject удаляет объект из S3. Отсутствующий объект не считается ошибкой.
func (h *Client) DeleteObject(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	err := h.retry.do(ctx, "DeleteObject", key, func(ctx context.Context) error {
		_, err := h.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(h.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if IsNotFound(err) {
		return nil
	}
	return err
}
