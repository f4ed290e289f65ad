package s3

import (
	"context"
	"net/url"
	"strconv"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
)

type mockAPI struct {
	CreateMultipartUploadFunc   func(context.Context, *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error)
	CompleteMultipartUploadFunc func(context.Context, *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUploadFunc    func(context.Context, *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error)
	HeadObjectFunc              func(context.Context, *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	DeleteObjectFunc            func(context.Context, *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
	HeadBucketFunc              func(context.Context, *s3.HeadBucketInput) (*s3.HeadBucketOutput, error)
}

func (m *mockAPI) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	if m.CreateMultipartUploadFunc != nil {
		return m.CreateMultipartUploadFunc(ctx, in)
	}
	return &s3.CreateMultipartUploadOutput{}, nil
}

func (m *mockAPI) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	if m.CompleteMultipartUploadFunc != nil {
		return m.CompleteMultipartUploadFunc(ctx, in)
	}
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (m *mockAPI) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	if m.AbortMultipartUploadFunc != nil {
		return m.AbortMultipartUploadFunc(ctx, in)
	}
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (m *mockAPI) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.HeadObjectFunc != nil {
		return m.HeadObjectFunc(ctx, in)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.DeleteObjectFunc != nil {
		return m.DeleteObjectFunc(ctx, in)
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockAPI) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.HeadBucketFunc != nil {
		return m.HeadBucketFunc(ctx, in)
	}
	return &s3.HeadBucketOutput{}, nil
}

type mockPresigner struct {
	lastPart    *s3.UploadPartInput
	lastPut     *s3.PutObjectInput
	lastOptions s3.PresignOptions
}

func (m *mockPresigner) PresignUploadPart(_ context.Context, in *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	m.lastPart = in
	for _, fn := range optFns {
		fn(&m.lastOptions)
	}
	return &v4.PresignedHTTPRequest{URL: "https://storage.test/" + *in.Key + "?partNumber=" + strconv.Itoa(int(*in.PartNumber))}, nil
}

func (m *mockPresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	m.lastPut = in
	for _, fn := range optFns {
		fn(&m.lastOptions)
	}
	return &v4.PresignedHTTPRequest{URL: "https://storage.test/" + *in.Key}, nil
}


type mockMinio struct {
	NewMultipartUploadFunc      func(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	CompleteMultipartUploadFunc func(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart) (minio.UploadInfo, error)
	AbortMultipartUploadFunc    func(ctx context.Context, bucket, object, uploadID string) error
	StatObjectFunc              func(ctx context.Context, bucket, object string) (minio.ObjectInfo, error)
	RemoveObjectFunc            func(ctx context.Context, bucket, object string) error
	BucketExistsFunc            func(ctx context.Context, bucket string) (bool, error)

	presignParams url.Values
	presignMethod string
}

func (m *mockMinio) NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error) {
	if m.NewMultipartUploadFunc != nil {
		return m.NewMultipartUploadFunc(ctx, bucket, object, opts)
	}
	return "upload-1", nil
}

func (m *mockMinio) CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if m.CompleteMultipartUploadFunc != nil {
		return m.CompleteMultipartUploadFunc(ctx, bucket, object, uploadID, parts)
	}
	return minio.UploadInfo{}, nil
}

func (m *mockMinio) AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error {
	if m.AbortMultipartUploadFunc != nil {
		return m.AbortMultipartUploadFunc(ctx, bucket, object, uploadID)
	}
	return nil
}

func (m *mockMinio) StatObject(ctx context.Context, bucket, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if m.StatObjectFunc != nil {
		return m.StatObjectFunc(ctx, bucket, object)
	}
	return minio.ObjectInfo{}, nil
}

func (m *mockMinio) RemoveObject(ctx context.Context, bucket, object string, _ minio.RemoveObjectOptions) error {
	if m.RemoveObjectFunc != nil {
		return m.RemoveObjectFunc(ctx, bucket, object)
	}
	return nil
}

func (m *mockMinio) Presign(_ context.Context, method, bucket, object string, _ time.Duration, reqParams url.Values) (*url.URL, error) {
	m.presignMethod = method
	m.presignParams = reqParams
	return &url.URL{Scheme: "http", Host: "minio.test", Path: "/" + bucket + "/" + object, RawQuery: reqParams.Encode()}, nil
}

func (m *mockMinio) PresignedPutObject(_ context.Context, bucket, object string, _ time.Duration) (*url.URL, error) {
	return &url.URL{Scheme: "http", Host: "minio.test", Path: "/" + bucket + "/" + object}, nil
}

func (m *mockMinio) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if m.BucketExistsFunc != nil {
		return m.BucketExistsFunc(ctx, bucket)
	}
	return true, nil
}
