package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"
)

// Kind - класс ошибки хранилища, на который опирается сервисный слой
type Kind int

const (
	KindUnknown Kind = iota
	KindUnavailable
	KindMisconfigured
	KindNotFound
	KindRejected
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindMisconfigured:
		return "misconfigured"
	case KindNotFound:
		return "not_found"
	case KindRejected:
		return "rejected"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error - нормализованная ошибка операции с хранилищем.
// Текст исходной ошибки доступен только через Error() и Diagnostic().
type Error struct {
	Op           string
	Key          string
	Kind         Kind
	Retryable    bool
	ProviderCode string
	StatusCode   int
	Attempts     int
	Err          error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3.%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SafeMessage возвращает текст, который можно показать пользователю
func (e *Error) SafeMessage() string {
	switch e.Kind {
	case KindMisconfigured:
		return "Document storage is not configured correctly. Please contact support."
	case KindNotFound:
		return "The upload could not be found in document storage."
	case KindRejected:
		return "Document storage rejected the uploaded data. Please retry the upload."
	case KindCanceled:
		return "The storage request was cancelled."
	default:
		return "Document storage is temporarily unavailable. Please try again."
	}
}

// Diagnostic возвращает подробности для отладки
func (e *Error) Diagnostic() map[string]any {
	d := map[string]any{
		"op":        e.Op,
		"kind":      e.Kind.String(),
		"retryable": e.Retryable,
		"attempts":  e.Attempts,
	}
	if e.Key != "" {
		d["key"] = e.Key
	}
	if e.ProviderCode != "" {
		d["providerCode"] = e.ProviderCode
	}
	if e.StatusCode != 0 {
		d["httpStatus"] = e.StatusCode
	}
	if e.Err != nil {
		d["cause"] = e.Err.Error()
	}
	return d
}

// AsError извлекает *Error из цепочки
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsNotFound сообщает, что объект или многочастная загрузка отсутствуют у провайдера
func IsNotFound(err error) bool {
	se, ok := AsError(err)
	return ok && se.Kind == KindNotFound
}

var (
	retryableCodes = map[string]bool{
		"RequestTimeout":             true,
		"RequestTimeoutException":    true,
		"SlowDown":                   true,
		"Throttling":                 true,
		"ThrottlingException":        true,
		"TooManyRequests":            true,
		"InternalError":              true,
		"ServiceUnavailable":         true,
		"XMinioServerNotInitialized": true,
		"OperationAborted":           true,
		"PriorRequestNotComplete":    true,
		"IncompleteBody":             true,
	}
	notFoundCodes = map[string]bool{
		"NoSuchUpload": true,
		"NoSuchKey":    true,
		"NotFound":     true,
	}
	misconfiguredCodes = map[string]bool{
		"NoSuchBucket":                 true,
		"InvalidAccessKeyId":           true,
		"SignatureDoesNotMatch":        true,
		"AccessDenied":                 true,
		"InvalidBucketName":            true,
		"AuthorizationHeaderMalformed": true,
		"PermanentRedirect":            true,
		"InvalidRegion":                true,
		"InvalidToken":                 true,
		"ExpiredToken":                 true,
		"NotImplemented":               true,
	}
	rejectedCodes = map[string]bool{
		"InvalidPart":      true,
		"InvalidPartOrder": true,
		"EntityTooSmall":   true,
		"EntityTooLarge":   true,
		"InvalidArgument":  true,
		"MalformedXML":     true,
		"BadDigest":        true,
	}

	retryableHints = []string{
		"timeout",
		"timed out",
		"connection reset",
		"connection refused",
		"broken pipe",
		"unexpected eof",
		"temporarily unavailable",
		"server misbehaving",
		"tls handshake",
		"too many requests",
		"service unavailable",
	}
	misconfiguredHints = []string{
		"credential",
		"missing region",
		"invalid region",
		"unsupported protocol scheme",
		"invalid endpoint",
		"endpoint url",
		"not supported",
		"bucket name",
		"access key",
	}
)

// classify приводит ошибку провайдера к *Error. Порядок признаков:
// код ошибки провайдера, HTTP статус, вложенная причина, текст сообщения.
func classify(op, key string, err error) *Error {
	if err == nil {
		return nil
	}
	if se, ok := AsError(err); ok {
		return se
	}

	e := &Error{Op: op, Key: key, Err: err}

	if errors.Is(err, context.Canceled) {
		e.Kind = KindCanceled
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e.Kind = KindUnavailable
		e.Retryable = true
		return e
	}

	e.ProviderCode, e.StatusCode = providerDetails(err)

	if e.ProviderCode != "" {
		switch {
		case notFoundCodes[e.ProviderCode]:
			e.Kind = KindNotFound
			return e
		case misconfiguredCodes[e.ProviderCode]:
			e.Kind = KindMisconfigured
			return e
		case rejectedCodes[e.ProviderCode]:
			e.Kind = KindRejected
			return e
		case retryableCodes[e.ProviderCode]:
			e.Kind = KindUnavailable
			e.Retryable = true
			return e
		}
	}

	if e.StatusCode != 0 {
		switch {
		case e.StatusCode == 429 || e.StatusCode >= 500:
			e.Kind = KindUnavailable
			e.Retryable = true
		case e.StatusCode == 404:
			e.Kind = KindNotFound
		case e.StatusCode == 401 || e.StatusCode == 403:
			e.Kind = KindMisconfigured
		case e.StatusCode >= 400:
			e.Kind = KindRejected
		}
		if e.Kind != KindUnknown {
			return e
		}
	}

	if isUnresolvableHost(err) {
		e.Kind = KindMisconfigured
		return e
	}

	if isTransientCause(err) {
		e.Kind = KindUnavailable
		e.Retryable = true
		return e
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range misconfiguredHints {
		if strings.Contains(msg, hint) {
			e.Kind = KindMisconfigured
			return e
		}
	}
	for _, hint := range retryableHints {
		if strings.Contains(msg, hint) {
			e.Kind = KindUnavailable
			e.Retryable = true
			return e
		}
	}

	e.Kind = KindUnavailable
	return e
}

func providerDetails(err error) (code string, status int) {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	if code == "" && status == 0 {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) {
			code = resp.Code
			status = resp.StatusCode
		}
	}
	return code, status
}

// isUnresolvableHost сообщает, что имя хоста endpoint не существует
func isUnresolvableHost(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

func isTransientCause(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
