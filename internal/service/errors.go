package service

import (
	"errors"
	"fmt"

	"tenderdocs/internal/service/s3"
)

// ErrorCode - стабильный код ошибки, на который клиент может опираться
type ErrorCode string

const (
	// Ошибки входных данных
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodePartsMismatch ErrorCode = "PARTS_MISMATCH"

	// Ошибки состояния сессии загрузки
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeSessionExpired ErrorCode = "SESSION_EXPIRED"
	CodeSessionState   ErrorCode = "SESSION_STATE"

	// Ошибки состояния заявки
	CodeAlreadySubmitted       ErrorCode = "ALREADY_SUBMITTED"
	CodeTenderInactive         ErrorCode = "TENDER_INACTIVE"
	CodeMissingRequiredUploads ErrorCode = "MISSING_REQUIRED_UPLOADS"

	// Ошибки хранилища
	CodeStorageUnavailable   ErrorCode = "STORAGE_UNAVAILABLE"
	CodeStorageMisconfigured ErrorCode = "STORAGE_MISCONFIGURED"

	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeInternal     ErrorCode = "INTERNAL"
)

// Error - типизированная ошибка сервисного слоя.
// Message и Details безопасно отдавать клиенту, Err хранит исходную причину.
// Debug содержит внутреннюю диагностику и отдается только при включенной отладке.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Debug   map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду, что позволяет писать errors.Is(err, ErrNotFound)
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// Образцы для errors.Is
var (
	ErrInvalidInput     = &Error{Code: CodeInvalidInput}
	ErrPartsMismatch    = &Error{Code: CodePartsMismatch}
	ErrNotFound         = &Error{Code: CodeNotFound}
	ErrSessionExpired   = &Error{Code: CodeSessionExpired}
	ErrSessionState     = &Error{Code: CodeSessionState}
	ErrAlreadySubmitted = &Error{Code: CodeAlreadySubmitted}
	ErrTenderInactive   = &Error{Code: CodeTenderInactive}
	ErrMissingRequired  = &Error{Code: CodeMissingRequiredUploads}
	ErrForbidden        = &Error{Code: CodeForbidden}
)

func newError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func invalidInput(format string, args ...any) *Error {
	return newError(CodeInvalidInput, fmt.Sprintf(format, args...))
}

func partsMismatch(format string, args ...any) *Error {
	return newError(CodePartsMismatch, fmt.Sprintf(format, args...))
}

func notFound(what string) *Error {
	return newError(CodeNotFound, what+" not found")
}

func internal(op string, err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: fmt.Errorf("%s: %w", op, err)}
}

// storageError переводит ошибку адаптера хранилища в код сервисного слоя
func storageError(err error) *Error {
	se, ok := s3.AsError(err)
	if !ok {
		return &Error{Code: CodeStorageUnavailable, Message: "Document storage is temporarily unavailable. Please try again.", Err: err}
	}

	e := &Error{Message: se.SafeMessage(), Err: se, Debug: se.Diagnostic()}
	switch se.Kind {
	case s3.KindMisconfigured:
		e.Code = CodeStorageMisconfigured
	case s3.KindRejected, s3.KindNotFound:
		e.Code = CodePartsMismatch
	default:
		e.Code = CodeStorageUnavailable
	}
	return e
}

// CodeOf возвращает код ошибки или INTERNAL для нетипизированных ошибок
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
