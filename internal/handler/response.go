package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"tenderdocs/internal/auth"
	"tenderdocs/internal/service"
)

const genericErrorMessage = "Something went wrong. Please try again."

// envelope - единый формат ответа {ok, data} или {ok:false, errorCode, error, debug}
type envelope struct {
	OK        bool              `json:"ok"`
	Data      any               `json:"data,omitempty"`
	ErrorCode service.ErrorCode `json:"errorCode,omitempty"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]any    `json:"details,omitempty"`
	Debug     map[string]any    `json:"debug,omitempty"`
}

var statusByCode = map[service.ErrorCode]int{
	service.CodeInvalidInput:           http.StatusBadRequest,
	service.CodePartsMismatch:          http.StatusBadRequest,
	service.CodeUnauthorized:           http.StatusUnauthorized,
	service.CodeForbidden:              http.StatusForbidden,
	service.CodeNotFound:               http.StatusNotFound,
	service.CodeSessionExpired:         http.StatusGone,
	service.CodeSessionState:           http.StatusConflict,
	service.CodeAlreadySubmitted:       http.StatusConflict,
	service.CodeTenderInactive:         http.StatusConflict,
	service.CodeMissingRequiredUploads: http.StatusConflict,
	service.CodeStorageUnavailable:     http.StatusServiceUnavailable,
	service.CodeStorageMisconfigured:   http.StatusInternalServerError,
	service.CodeInternal:               http.StatusInternalServerError,
}

// HTTPStatus возвращает HTTP статус для кода ошибки
func HTTPStatus(code service.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Responder пишет ответы в формате envelope
type Responder struct {
	exposeErrors bool
	logger       zerolog.Logger
}

func NewResponder(exposeErrors bool, logger zerolog.Logger) *Responder {
	return &Responder{exposeErrors: exposeErrors, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (rs *Responder) OK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{OK: true, Data: data})
}

// Fail переводит ошибку в ответ. Текст нетипизированных ошибок клиенту не отдается.
func (rs *Responder) Fail(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		se = &service.Error{Code: service.CodeInternal, Message: genericErrorMessage, Err: err}
	}

	status := HTTPStatus(se.Code)
	event := rs.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = rs.logger.Error()
	}
	event.Err(err).
		Str("code", string(se.Code)).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")

	body := envelope{ErrorCode: se.Code, Error: se.Message}
	if body.Error == "" || se.Code == service.CodeInternal {
		body.Error = genericErrorMessage
	}
	if len(se.Details) > 0 {
		body.Details = se.Details
	}
	if rs.exposeErrors && len(se.Debug) > 0 {
		body.Debug = se.Debug
	}

	writeJSON(w, status, body)
}

// AuthFailure - обработчик ошибок доступа для middleware пакета auth
func (rs *Responder) AuthFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrForbidden) {
		rs.Fail(w, r, &service.Error{Code: service.CodeForbidden, Message: "You are not allowed to perform this action.", Err: err})
		return
	}
	rs.Fail(w, r, &service.Error{Code: service.CodeUnauthorized, Message: "Authentication is required.", Err: err})
}

// newValidator называет поля в ошибках по их JSON именам
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &service.Error{Code: service.CodeInvalidInput, Message: "Invalid request body", Err: err}
	}
	return nil
}

// decodeAndValidate читает JSON тело и проверяет теги validate
func decodeAndValidate(r *http.Request, validate *validator.Validate, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) *service.Error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return &service.Error{Code: service.CodeInvalidInput, Message: "Invalid request", Err: err}
	}

	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		fields = append(fields, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return &service.Error{
		Code:    service.CodeInvalidInput,
		Message: "Invalid request: " + strings.Join(fields, "; "),
		Err:     err,
	}
}
