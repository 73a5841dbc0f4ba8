package httpx

import (
	"fmt"
	"net/http"

	"go_hostpanel/internal/errs"
)

// Business error codes
const (
	CodeSuccess = 0

	// Authentication (1000-1099)
	CodeUnauthorized = 1001
	CodeInvalidToken = 1002
	CodeTokenExpired = 1003
	CodeForbidden    = 1004

	// Parameters (2000-2099)
	CodeParamMissing = 2001
	CodeParamInvalid = 2002

	// Resources and state (3000-3999)
	CodeNotFound           = 3001
	CodeAlreadyExists      = 3002
	CodeStateConflict      = 3003
	CodeQuotaExceeded      = 3004
	CodeIntentState        = 3101
	CodeIntentTokenInvalid = 3102
	CodeIntentTokenExpired = 3103

	// System (5000-5999)
	CodeInternalError  = 5001
	CodeDatabaseError  = 5002
	CodeExternalError  = 5003
	CodeToolNotFound   = 5004
	CodeBackupFailed   = 5005
	CodeCommandTimeout = 5006
)

// AppError carries the HTTP status and business code of a failed request.
// Err is logged and never sent to the client.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
	Err        error
	Data       any
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s, err=%v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// WithData attaches response data
func (e *AppError) WithData(data any) *AppError {
	e.Data = data
	return e
}

// NewAppError creates an AppError
func NewAppError(httpStatus, code int, message string, err error) *AppError {
	return &AppError{HTTPStatus: httpStatus, Code: code, Message: message, Err: err}
}

func orDefault(message, def string) string {
	if message == "" {
		return def
	}
	return message
}

// ErrUnauthorized is a 401 for a missing credential
func ErrUnauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, orDefault(message, "unauthorized"), nil)
}

// ErrInvalidToken is a 401 for a bad bearer token
func ErrInvalidToken(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeInvalidToken, orDefault(message, "invalid token"), nil)
}

// ErrTokenExpired is a 401 for an expired bearer token
func ErrTokenExpired(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeTokenExpired, orDefault(message, "token expired"), nil)
}

// ErrForbidden is a 403
func ErrForbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeForbidden, orDefault(message, "forbidden"), nil)
}

// ErrParamMissing is a 400 for an absent field
func ErrParamMissing(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeParamMissing, orDefault(message, "parameter missing"), nil)
}

// ErrParamInvalid is a 400 for a malformed field
func ErrParamInvalid(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeParamInvalid, orDefault(message, "parameter format error"), nil)
}

// ErrNotFound is a 404
func ErrNotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, orDefault(message, "resource not found"), nil)
}

// ErrInternalError is a 500
func ErrInternalError(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, orDefault(message, "internal error"), err)
}

// kindStatus maps error kinds onto HTTP status and business code
var kindStatus = map[errs.Kind]struct {
	status int
	code   int
}{
	errs.KindInvalidArgument:      {http.StatusBadRequest, CodeParamInvalid},
	errs.KindNotFound:             {http.StatusNotFound, CodeNotFound},
	errs.KindAlreadyExists:        {http.StatusConflict, CodeAlreadyExists},
	errs.KindInvalidState:         {http.StatusConflict, CodeStateConflict},
	errs.KindQuotaExceeded:        {http.StatusUnprocessableEntity, CodeQuotaExceeded},
	errs.KindInvalidIntentState:   {http.StatusConflict, CodeIntentState},
	errs.KindInvalidToken:         {http.StatusForbidden, CodeIntentTokenInvalid},
	errs.KindTokenExpired:         {http.StatusGone, CodeIntentTokenExpired},
	errs.KindToolNotFound:         {http.StatusServiceUnavailable, CodeToolNotFound},
	errs.KindAdapterApplyFailed:   {http.StatusBadGateway, CodeExternalError},
	errs.KindBackupSnapshotFailed: {http.StatusBadGateway, CodeBackupFailed},
	errs.KindTimedOut:             {http.StatusGatewayTimeout, CodeCommandTimeout},
}

// FromError converts any error into an AppError. Typed control-plane
// errors keep their message and details; anything else is a 500.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if app, ok := err.(*AppError); ok {
		return app
	}
	e, ok := errs.As(err)
	if !ok {
		return ErrInternalError("", err)
	}
	m, ok := kindStatus[e.Kind]
	if !ok {
		return ErrInternalError(e.Message, err)
	}
	app := NewAppError(m.status, m.code, e.Message, err)
	data := map[string]any{"kind": e.Kind}
	if len(e.Details) > 0 {
		data["details"] = e.Details
	}
	return app.WithData(data)
}
