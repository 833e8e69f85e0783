package response

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error Codes
type ErrCode string

var (
	FAILED_REQUEST ErrCode = "REQUEST_FAILED"
	BAD_REQUEST    ErrCode = "FAILED_TO_DECODE"
	INVALID_INPUT  ErrCode = "INVALID_INPUT"
	NOT_FOUND      ErrCode = "NOT_FOUND"
	LOCKED         ErrCode = "LOCKED"
	NOT_ENROLLED   ErrCode = "NOT_ENROLLED"
	NO_TEACHER     ErrCode = "NO_TEACHER"
	UNAVAILABLE    ErrCode = "UNAVAILABLE"
)

var (
	ErrBadRequest      = errors.New("bad request")
	ErrNotFound        = errors.New("resource not found")
	ErrLocked          = errors.New("resource is locked")
	ErrInvalidStatus   = errors.New("invalid attendance status")
	ErrInvalidType     = errors.New("invalid session type")
	ErrNotEnrolled     = errors.New("user is not enrolled as a student")
	ErrNoTeacher       = errors.New("session has no teacher")
	ErrRosterLookup    = errors.New("roster lookup failed")
	ErrMalformedRecord = errors.New("malformed presence record")
)

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errMsg []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsg = append(errMsg, fmt.Sprintf("field '%s' is required", err.Field()))
		case "oneof":
			errMsg = append(errMsg, fmt.Sprintf("field '%s' must be one of [%s]", err.Field(), err.Param()))
		case "max":
			errMsg = append(errMsg, fmt.Sprintf("field '%s' must be at most %s characters long", err.Field(), err.Param()))
		case "gte":
			errMsg = append(errMsg, fmt.Sprintf("field '%s' must be at least %s", err.Field(), err.Param()))
		case "lte":
			errMsg = append(errMsg, fmt.Sprintf("field '%s' must be at most %s", err.Field(), err.Param()))
		default:
			errMsg = append(errMsg, fmt.Sprintf("field '%s' is invalid", err.Field()))
		}
	}

	return Error(string(INVALID_INPUT), strings.Join(errMsg, ", "))
}
