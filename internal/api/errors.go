package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-supportchat/internal/auth"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/server"
	"github.com/npezzotti/go-supportchat/internal/support"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(code int) *ApiError {
	return &ApiError{
		StatusCode: code,
		Message:    lower(http.StatusText(code)),
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound)
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError)
	e.Err = err
	return e
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden)
}

func NewConflictError() *ApiError {
	return newApiError(http.StatusConflict)
}

func NewServiceUnavailableError() *ApiError {
	return newApiError(http.StatusServiceUnavailable)
}

// errorResponse maps domain errors onto HTTP errors. Client errors carry the
// domain message; anything unrecognized is a 500.
func errorResponse(err error) *ApiError {
	var e *ApiError
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, auth.ErrUnauthorized):
		return NewUnauthorizedError()
	case errors.Is(err, support.ErrForbidden), errors.Is(err, support.ErrNotStaff):
		e = NewForbiddenError()
	case errors.Is(err, support.ErrNotFound):
		e = NewNotFoundError()
	case errors.Is(err, support.ErrAlreadyAssigned),
		errors.Is(err, support.ErrEmptyMessage),
		errors.Is(err, database.ErrDuplicateUser):
		e = NewBadRequestError()
	case errors.Is(err, support.ErrRoomClosed):
		e = NewConflictError()
	case errors.Is(err, server.ErrShuttingDown), errors.Is(err, server.ErrServiceUnavailable):
		return NewServiceUnavailableError()
	default:
		return NewInternalServerError(err)
	}

	e.Message = err.Error()
	return e
}
