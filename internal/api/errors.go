package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/coherent/pkg/sdk"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps facade errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, sdk.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, sdk.ErrNotReady), errors.Is(err, sdk.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, sdk.ErrUnknownModel):
		return http.StatusNotFound
	case errors.Is(err, sdk.ErrEngine):
		return http.StatusBadGateway
	case errors.Is(err, sdk.ErrUIConstruction):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
