package sdk

import (
	"errors"
	"fmt"

	"github.com/samcharles93/coherent/internal/engine"
)

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrNotReady       = errors.New("session not initialized")
	ErrUnknownModel   = errors.New("unknown model")
	ErrEngine         = errors.New("engine error")
	ErrUIConstruction = errors.New("ui construction failed")
	ErrClosed         = errors.New("session closed")
)

// Error codes reported through ErrorInfo.
const (
	CodeConfiguration  = "configuration"
	CodeNotReady       = "not_initialized"
	CodeUnknownModel   = "unknown_model"
	CodeEngine         = "engine"
	CodeUIConstruction = "ui_construction"
	CodeInternal       = "internal"
)

// Error is the typed error every facade operation returns. Kind is one of the
// Err* sentinels, so errors.Is(err, ErrNotReady) works; Err is the underlying
// cause when there is one.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, code string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

func configError(format string, args ...any) *Error {
	return newError(ErrConfiguration, CodeConfiguration, nil, format, args...)
}

func notReady(op string) *Error {
	return newError(ErrNotReady, CodeNotReady, nil, "%s requires a ready session", op)
}

// engineError keeps the engine's own code and message when it reported one.
func engineError(err error) *Error {
	var ee *engine.Error
	if errors.As(err, &ee) {
		code := ee.Code
		if code == "" {
			code = CodeEngine
		}
		return &Error{Kind: ErrEngine, Code: code, Message: ee.Message, Err: err}
	}
	return &Error{Kind: ErrEngine, Code: CodeEngine, Message: err.Error(), Err: err}
}

// ErrorInfo is the code/message pair handed to callback style callers.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i *ErrorInfo) Error() string {
	return i.Code + ": " + i.Message
}

// InfoFromError flattens err into an ErrorInfo. It returns nil for a nil err.
func InfoFromError(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		msg := e.Message
		if msg == "" {
			msg = e.Kind.Error()
		}
		return &ErrorInfo{Code: e.Code, Message: msg}
	}
	return &ErrorInfo{Code: CodeInternal, Message: err.Error()}
}
