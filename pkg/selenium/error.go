package selenium

import (
	"context"
	"errors"
	"fmt"
)

// W3C error codes used by the drain and passthrough endpoints.
const (
	CodeInvalidSessionId = "invalid session id"
	CodeInvalidArgument  = "invalid argument"
	CodeJavascript       = "javascript error"
	CodeScriptTimeout    = "script timeout"
	CodeUnknown          = "unknown error"
)

type SeleniumError struct {
	Value struct {
		Name    string `json:"error"`
		Message string `json:"message"`
	} `json:"value"`
}

func (e *SeleniumError) Error() string {
	return e.Value.Message
}

func ErrInvalidSessionId(err error) *SeleniumError {
	return Error(CodeInvalidSessionId, err)
}

func ErrInvalidArgument(err error) *SeleniumError {
	return Error(CodeInvalidArgument, err)
}

func ErrJavascript(err error) *SeleniumError {
	return Error(CodeJavascript, err)
}

func ErrScriptTimeout(err error) *SeleniumError {
	return Error(CodeScriptTimeout, err)
}

func ErrUnknown(err error) *SeleniumError {
	return Error(CodeUnknown, err)
}

func Error(name string, err error) *SeleniumError {
	se := &SeleniumError{}
	se.Value.Name = name
	se.Value.Message = fmt.Errorf("%s: %v", name, err).Error()
	return se
}

// IsCode reports whether err carries a SeleniumError with the given code.
func IsCode(err error, code string) bool {
	var se *SeleniumError
	return errors.As(err, &se) && se.Value.Name == code
}

// AsSeleniumError converts err into the W3C error answered to clients.
// SeleniumErrors pass through, deadline errors become script timeouts and
// anything else is an unknown error.
func AsSeleniumError(err error) *SeleniumError {
	var se *SeleniumError
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, context.DeadlineExceeded):
		return ErrScriptTimeout(err)
	}
	return ErrUnknown(err)
}
