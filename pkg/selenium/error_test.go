package selenium

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorConstructors(t *testing.T) {
	rootErr := errors.New("root cause")

	tests := []struct {
		fn       func(error) *SeleniumError
		expected string
	}{
		{ErrInvalidSessionId, CodeInvalidSessionId},
		{ErrInvalidArgument, CodeInvalidArgument},
		{ErrJavascript, CodeJavascript},
		{ErrScriptTimeout, CodeScriptTimeout},
		{ErrUnknown, CodeUnknown},
	}

	for _, tt := range tests {
		se := tt.fn(rootErr)
		if se.Value.Name != tt.expected {
			t.Errorf("expected Name=%s, got %s", tt.expected, se.Value.Name)
		}
		if se.Error() != tt.expected+": root cause" {
			t.Errorf("unexpected message %q", se.Error())
		}
	}
}

func TestErrorDirect(t *testing.T) {
	se := Error("no such window", errors.New("window closed"))
	if se.Value.Name != "no such window" {
		t.Errorf("expected Name=no such window, got %s", se.Value.Name)
	}
	if !strings.Contains(se.Value.Message, "window closed") {
		t.Errorf("message should contain the cause, got %s", se.Value.Message)
	}
}

func TestIsCode(t *testing.T) {
	wrapped := fmt.Errorf("drain: %w", ErrInvalidSessionId(errors.New("gone")))

	if !IsCode(wrapped, CodeInvalidSessionId) {
		t.Error("expected wrapped invalid session id to match")
	}
	if IsCode(wrapped, CodeJavascript) {
		t.Error("unexpected match on javascript error")
	}
	if IsCode(errors.New("plain"), CodeUnknown) {
		t.Error("plain errors carry no code")
	}
}

func TestAsSeleniumError(t *testing.T) {
	js := ErrJavascript(errors.New("ReferenceError"))
	if got := AsSeleniumError(fmt.Errorf("x: %w", js)); got != js {
		t.Errorf("expected the wrapped error to pass through, got %v", got)
	}

	timeout := AsSeleniumError(fmt.Errorf("post: %w", context.DeadlineExceeded))
	if timeout.Value.Name != CodeScriptTimeout {
		t.Errorf("expected script timeout, got %s", timeout.Value.Name)
	}

	unknown := AsSeleniumError(errors.New("connection refused"))
	if unknown.Value.Name != CodeUnknown {
		t.Errorf("expected unknown error, got %s", unknown.Value.Name)
	}
}
