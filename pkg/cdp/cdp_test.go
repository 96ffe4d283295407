package cdp

import (
	"context"
	"errors"
	"testing"

	"github.com/alcounit/jserrorcollector/pkg/collector"
	"github.com/alcounit/jserrorcollector/pkg/extension"
	"github.com/alcounit/jserrorcollector/pkg/sandbox"
)

func TestWrapRunsAsFunctionBody(t *testing.T) {
	page, err := sandbox.New(sandbox.WithCollector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := page.Navigate("file:///page.html"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := page.Run("page.js", "throw new Error('wrapped');"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// the wrapped pump script is a plain expression, as Runtime.evaluate expects
	result, err := page.ExecuteScript("return "+wrap(collector.PumpScript), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	errs, err := collector.Decode(result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 1 || errs[0].Message() != "Error: wrapped" {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestExecuteScriptRejectsArguments(t *testing.T) {
	e := NewExecutor(context.Background())
	_, err := e.ExecuteScript("return arguments[0]", []any{1})
	if !errors.Is(err, ErrArgumentsUnsupported) {
		t.Errorf("expected ErrArgumentsUnsupported, got %v", err)
	}
}

func TestRegisterInvalidConsoleLevel(t *testing.T) {
	err := Register(extension.WithConsoleLevel("verbose")).Do(context.Background())
	if !errors.Is(err, extension.ErrInvalidConsoleLevel) {
		t.Errorf("expected ErrInvalidConsoleLevel, got %v", err)
	}
}
