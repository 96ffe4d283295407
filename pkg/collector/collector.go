// Package collector drains the JavaScript errors accumulated by the
// collector extension inside a browser page.
package collector

import (
	"errors"
	"fmt"

	"github.com/alcounit/jserrorcollector/pkg/jserror"
	"github.com/rs/zerolog"
)

// BufferName is the page global populated by the collector extension.
const BufferName = "JSErrorCollector_errors"

// PumpExpression empties the in-page buffer and evaluates to its content,
// or to an empty array when the extension is not active in the page.
const PumpExpression = "window." + BufferName + " ? window." + BufferName + ".pump() : []"

// PumpScript is PumpExpression in the function body form expected by
// WebDriver script execution.
const PumpScript = "return " + PumpExpression

var ErrUnexpectedResult = errors.New("unexpected script result")

// ScriptExecutor runs a script in the browser and returns its decoded
// result. selenium.WebDriver satisfies it.
type ScriptExecutor interface {
	ExecuteScript(script string, args []any) (any, error)
}

type Reader struct {
	exec   ScriptExecutor
	script string
	logger zerolog.Logger
}

type Option func(*Reader)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithScript replaces the pump script, for bridges that expose the buffer
// under another path.
func WithScript(script string) Option {
	return func(r *Reader) {
		r.script = script
	}
}

func New(exec ScriptExecutor, opts ...Option) *Reader {
	r := &Reader{
		exec:   exec,
		script: PumpScript,
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ReadErrors returns the errors collected since the previous call, in the
// order they occurred. The buffer is emptied by the call. Executor errors
// are returned as is.
func (r *Reader) ReadErrors() (jserror.Errors, error) {
	result, err := r.exec.ExecuteScript(r.script, nil)
	if err != nil {
		return nil, err
	}

	errs, err := Decode(result)
	if err != nil {
		r.logger.Err(err).Msg("failed to decode pump result")
		return nil, err
	}

	r.logger.Debug().Int("count", len(errs)).Msg("javascript errors drained")
	return errs, nil
}

// ReadErrors drains exec with the default pump script.
func ReadErrors(exec ScriptExecutor) (jserror.Errors, error) {
	return New(exec).ReadErrors()
}

// Decode maps a pump result to errors. A nil result is an empty drain and
// entries that are not records parse as empty errors.
func Decode(result any) (jserror.Errors, error) {
	switch entries := result.(type) {
	case nil:
		return jserror.Errors{}, nil

	case []any:
		errs := make(jserror.Errors, 0, len(entries))
		for _, entry := range entries {
			raw, _ := entry.(map[string]any)
			errs = append(errs, jserror.Parse(raw))
		}
		return errs, nil

	case []map[string]any:
		errs := make(jserror.Errors, 0, len(entries))
		for _, raw := range entries {
			errs = append(errs, jserror.Parse(raw))
		}
		return errs, nil
	}

	return nil, fmt.Errorf("%w: %T", ErrUnexpectedResult, result)
}
