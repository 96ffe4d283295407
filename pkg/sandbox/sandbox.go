// Package sandbox runs page scripts in an embedded JavaScript runtime with
// a minimal window, so the collector and the pump protocol can be driven
// without a browser.
package sandbox

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/alcounit/jserrorcollector/pkg/extension"
	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

const (
	nativeFrame  = "<native>"
	dispatchName = "__sandboxDispatchError"
)

var ErrNoPage = errors.New("no page loaded")

const prelude = `
var window = this;
window.window = window;
window.self = window;
window.top = window;
window.parent = window;

(function (win) {
	var listeners = {};
	win.addEventListener = function (type, fn) {
		(listeners[type] = listeners[type] || []).push(fn);
	};
	win.removeEventListener = function (type, fn) {
		var l = listeners[type] || [];
		var i = l.indexOf(fn);
		if (i >= 0) {
			l.splice(i, 1);
		}
	};
	win.dispatchEvent = function (event) {
		var l = (listeners[event.type] || []).slice();
		for (var i = 0; i < l.length; ++i) {
			l[i].call(win, event);
		}
		return true;
	};
	var noop = function () {};
	win.console = { log: noop, info: noop, warn: noop, error: noop, debug: noop };
	win.__sandboxDispatchError = function (error, filename, lineno, colno) {
		win.dispatchEvent({
			type: "error",
			target: win,
			error: error,
			message: String(error),
			filename: filename,
			lineno: lineno,
			colno: colno
		});
	};
})(window);
`

type Sandbox struct {
	vm        *goja.Runtime
	url       string
	collector string
	logger    zerolog.Logger
}

type Option func(*Sandbox) error

// WithCollector installs the collector extension in every page loaded by
// the sandbox. A missing script or an invalid option fails New.
func WithCollector(opts ...extension.Option) Option {
	return func(s *Sandbox) error {
		script, err := extension.Script(opts...)
		if err != nil {
			return err
		}
		s.collector = script
		return nil
	}
}

// WithCollectorScript installs the given script instead of the bundled one.
func WithCollectorScript(script string) Option {
	return func(s *Sandbox) error {
		s.collector = script
		return nil
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sandbox) error {
		s.logger = logger
		return nil
	}
}

func New(opts ...Option) (*Sandbox, error) {
	s := &Sandbox{
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("sandbox option: %w", err)
		}
	}

	return s, nil
}

// Navigate replaces the current page with an empty document at url.
func (s *Sandbox) Navigate(url string) error {
	vm := goja.New()

	if _, err := vm.RunScript("prelude.js", prelude); err != nil {
		return fmt.Errorf("load prelude: %w", err)
	}

	location := vm.NewObject()
	if err := location.Set("href", url); err != nil {
		return fmt.Errorf("set location: %w", err)
	}
	if err := vm.Set("location", location); err != nil {
		return fmt.Errorf("set location: %w", err)
	}

	if s.collector != "" {
		if _, err := vm.RunScript(extension.ScriptFile, s.collector); err != nil {
			return fmt.Errorf("load collector: %w", err)
		}
	}

	s.vm = vm
	s.url = url
	s.logger.Debug().Str("url", url).Bool("collector", s.collector != "").Msg("page loaded")
	return nil
}

// URL returns the location of the current page.
func (s *Sandbox) URL() string {
	return s.url
}

// Run executes a page script named name. Uncaught exceptions do not fail
// the call, they are reported to the page error listeners the way a
// browser does.
func (s *Sandbox) Run(name, src string) error {
	if s.vm == nil {
		return ErrNoPage
	}

	_, err := s.vm.RunScript(name, src)
	if err == nil {
		return nil
	}

	var exc *goja.Exception
	if !errors.As(err, &exc) {
		return fmt.Errorf("run %s: %w", name, err)
	}

	filename, line, column := name, 0, 0
	for _, frame := range exc.Stack() {
		if frame.SrcName() == nativeFrame {
			continue
		}
		pos := frame.Position()
		filename, line, column = frame.SrcName(), pos.Line, pos.Column
		break
	}

	s.logger.Debug().
		Str("source", filename).
		Str("position", strconv.Itoa(line)+":"+strconv.Itoa(column)).
		Msg("uncaught exception in page script")

	dispatch, ok := goja.AssertFunction(s.vm.Get(dispatchName))
	if !ok {
		return fmt.Errorf("run %s: error dispatcher missing", name)
	}

	_, err = dispatch(goja.Undefined(), exc.Value(), s.vm.ToValue(filename), s.vm.ToValue(line), s.vm.ToValue(column))
	if err != nil {
		return fmt.Errorf("dispatch error event: %w", err)
	}
	return nil
}

// ExecuteScript runs script as a function body and returns its exported
// result. Exceptions thrown by the script are returned as errors.
func (s *Sandbox) ExecuteScript(script string, args []any) (any, error) {
	if s.vm == nil {
		return nil, ErrNoPage
	}

	fn, err := s.vm.RunString("(function () {\n" + script + "\n})")
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}

	call, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("compile script: not a function")
	}

	values := make([]goja.Value, len(args))
	for i, arg := range args {
		values[i] = s.vm.ToValue(arg)
	}

	result, err := call(s.vm.GlobalObject(), values...)
	if err != nil {
		return nil, fmt.Errorf("execute script: %w", err)
	}

	return result.Export(), nil
}
