// Package cdp reads collected JavaScript errors through the Chrome DevTools
// protocol.
package cdp

import (
	"context"
	"errors"

	"github.com/alcounit/jserrorcollector/pkg/collector"
	"github.com/alcounit/jserrorcollector/pkg/extension"
	"github.com/alcounit/jserrorcollector/pkg/jserror"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

var ErrArgumentsUnsupported = errors.New("script arguments are not supported")

// Executor runs WebDriver style scripts in the page attached to a chromedp
// context.
type Executor struct {
	ctx context.Context
}

func NewExecutor(ctx context.Context) *Executor {
	return &Executor{ctx: ctx}
}

// ExecuteScript wraps the function body in an immediately invoked function
// so that it may use return. Runtime.evaluate takes no arguments.
func (e *Executor) ExecuteScript(script string, args []any) (any, error) {
	if len(args) > 0 {
		return nil, ErrArgumentsUnsupported
	}

	var result any
	if err := chromedp.Run(e.ctx, chromedp.Evaluate(wrap(script), &result)); err != nil {
		return nil, err
	}
	return result, nil
}

func wrap(script string) string {
	return "(function () {\n" + script + "\n})()"
}

// Register installs the collector script in every document created in the
// target from now on. It must run before the first navigation.
func Register(opts ...extension.Option) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		script, err := extension.Script(opts...)
		if err != nil {
			return err
		}
		_, err = page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	})
}

// ReadErrors drains the errors of the page attached to ctx.
func ReadErrors(ctx context.Context) (jserror.Errors, error) {
	return collector.ReadErrors(NewExecutor(ctx))
}
