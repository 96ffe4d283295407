// Package bidi reads collected JavaScript errors over a WebDriver BiDi
// connection.
package bidi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alcounit/jserrorcollector/pkg/collector"
	"github.com/alcounit/jserrorcollector/pkg/extension"
	"github.com/alcounit/jserrorcollector/pkg/jserror"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const defaultTimeout = 30 * time.Second

var (
	ErrNoBrowsingContext    = errors.New("no browsing context")
	ErrArgumentsUnsupported = errors.New("script arguments are not supported")
)

// Error is a BiDi error response.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ScriptError is an exception thrown by an evaluated script.
type ScriptError struct {
	Text string
}

func (e *ScriptError) Error() string {
	return "javascript error: " + e.Text
}

type command struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Client is a single BiDi session connection. Commands are sent one at a
// time; events received while waiting for a response are dropped.
type Client struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int64
	context string
	timeout time.Duration
	logger  zerolog.Logger
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout bounds ExecuteScript, which has no context of its own.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithBrowsingContext pins the browsing context used for evaluation
// instead of resolving the top-level one.
func WithBrowsingContext(id string) Option {
	return func(c *Client) {
		c.context = id
	}
}

// Dial connects to the webSocketUrl of a session.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		timeout: defaultTimeout,
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Send issues a command and waits for its response, returning the result
// member.
func (c *Client) Send(ctx context.Context, method string, params any) (gjson.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	if params == nil {
		params = map[string]any{}
	}

	deadline, _ := ctx.Deadline()
	c.conn.SetWriteDeadline(deadline)
	c.conn.SetReadDeadline(deadline)

	// unblock the read below on cancellation; the connection is unusable after
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := c.conn.WriteJSON(command{ID: id, Method: method, Params: params}); err != nil {
		return gjson.Result{}, fmt.Errorf("send %s: %w", method, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return gjson.Result{}, err
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return gjson.Result{}, fmt.Errorf("read %s response: %w", method, ctxErr)
			}
			return gjson.Result{}, fmt.Errorf("read %s response: %w", method, err)
		}

		resp := gjson.ParseBytes(msg)
		respID := resp.Get("id")
		if !respID.Exists() || respID.Int() != id {
			c.logger.Debug().
				Str("type", resp.Get("type").String()).
				Str("method", resp.Get("method").String()).
				Msg("skipping bidi message")
			continue
		}

		if resp.Get("type").String() == "error" {
			return gjson.Result{}, &Error{
				Code:    resp.Get("error").String(),
				Message: resp.Get("message").String(),
			}
		}

		return resp.Get("result"), nil
	}
}

// BrowsingContext returns the top-level browsing context of the session.
func (c *Client) BrowsingContext(ctx context.Context) (string, error) {
	if c.context != "" {
		return c.context, nil
	}

	result, err := c.Send(ctx, "browsingContext.getTree", map[string]any{"maxDepth": 0})
	if err != nil {
		return "", err
	}

	id := result.Get("contexts.0.context").String()
	if id == "" {
		return "", ErrNoBrowsingContext
	}

	c.context = id
	return id, nil
}

// Evaluate evaluates expression in the top-level browsing context and
// returns the decoded value.
func (c *Client) Evaluate(ctx context.Context, expression string) (any, error) {
	target, err := c.BrowsingContext(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.Send(ctx, "script.evaluate", map[string]any{
		"expression":      expression,
		"target":          map[string]any{"context": target},
		"awaitPromise":    false,
		"resultOwnership": "none",
		"serializationOptions": map[string]any{
			"maxObjectDepth": 3,
		},
	})
	if err != nil {
		return nil, err
	}

	if result.Get("type").String() == "exception" {
		return nil, &ScriptError{Text: result.Get("exceptionDetails.text").String()}
	}

	return decodeRemoteValue(result.Get("result")), nil
}

// ExecuteScript evaluates a WebDriver style function body.
func (c *Client) ExecuteScript(script string, args []any) (any, error) {
	if len(args) > 0 {
		return nil, ErrArgumentsUnsupported
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	return c.Evaluate(ctx, "(function () {\n"+script+"\n})()")
}

// Register installs the collector as a preload script, run in every new
// document of the session.
func (c *Client) Register(ctx context.Context, opts ...extension.Option) (string, error) {
	script, err := extension.Script(opts...)
	if err != nil {
		return "", err
	}

	result, err := c.Send(ctx, "script.addPreloadScript", map[string]any{
		"functionDeclaration": "() => {\n" + script + "\n}",
	})
	if err != nil {
		return "", err
	}

	return result.Get("script").String(), nil
}

// ReadErrors drains the errors of the top-level browsing context.
func (c *Client) ReadErrors() (jserror.Errors, error) {
	return collector.New(c, collector.WithLogger(c.logger)).ReadErrors()
}
