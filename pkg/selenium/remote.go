package selenium

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

var ErrUnexpectedResponse = errors.New("unexpected remote end response")

// Remote runs commands against an existing session on a WebDriver remote
// end, such as a Selenium hub.
type Remote struct {
	ctx       context.Context
	baseURL   *url.URL
	sessionId string
	client    *http.Client
}

func NewRemote(ctx context.Context, baseURL *url.URL, sessionId string, client *http.Client) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{
		ctx:       ctx,
		baseURL:   baseURL,
		sessionId: sessionId,
		client:    client,
	}
}

func (r *Remote) SessionId() string {
	return r.sessionId
}

// ExecuteScript runs script synchronously in the current browsing context
// of the session and returns the decoded value. Error responses of the
// remote end are returned as *SeleniumError.
func (r *Remote) ExecuteScript(script string, args []any) (any, error) {
	if args == nil {
		args = []any{}
	}

	return r.execute(http.MethodPost, "execute/sync", map[string]any{
		"script": script,
		"args":   args,
	})
}

func (r *Remote) execute(method, command string, body any) (any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	u := r.baseURL.JoinPath("session", r.sessionId, command)
	req, err := http.NewRequestWithContext(r.ctx, method, u.String(), bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}
	defer resp.Body.Close()

	var payload Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: status %d: %v", ErrUnexpectedResponse, resp.StatusCode, err)
	}

	if se, ok := payload.GetError(); ok {
		return nil, se
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	value, _ := payload.GetValue()
	return value, nil
}
