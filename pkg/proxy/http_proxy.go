// Package proxy forwards WebDriver traffic from the service to the hub that
// owns the sessions.
package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alcounit/jserrorcollector/pkg/selenium"
)

var transport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	TLSHandshakeTimeout: 10 * time.Second,
}

type ResponseModifier func(*http.Response) error

type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type HTTPReverseProxy struct {
	target *url.URL
	prefix string
	body   []byte
	rp     *httputil.ReverseProxy
}

type HTTPReverseProxyOptions func(*HTTPReverseProxy)

func WithTransport(transport http.RoundTripper) HTTPReverseProxyOptions {
	return func(p *HTTPReverseProxy) {
		p.rp.Transport = transport
	}
}

// WithStripPrefix removes prefix from the request path before it is joined
// to the target path.
func WithStripPrefix(prefix string) HTTPReverseProxyOptions {
	return func(p *HTTPReverseProxy) {
		p.prefix = prefix
	}
}

// WithBody sends body upstream in place of the client request body.
func WithBody(body []byte) HTTPReverseProxyOptions {
	return func(p *HTTPReverseProxy) {
		p.body = body
	}
}

func WithResponseModifier(modifier ResponseModifier) HTTPReverseProxyOptions {
	return func(p *HTTPReverseProxy) {
		p.rp.ModifyResponse = modifier
	}
}

func WithErrorHandler(errHandler ErrorHandler) HTTPReverseProxyOptions {
	return func(p *HTTPReverseProxy) {
		p.rp.ErrorHandler = errHandler
	}
}

// NewHTTPReverseProxy returns a proxy sending requests to target. Upstream
// failures are answered with a W3C unknown error unless an error handler is
// set.
func NewHTTPReverseProxy(target *url.URL, opts ...HTTPReverseProxyOptions) *HTTPReverseProxy {
	proxy := HTTPReverseProxy{
		target: target,
		rp: &httputil.ReverseProxy{
			FlushInterval: time.Millisecond * 200,
			BufferPool:    bufPool,
			Transport:     transport,
			ErrorHandler:  writeUpstreamError,
		},
	}

	for _, opt := range opts {
		opt(&proxy)
	}

	proxy.rp.Director = proxy.direct
	return &proxy
}

func (p *HTTPReverseProxy) direct(r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, p.prefix)

	r.URL.Scheme = p.target.Scheme
	r.URL.Host = p.target.Host
	r.URL.Path = p.target.JoinPath(rest).Path
	if !strings.HasPrefix(r.URL.Path, "/") {
		r.URL.Path = "/" + r.URL.Path
	}
	r.URL.RawPath = ""
	r.Host = p.target.Host

	if p.target.User != nil {
		pass, _ := p.target.User.Password()
		r.SetBasicAuth(p.target.User.Username(), pass)
	}

	if p.body != nil {
		r.Body = io.NopCloser(bytes.NewReader(p.body))
		r.ContentLength = int64(len(p.body))
		r.Header.Set("Content-Length", strconv.Itoa(len(p.body)))
	}
}

func (p *HTTPReverseProxy) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	p.rp.ServeHTTP(rw, req)
}

func writeUpstreamError(rw http.ResponseWriter, req *http.Request, err error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusBadGateway)
	json.NewEncoder(rw).Encode(selenium.ErrUnknown(err))
}
