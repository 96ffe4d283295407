package proxy

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Direction names the side a proxied websocket message came from.
type Direction string

const (
	Downstream Direction = "client"
	Upstream   Direction = "hub"
)

type TargetResolver func(r *http.Request) (*url.URL, error)

type WSProxyOption func(*WSProxy)

func WithOnConnect(f func()) WSProxyOption {
	return func(p *WSProxy) { p.onConnect = f }
}

// WithOnMessage is called for every relayed message with the side it was
// read from.
func WithOnMessage(f func(from Direction)) WSProxyOption {
	return func(p *WSProxy) { p.onMessage = f }
}

func WithOnClose(f func()) WSProxyOption {
	return func(p *WSProxy) { p.onClose = f }
}

// WSProxy relays a client websocket, such as a WebDriver BiDi connection,
// to the endpoint returned by Resolve.
type WSProxy struct {
	Upgrader websocket.Upgrader
	Dialer   websocket.Dialer
	Resolve  TargetResolver

	onConnect func()
	onMessage func(Direction)
	onClose   func()
}

func NewWebSocketReverseProxy(resolver TargetResolver, opts ...WSProxyOption) *WSProxy {
	proxy := &WSProxy{
		Resolve: resolver,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		Dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(proxy)
	}

	return proxy
}

func (p *WSProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.Resolve == nil {
		http.Error(w, "resolver not configured", http.StatusInternalServerError)
		return
	}

	targetURL, err := p.Resolve(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	headers := upstreamHeaders(r)
	upstreamConn, resp, err := p.Dialer.DialContext(r.Context(), targetURL.String(), headers)
	if err != nil {
		http.Error(w, "upstream dial failed", http.StatusBadGateway)
		return
	}

	responseHeaders := http.Header{}
	if proto := resp.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		responseHeaders.Set("Sec-WebSocket-Protocol", proto)
	}

	clientConn, err := p.Upgrader.Upgrade(w, r, responseHeaders)
	if err != nil {
		upstreamConn.Close()
		return
	}

	if p.onConnect != nil {
		p.onConnect()
	}

	p.pipe(clientConn, upstreamConn)
}

func (p *WSProxy) pipe(client, upstream *websocket.Conn) {
	var (
		wg   sync.WaitGroup
		once sync.Once
	)

	shutdown := func() {
		once.Do(func() {
			if p.onClose != nil {
				p.onClose()
			}

			deadline := time.Now().Add(time.Second)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing")
			_ = client.WriteControl(websocket.CloseMessage, msg, deadline)
			_ = upstream.WriteControl(websocket.CloseMessage, msg, deadline)
			_ = client.Close()
			_ = upstream.Close()
		})
	}

	relay := func(src, dst *websocket.Conn, from Direction) {
		defer wg.Done()

		for {
			msgType, data, err := src.ReadMessage()
			if err != nil {
				shutdown()
				return
			}

			if p.onMessage != nil {
				p.onMessage(from)
			}

			if err := dst.WriteMessage(msgType, data); err != nil {
				shutdown()
				return
			}
		}
	}

	wg.Add(2)
	go relay(client, upstream, Downstream)
	go relay(upstream, client, Upstream)
	wg.Wait()
}

// upstreamHeaders keeps the end to end headers of the client handshake and
// adds the X-Forwarded set.
func upstreamHeaders(r *http.Request) http.Header {
	h := http.Header{}

	for k, vv := range r.Header {
		switch http.CanonicalHeaderKey(k) {
		case "Connection",
			"Upgrade",
			"Host",
			"Origin",
			"Sec-Websocket-Key",
			"Sec-Websocket-Version",
			"Sec-Websocket-Accept",
			"Sec-Websocket-Extensions",
			"Content-Length":
			continue
		default:
			for _, v := range vv {
				h.Add(k, v)
			}
		}
	}

	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	h.Set("X-Forwarded-Host", r.Host)
	h.Set("X-Forwarded-Proto", scheme)
	h.Set("X-Forwarded-For", r.RemoteAddr)

	return h
}
