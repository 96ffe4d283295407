package proxy

import (
	"net/http"
	"strings"
	"sync"
)

const bufferSize = 32 * 1024

var bufPool = NewBufferPool()

// BufferPool recycles the copy buffers of the reverse proxy.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, bufferSize)
				return &b
			},
		},
	}
}

func (p *BufferPool) Get() []byte {
	return *p.pool.Get().(*[]byte)
}

func (p *BufferPool) Put(b []byte) {
	if cap(b) < bufferSize {
		return
	}
	b = b[:bufferSize]
	p.pool.Put(&b)
}

func IsWebSocketRequest(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
