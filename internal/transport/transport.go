// Package transport defines the narrow request interface the load driver
// depends on, plus its HTTP implementation.
package transport

import (
	"context"
	"net/http"
)

// Request identifies one iteration. The transport decides what goes on the
// wire; the driver only supplies identity.
type Request struct {
	Seq uint64
	ID  string
	VU  int // virtual user in users mode, 0 otherwise
}

// ResponseMeta is what the driver needs to know about a response.
type ResponseMeta struct {
	StatusCode  int
	Header      http.Header
	BodyLength  int64 // bytes read, -1 when unknown
	ContentType string
}

// OK reports a 2xx status.
func (m ResponseMeta) OK() bool {
	return m.StatusCode >= 200 && m.StatusCode < 300
}

// Transport executes one request. Implementations must honor ctx
// cancellation; the driver still bounds calls that do not.
type Transport interface {
	Execute(ctx context.Context, req Request) (ResponseMeta, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req Request) (ResponseMeta, error)

func (f Func) Execute(ctx context.Context, req Request) (ResponseMeta, error) {
	return f(ctx, req)
}
