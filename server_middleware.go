package der

import (
	"bytes"
	"context"
	"io"

	"github.com/gemalto/der-go/tlv"
	"github.com/gemalto/flume"
	"github.com/google/uuid"
)

// ResponseWriter is used by a Handler to reply to a request.  Handlers can
// write pre-encoded bytes, or let WriteNode encode a tree.  A handler may
// write any number of objects, including none.
type ResponseWriter interface {
	io.Writer
	WriteNode(n tlv.Node) error
}

// Handler responds to a single request.
type Handler interface {
	ServeDER(ctx context.Context, req *Request, w ResponseWriter)
}

type HandlerFunc func(context.Context, *Request, ResponseWriter)

func (f HandlerFunc) ServeDER(ctx context.Context, r *Request, w ResponseWriter) {
	f(ctx, r, w)
}

// NormalizeHandler replies with the canonical re-encoding of the request.
// Any non-minimal length fields in the request are rewritten in the minimal
// form.
var NormalizeHandler = HandlerFunc(func(ctx context.Context, req *Request, w ResponseWriter) {
	if err := w.WriteNode(req.Node); err != nil {
		flume.FromContext(ctx).Error("error writing response", "error", Details(err))
	}
})

// EchoHandler replies with the request bytes exactly as they were received.
var EchoHandler = HandlerFunc(func(ctx context.Context, req *Request, w ResponseWriter) {
	if _, err := w.Write(req.Raw); err != nil {
		flume.FromContext(ctx).Error("error writing response", "error", err)
	}
})

// LoggingMiddleware assigns each request a unique request id, and attaches
// a logger carrying the id to the context passed to Next.
type LoggingMiddleware struct {
	Next Handler

	// LogTraffic dumps each request and response, pretty printed, at the
	// debug level.
	LogTraffic bool
}

func (m *LoggingMiddleware) ServeDER(ctx context.Context, req *Request, w ResponseWriter) {
	// create a request id, which is like a unique transaction ID
	rid := uuid.New().String()

	// create a logger for the transaction, seeded with the rid
	logger := flume.FromContext(ctx).With("rid", rid)
	// attach the logger to the context, so it is available to the handling chain
	ctx = flume.WithLogger(ctx, logger)

	next := m.Next
	if next == nil {
		next = NormalizeHandler
	}

	if !m.LogTraffic {
		next.ServeDER(ctx, req, w)
		return
	}

	rec := &recorder{ResponseWriter: w}
	next.ServeDER(ctx, req, rec)

	var respText bytes.Buffer
	if err := tlv.Print(&respText, "", "  ", rec.buf.Bytes()); err != nil {
		logger.Error("handler wrote an invalid response", "error", Details(err))
	}
	logger.Debug("traffic log", "request", req.Node.String(), "response", respText.String())
}

// recorder keeps a copy of everything written to the response.
type recorder struct {
	ResponseWriter
	buf bytes.Buffer
}

func (r *recorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.buf.Write(p[:n])
	return n, err
}

func (r *recorder) WriteNode(n tlv.Node) error {
	if err := r.ResponseWriter.WriteNode(n); err != nil {
		return err
	}
	b, err := tlv.Encode(n)
	if err != nil {
		return err
	}
	r.buf.Write(b)
	return nil
}
