package der

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ansel1/merry"
	"github.com/gemalto/der-go/tlv"
)

// ErrClientBroken is returned by Client.Send after an earlier exchange
// failed part way through, e.g. timed out waiting for the reply.  The
// connection is closed when that happens.
var ErrClientBroken = errors.New("der: client connection is broken")

// Client sends requests to a Server over a single connection, one at a
// time.  It is safe for concurrent use: requests are serialized.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	dec  *tlv.Decoder

	// err is the failure which broke the connection, if any
	err error
}

// Dial connects to the server at addr.  If config is not nil, the
// connection uses TLS.
func Dial(ctx context.Context, addr string, config *tls.Config) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, merry.Prepend(err, "dialing server")
	}
	if config != nil {
		tlsConn := tls.Client(conn, config)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, merry.Prepend(err, "TLS handshake")
		}
		conn = tlsConn
	}
	return NewClient(conn), nil
}

// NewClient returns a Client which uses an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn: conn,
		dec:  tlv.NewDecoder(conn),
	}
}

// Send encodes n, writes it to the server, and waits for a single object in
// reply.  The context's deadline, if any, bounds the whole exchange.
//
// If the exchange fails after the request was written, the connection is
// closed, and later calls return ErrClientBroken.
func (c *Client) Send(ctx context.Context, n tlv.Node) (tlv.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return tlv.Node{}, merry.Here(ErrClientBroken).WithCause(c.err)
	}

	// encoding errors leave the connection untouched
	req, err := tlv.Encode(n)
	if err != nil {
		return tlv.Node{}, merry.Prepend(err, "encoding request")
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return tlv.Node{}, c.broken(merry.Wrap(err))
	}

	// unblock reads and writes if the context is canceled before the deadline
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := c.conn.Write(req); err != nil {
		return tlv.Node{}, c.broken(exchangeErr(ctx, err, "sending request"))
	}
	resp, err := c.dec.Decode()
	if err != nil {
		return tlv.Node{}, c.broken(exchangeErr(ctx, err, "reading response"))
	}
	return resp, nil
}

func exchangeErr(ctx context.Context, err error, msg string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return merry.WithCause(ctxErr, err)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		// the connection deadline may fire just before the context's timer
		return merry.WithCause(context.DeadlineExceeded, err)
	}
	return merry.Prepend(err, msg)
}

// broken records err as the reason the connection can't be used anymore,
// and closes it.
func (c *Client) broken(err error) error {
	c.err = err
	_ = c.conn.Close()
	return err
}

// Close closes the connection.  It does not wait for a Send in progress,
// which fails.
func (c *Client) Close() error {
	return c.conn.Close()
}
