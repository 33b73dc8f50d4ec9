package der

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ansel1/merry"
	"github.com/gemalto/der-go/tlv"
	"github.com/gemalto/flume"
)

var serverLog = flume.New("der_server")

// Server reads DER objects off of connections, and hands each one to
// Handler.  The zero value is ready to use.
type Server struct {
	// Handler responds to each request.  If nil, NormalizeHandler is used.
	Handler Handler

	// MaxRequestSize limits the full encoded size of a single request
	// object.  Connections sending larger objects are closed.  Zero means
	// tlv.DefaultMaxSize.
	MaxRequestSize int

	// MaxResponseSize limits the size of each object a handler writes with
	// ResponseWriter.WriteNode.  Zero means tlv.DefaultMaxSize.
	MaxResponseSize int

	// IdleTimeout is how long a connection may wait for its next request.
	// Zero means no timeout.
	IdleTimeout time.Duration

	mu         sync.Mutex
	listeners  map[*net.Listener]struct{}
	activeConn map[*conn]struct{}
	inShutdown int32 // accessed atomically (non-zero means we're in Shutdown)
}

// ErrServerClosed is returned by the Server's Serve and ListenAndServe
// methods after a call to Shutdown or Close.
var ErrServerClosed = errors.New("der: Server closed")

// ListenAndServe listens on the TCP network address addr and then calls
// Serve to handle requests on incoming connections.
func (srv *Server) ListenAndServe(addr string) error {
	if srv.shuttingDown() {
		return ErrServerClosed
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return merry.Wrap(err)
	}
	return srv.Serve(ln)
}

// ListenAndServeTLS is like ListenAndServe, but wraps connections with TLS.
func (srv *Server) ListenAndServeTLS(addr string, config *tls.Config) error {
	if srv.shuttingDown() {
		return ErrServerClosed
	}
	ln, err := tls.Listen("tcp", addr, config)
	if err != nil {
		return merry.Wrap(err)
	}
	return srv.Serve(ln)
}

// Serve accepts incoming connections on the Listener l, creating a
// new service goroutine for each. The service goroutines read requests and
// then call srv.Handler to reply to them.
//
// Serve always returns a non-nil error and closes l.
// After Shutdown or Close, the returned error is ErrServerClosed.
func (srv *Server) Serve(l net.Listener) error {
	l = &onceCloseListener{Listener: l}
	defer l.Close()

	if !srv.trackListener(&l, true) {
		return ErrServerClosed
	}
	defer srv.trackListener(&l, false)

	serverLog.Info("listening", "addr", l.Addr().String())

	var tempDelay time.Duration // how long to sleep on accept failure
	ctx := flume.WithLogger(context.Background(), serverLog)
	for {
		rw, e := l.Accept()
		if e != nil {
			if srv.shuttingDown() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(e, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				serverLog.Error("accept error, retrying", "error", e, "delay", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return merry.Wrap(e)
		}
		tempDelay = 0
		c := &conn{server: srv, rwc: rw}
		c.setState(stateNew)
		srv.trackConn(c, true)
		go c.serve(ctx)
	}
}

// Close immediately closes all active listeners and connections.  For a
// graceful shutdown, use Shutdown.
//
// Close returns any error returned from closing the Server's
// underlying Listener(s).
func (srv *Server) Close() error {
	atomic.StoreInt32(&srv.inShutdown, 1)
	srv.mu.Lock()
	defer srv.mu.Unlock()
	err := srv.closeListenersLocked()
	for c := range srv.activeConn {
		_ = c.rwc.Close()
		delete(srv.activeConn, c)
	}
	return err
}

// shutdownPollInterval is how often we poll for quiescence
// during Server.Shutdown.
var shutdownPollInterval = 500 * time.Millisecond

// Shutdown gracefully shuts down the server without interrupting any
// active requests.  Shutdown works by first closing all open
// listeners, then closing all idle connections, and then waiting
// for in-flight requests to finish and their connections to close.
// If the provided context expires before the shutdown is complete,
// Shutdown returns the context's error, otherwise it returns any
// error returned from closing the Server's underlying Listener(s).
//
// When Shutdown is called, Serve, ListenAndServe, and ListenAndServeTLS
// immediately return ErrServerClosed.  Make sure the program doesn't exit
// and waits instead for Shutdown to return.
//
// Once Shutdown has been called on a server, it may not be reused;
// future calls to methods such as Serve will return ErrServerClosed.
func (srv *Server) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&srv.inShutdown, 1)

	srv.mu.Lock()
	lnerr := srv.closeListenersLocked()
	srv.mu.Unlock()

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if srv.closeIdleConns() {
			return lnerr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// closeIdleConns closes all idle connections and reports whether the
// server is quiescent.
func (srv *Server) closeIdleConns() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	quiescent := true
	for c := range srv.activeConn {
		// a connection which starts receiving a request concurrently
		// wins the race, and is left alone
		if !c.claimIdle() {
			quiescent = false
			continue
		}
		_ = c.rwc.Close()
		delete(srv.activeConn, c)
	}
	return quiescent
}

func (srv *Server) closeListenersLocked() error {
	var err error
	for ln := range srv.listeners {
		if cerr := (*ln).Close(); cerr != nil && err == nil {
			err = cerr
		}
		delete(srv.listeners, ln)
	}
	return err
}

// trackListener adds or removes a net.Listener to the set of tracked
// listeners.
//
// We store a pointer to interface in the map set, in case the
// net.Listener is not comparable.
//
// It reports whether the server is still up (not Shutdown or Closed).
func (srv *Server) trackListener(ln *net.Listener, add bool) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listeners == nil {
		srv.listeners = make(map[*net.Listener]struct{})
	}
	if add {
		if srv.shuttingDown() {
			return false
		}
		srv.listeners[ln] = struct{}{}
	} else {
		delete(srv.listeners, ln)
	}
	return true
}

func (srv *Server) trackConn(c *conn, add bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.activeConn == nil {
		srv.activeConn = make(map[*conn]struct{})
	}
	if add {
		srv.activeConn[c] = struct{}{}
	} else {
		delete(srv.activeConn, c)
	}
}

func (srv *Server) shuttingDown() bool {
	return atomic.LoadInt32(&srv.inShutdown) != 0
}

type connState int32

const (
	stateNew connState = iota
	stateActive
	stateIdle
	stateClosed // claimed by Shutdown
)

type conn struct {
	rwc        net.Conn
	remoteAddr string
	localAddr  string
	tlsState   *tls.ConnectionState

	dec   *tlv.Decoder
	bufw  *bufio.Writer
	state int32 // connState, accessed atomically

	server *Server
}

func (c *conn) setState(s connState) {
	atomic.StoreInt32(&c.state, int32(s))
}

func (c *conn) getState() connState {
	return connState(atomic.LoadInt32(&c.state))
}

// markActive moves an idle connection to active, when the first bytes of a
// request arrive.  It reports false if Shutdown already claimed the
// connection.
func (c *conn) markActive() bool {
	if atomic.CompareAndSwapInt32(&c.state, int32(stateIdle), int32(stateActive)) {
		return true
	}
	return c.getState() != stateClosed
}

// claimIdle moves an idle connection to closed.  It reports false if the
// connection isn't idle.
func (c *conn) claimIdle() bool {
	return atomic.CompareAndSwapInt32(&c.state, int32(stateIdle), int32(stateClosed))
}

// activeReader reads from the connection, marking it active as soon as any
// bytes of a request arrive, so Shutdown won't close it part way through
// the request.
type activeReader struct {
	c *conn
}

func (r activeReader) Read(p []byte) (int, error) {
	n, err := r.c.rwc.Read(p)
	if n > 0 {
		r.c.markActive()
	}
	return n, err
}

func (c *conn) close() {
	_ = c.bufw.Flush()
	_ = c.rwc.Close()
}

// Serve a new connection.
func (c *conn) serve(ctx context.Context) {
	c.remoteAddr = c.rwc.RemoteAddr().String()
	c.localAddr = c.rwc.LocalAddr().String()
	c.bufw = bufio.NewWriter(c.rwc)

	logger := flume.FromContext(ctx).With("remote", c.remoteAddr)
	ctx = flume.WithLogger(ctx, logger)
	ctx, cancelCtx := context.WithCancel(ctx)

	defer func() {
		if err := recover(); err != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			if e, ok := err.(error); ok {
				logger.Error("panic serving connection", "error", Details(e), "stack", string(buf))
			} else {
				logger.Error("panic serving connection", "error", err, "stack", string(buf))
			}
		}
		cancelCtx()
		c.close()
		c.server.trackConn(c, false)
	}()

	if tlsConn, ok := c.rwc.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			logger.Error("TLS handshake error", "error", err)
			return
		}
		c.tlsState = new(tls.ConnectionState)
		*c.tlsState = tlsConn.ConnectionState()
	}

	c.dec = tlv.NewDecoder(activeReader{c: c})
	c.dec.MaxSize = c.server.MaxRequestSize

	w := &response{conn: c, enc: tlv.NewEncoder(c.bufw)}
	w.enc.MaxSize = c.server.MaxResponseSize

	for {
		if c.dec.Buffered() > 0 {
			// the next request is already partly read
			c.setState(stateActive)
		} else {
			c.setState(stateIdle)
		}
		if c.server.shuttingDown() {
			return
		}
		if d := c.server.IdleTimeout; d != 0 {
			_ = c.rwc.SetReadDeadline(time.Now().Add(d))
		}

		req, err := c.readRequest()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				logger.Debug("client closed connection")
			case errors.Is(err, net.ErrClosed):
				// closed by Close or Shutdown
			default:
				logger.Error("error reading request", "error", Details(err))
			}
			return
		}
		if !c.markActive() {
			// closed by Shutdown before the request arrived
			return
		}
		_ = c.rwc.SetReadDeadline(time.Time{})

		h := c.server.Handler
		if h == nil {
			h = NormalizeHandler
		}

		h.ServeDER(ctx, req, w)
		if err := c.bufw.Flush(); err != nil {
			logger.Error("error writing response", "error", err)
			return
		}
	}
}

// readRequest reads the next request from the connection.
func (c *conn) readRequest() (*Request, error) {
	raw, err := c.dec.NextTLV()
	if err != nil {
		return nil, err
	}
	node, err := tlv.Decode(raw)
	if err != nil {
		return nil, merry.Prepend(err, "invalid request")
	}

	return &Request{
		Raw:        raw,
		Node:       node,
		RemoteAddr: c.remoteAddr,
		LocalAddr:  c.localAddr,
		TLS:        c.tlsState,
	}, nil
}

// Request is a single object read off of a connection.
type Request struct {
	// Raw is the request exactly as it was read off the wire.
	Raw []byte
	// Node is the decoded request.
	Node tlv.Node

	TLS        *tls.ConnectionState
	RemoteAddr string
	LocalAddr  string
}

// response writes to the connection's buffered writer.  It is flushed
// after the handler returns.
type response struct {
	conn *conn
	enc  *tlv.Encoder
}

func (r *response) Write(p []byte) (int, error) {
	return r.conn.bufw.Write(p)
}

func (r *response) WriteNode(n tlv.Node) error {
	return r.enc.Encode(n)
}

// onceCloseListener wraps a net.Listener, protecting it from
// multiple Close calls.
type onceCloseListener struct {
	net.Listener
	once     sync.Once
	closeErr error
}

func (oc *onceCloseListener) Close() error {
	oc.once.Do(oc.close)
	return oc.closeErr
}

func (oc *onceCloseListener) close() { oc.closeErr = oc.Listener.Close() }
