package rpc

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/outrungo/outrungo/internal/errkind"
	"github.com/outrungo/outrungo/internal/wire"
)

// DefaultTimeout bounds a single call's round trip when the caller doesn't
// override it (Ping does, to detect a dead peer quickly).
const DefaultTimeout = 30 * time.Second

// Client holds one persistent connection per worker id, the Go analogue of
// the original implementation's thread-local REQ sockets: callers identify
// themselves by an integer worker id instead of a thread identity, and each
// id gets its own connection so calls from different workers never block
// each other.
type Client struct {
	Addr    string
	Token   [16]byte
	Timeout time.Duration

	mu    sync.Mutex
	conns map[int]net.Conn
}

// NewClient builds a Client dialing addr lazily, one connection per worker
// id, on first use.
func NewClient(addr string, token [16]byte) *Client {
	return &Client{
		Addr:    addr,
		Token:   token,
		Timeout: DefaultTimeout,
		conns:   make(map[int]net.Conn),
	}
}

func (c *Client) connFor(workerID int) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[workerID]; ok {
		return conn, nil
	}
	conn, err := net.Dial("tcp", c.Addr)
	if err != nil {
		return nil, errors.Wrap(err, "rpc: dial")
	}
	c.conns[workerID] = conn
	return conn, nil
}

func (c *Client) dropConn(workerID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[workerID]; ok {
		conn.Close()
		delete(c.conns, workerID)
	}
}

// Call invokes method with args on behalf of workerID and returns the
// decoded reply value, or the remote's reported error as an *errkind.Error.
func (c *Client) Call(workerID int, method string, args ...any) (any, error) {
	return c.call(workerID, &method, args, c.Timeout)
}

// Ping checks liveness of the connection for workerID with a short,
// caller-overridable timeout, bypassing the default call timeout so a dead
// peer is detected quickly rather than after a long call deadline.
func (c *Client) Ping(workerID int, timeout time.Duration) error {
	_, err := c.call(workerID, nil, nil, timeout)
	return err
}

func (c *Client) call(workerID int, method *string, args []any, timeout time.Duration) (any, error) {
	conn, err := c.connFor(workerID)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "rpc: set deadline")
	}

	req := &wire.Request{Token: c.Token, Method: method, Args: args}
	payload, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, errors.Wrap(err, "rpc: encode request")
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		c.dropConn(workerID)
		return nil, wrapDeadline(err)
	}

	replyBytes, err := wire.ReadFrame(conn)
	if err != nil {
		c.dropConn(workerID)
		return nil, wrapDeadline(err)
	}
	resp, err := wire.DecodeResponse(replyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "rpc: decode response")
	}

	switch resp.Tag {
	case wire.Normal:
		return resp.Value, nil
	case wire.TokenError:
		return nil, &errkind.Error{Kind: errkind.PermissionDenied, Class: "TokenError"}
	case wire.Exception:
		if ke, ok := resp.Value.(*errkind.Error); ok {
			return nil, ke
		}
		return nil, &errkind.Error{Kind: errkind.Other, Class: "RemoteException", Args: []any{resp.Value}}
	default:
		return nil, &errkind.Error{Kind: errkind.ProtocolError, Class: "UnknownReturnTag"}
	}
}

func wrapDeadline(err error) error {
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return &errkind.Error{Kind: errkind.IOError, Class: "DeadlineExceeded"}
	}
	return errkind.FromOSError(err)
}

// Close closes every pooled connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for id, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, id)
	}
	return firstErr
}
