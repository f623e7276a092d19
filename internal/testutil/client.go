// Package testutil provides a minimal reference client for the wire
// protocol (§3.2), used by cmd/imgclient and by this repository's own
// integration tests. It deliberately does not implement the client-side
// trace-report generator described in spec.md §1 (that piece is
// explicitly out of scope); it only drives the protocol end-to-end.
package testutil

import (
	"net"
	"time"

	"github.com/bu-cs350/imgserve/internal/wire"
	"github.com/cloudwego/gopkg/bufiox"
)

// Client wraps one connection to an imgserve server.
type Client struct {
	conn net.Conn
	r    bufiox.Reader
}

// Dial connects to addr (host:port).
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, r: bufiox.NewDefaultReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Register sends a REGISTER request with the given grayscale image and
// returns the assigned image ID.
func (c *Client) Register(reqID uint64, width, height uint32, pixels []byte) (uint64, error) {
	if err := wire.WriteRequest(c.conn, wire.Request{ReqID: reqID, Op: wire.OpRegister, SentSec: nowSec()}); err != nil {
		return 0, err
	}
	if err := wire.WriteImage(c.conn, width, height, pixels); err != nil {
		return 0, err
	}
	resp, err := c.readResponse()
	if err != nil {
		return 0, err
	}
	return resp.ImageID, nil
}

// Submit sends a transform/retrieve/busywait request and returns the
// response header. For RETRIEVE, the caller should follow with
// ReadImagePayload when Ack is COMPLETED.
func (c *Client) Submit(req wire.Request) (wire.Response, error) {
	req.SentSec = nowSec()
	if err := wire.WriteRequest(c.conn, req); err != nil {
		return wire.Response{}, err
	}
	return c.readResponse()
}

// ReadImagePayload reads one image payload, as follows a RETRIEVE
// completion.
func (c *Client) ReadImagePayload() (width, height uint32, pixels []byte, err error) {
	return wire.ReadImage(c.r)
}

// WriteRequest writes a request header without waiting for a response,
// letting a test pipeline several requests before reading any responses
// back (e.g. to observe rejection or ordering behavior under load).
func (c *Client) WriteRequest(req wire.Request) error {
	req.SentSec = nowSec()
	return wire.WriteRequest(c.conn, req)
}

// ReadResponse reads one response header, matching a prior WriteRequest.
func (c *Client) ReadResponse() (wire.Response, error) {
	return c.readResponse()
}

func (c *Client) readResponse() (wire.Response, error) {
	return wire.ReadResponse(c.conn)
}

func nowSec() uint64 {
	return uint64(time.Now().Unix())
}
