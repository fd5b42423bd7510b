// Package client implements a minimal synchronous client for Ignite's wire
// protocol, used by cmd/ignite-cli.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/ignitedb/ignite/internal/wire"
)

// Client is a single TCP connection to an Ignite server. It is not safe for
// concurrent use by multiple goroutines, mirroring the server's one
// request/response pair per round trip.
type Client struct {
	conn net.Conn
}

// Dial opens a connection to an Ignite server at addr.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Set stores key/value and waits for the server's acknowledgement.
func (c *Client) Set(key string, value []byte) error {
	resp, err := c.roundTrip(&wire.Request{Op: wire.OpSet, Key: []byte(key), Value: value})
	if err != nil {
		return err
	}
	return responseToError(resp)
}

// Get retrieves key's value. ok is false when the server reports the key
// does not exist.
func (c *Client) Get(key string) (value []byte, ok bool, err error) {
	resp, err := c.roundTrip(&wire.Request{Op: wire.OpGet, Key: []byte(key)})
	if err != nil {
		return nil, false, err
	}
	switch resp.Kind {
	case wire.RespValue:
		return resp.Value, true, nil
	case wire.RespKeyNotFound:
		return nil, false, nil
	default:
		return nil, false, responseToError(resp)
	}
}

// Rm removes key.
func (c *Client) Rm(key string) error {
	resp, err := c.roundTrip(&wire.Request{Op: wire.OpRm, Key: []byte(key)})
	if err != nil {
		return err
	}
	return responseToError(resp)
}

func (c *Client) roundTrip(req *wire.Request) (*wire.Response, error) {
	if err := wire.WriteFrame(c.conn, wire.EncodeRequest(req)); err != nil {
		return nil, err
	}

	payload, err := wire.ReadFrame(c.conn)
	if err != nil {
		return nil, err
	}

	return wire.DecodeResponse(payload)
}

func responseToError(resp *wire.Response) error {
	switch resp.Kind {
	case wire.RespOk, wire.RespValue:
		return nil
	case wire.RespKeyNotFound:
		return fmt.Errorf("key not found")
	case wire.RespErr:
		return fmt.Errorf("server error: %s", resp.Message)
	default:
		return fmt.Errorf("unexpected response kind %d", resp.Kind)
	}
}
