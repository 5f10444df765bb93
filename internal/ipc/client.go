package ipc

import (
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"syscall"
	"time"
)

// ErrNotRunning is returned by Dial when no supervisor is listening.
var ErrNotRunning = errors.New("devmirror is not running")

// Client provides RPC access to a running supervisor.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w (socket %s)", ErrNotRunning, path)
		}
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(serviceName+"."+method, req, resp)
}

// Devices lists the last-known devices.
func (c *Client) Devices() (*DevicesResponse, error) {
	var resp DevicesResponse
	if err := c.call("Devices", DevicesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Restart queues a restart for one device.
func (c *Client) Restart(id string) (*RestartResponse, error) {
	var resp RestartResponse
	if err := c.call("Restart", RestartRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Quit asks the supervisor to kill every mirror and exit.
func (c *Client) Quit() (*QuitResponse, error) {
	var resp QuitResponse
	if err := c.call("Quit", QuitRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History fetches ledger events, newest first.
func (c *Client) History(device string, limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{Device: device, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status summarizes the running daemon.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
