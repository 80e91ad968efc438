package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client connects to the daemon socket for one-shot RPC calls.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a daemon client.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

// IsRunning checks whether the daemon accepts connections.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Call performs one request and decodes the result into out (ignored
// when out is nil).
func (c *Client) Call(ctx context.Context, method, cwd string, params any, out any) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}

	var rawParams json.RawMessage
	if params != nil {
		rawParams, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  rawParams,
		CWD:     cwd,
		ID:      fmt.Sprintf("%d", c.requestID.Add(1)),
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("daemon error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if out != nil && resp.Result != nil {
		return json.Unmarshal(resp.Result, out)
	}
	return nil
}
