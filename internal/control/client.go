package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrClosed is returned by calls on a closed or disconnected client.
var ErrClosed = errors.New("control client closed")

// Client connects to the sprintexport daemon.
type Client struct {
	conn      net.Conn
	scanner   *bufio.Scanner
	mu        sync.Mutex
	pending   map[string]chan *Response
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	connected atomic.Bool
}

// NewClient dials the daemon's socket.
func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	c := &Client{
		conn:    conn,
		scanner: bufio.NewScanner(conn),
		pending: make(map[string]chan *Response),
		events:  make(chan Event, 100),
		done:    make(chan struct{}),
	}
	c.scanner.Buffer(make([]byte, 0, 64*1024), maxLine*16)
	c.connected.Store(true)

	go c.readLoop()
	return c, nil
}

// Close disconnects from the daemon.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Events returns events pushed by the daemon. Events are dropped when the
// channel is full.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Call sends one request and waits for its response or ctx.
func (c *Client) Call(ctx context.Context, method string, params any) (*Response, error) {
	if !c.connected.Load() {
		return nil, ErrClosed
	}

	id := uuid.NewString()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(Request{Method: method, Params: paramsJSON, ID: id})
	if err != nil {
		return nil, err
	}

	respChan := make(chan *Response, 1)
	c.mu.Lock()
	c.pending[id] = respChan
	_, err = c.conn.Write(append(encoded, '\n'))
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()
	if err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		return resp, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// call performs method and decodes the response data into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// ExportSprintData asks the daemon to export a sprint. A failed export is a
// Result with a Fault, not an error; errors mean the call itself failed.
func (c *Client) ExportSprintData(ctx context.Context, sprintID string) (*ExportResult, error) {
	var res ExportResult
	if err := c.call(ctx, MethodExportSprintData, ExportRequest{SprintID: sprintID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ResolveSprint asks the daemon which sprint a project would export.
func (c *Client) ResolveSprint(ctx context.Context, project string) (*SprintInfo, error) {
	var s SprintInfo
	if err := c.call(ctx, MethodResolveSprint, ResolveRequest{Project: project}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSprintData returns the structured view of a sprint.
func (c *Client) GetSprintData(ctx context.Context, sprintID string) (*SprintDataResult, error) {
	var d SprintDataResult
	if err := c.call(ctx, MethodGetSprintData, ExportRequest{SprintID: sprintID}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusInfo, error) {
	var s StatusInfo
	if err := c.call(ctx, MethodStatus, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) readLoop() {
	defer c.Close()
	for c.scanner.Scan() {
		select {
		case <-c.done:
			return
		default:
		}

		line := c.scanner.Bytes()

		var probe struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}
		if probe.Type != "" && probe.ID == "" {
			var event Event
			if json.Unmarshal(line, &event) == nil {
				select {
				case c.events <- event:
				default:
				}
			}
			continue
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil || resp.ID == "" {
			continue
		}
		c.mu.Lock()
		if ch, ok := c.pending[resp.ID]; ok {
			ch <- &resp
		}
		c.mu.Unlock()
	}
}
