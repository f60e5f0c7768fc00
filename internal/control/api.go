// Package control is the daemon's control plane: newline-delimited JSON
// requests and responses over a Unix socket.
package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/drewfead/sprintexport/internal/logging"
)

// Method names served by the daemon.
const (
	MethodExportSprintData = "exportSprintData"
	MethodResolveSprint    = "resolveSprint"
	MethodGetSprintData    = "getSprintData"
	MethodStatus           = "status"
)

// maxLine bounds a single request line.
const maxLine = 1 << 20

// Server handles incoming connections on the Unix socket.
type Server struct {
	socketPath string
	listener   net.Listener
	handlers   map[string]HandlerFunc
	mu         sync.RWMutex
	clients    map[net.Conn]struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// HandlerFunc serves one method. ctx is cancelled when the server stops.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Request is one line sent by a client.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     string          `json:"id,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	ID    string `json:"id,omitempty"`
}

// Event is pushed to every connected client.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NewServer creates a control server bound to socketPath once started.
func NewServer(socketPath string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]HandlerFunc),
		clients:    make(map[net.Conn]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Handle registers a handler for a method.
func (s *Server) Handle(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
}

// Start listens on the socket and serves connections in the background.
func (s *Server) Start() error {
	// A stale socket from a crashed daemon blocks Listen.
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener
	os.Chmod(s.socketPath, 0700)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every client connection, then waits for
// in-flight handlers to return.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}

		s.mu.Lock()
		for conn := range s.clients {
			conn.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
		os.Remove(s.socketPath)
	})
	return nil
}

// Broadcast sends an event to all connected clients.
func (s *Server) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.clients {
		conn.Write(data)
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			logging.Debug("control accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			s.send(conn, Response{Error: "invalid request: " + err.Error()})
			continue
		}

		s.mu.RLock()
		handler, ok := s.handlers[req.Method]
		s.mu.RUnlock()
		if !ok {
			s.send(conn, Response{ID: req.ID, Error: "unknown method: " + req.Method})
			continue
		}

		data, err := s.invoke(req, handler)
		if err != nil {
			s.send(conn, Response{ID: req.ID, Error: err.Error()})
			continue
		}
		s.send(conn, Response{ID: req.ID, Data: data})
	}
}

// invoke runs a handler, turning a panic into an error response.
func (s *Server) invoke(req Request, handler HandlerFunc) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.CapturePanic(r, "method", req.Method, "request_id", req.ID)
			data, err = nil, fmt.Errorf("internal error in %s", req.Method)
		}
	}()
	ctx := logging.NewContext(s.ctx, logging.With("request_id", req.ID, "method", req.Method))
	return handler(ctx, req.Params)
}

func (s *Server) send(conn net.Conn, resp Response) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		encoded, _ = json.Marshal(Response{ID: resp.ID, Error: "encode response: " + err.Error()})
	}
	conn.Write(append(encoded, '\n'))
}
