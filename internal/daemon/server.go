package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ccengram/ccengram/internal/actor"
	engramerrors "github.com/ccengram/ccengram/internal/errors"
)

// Server listens on a unix socket and routes requests to project actors.
type Server struct {
	socketPath string
	registry   *actor.Registry
	defaultCWD string
	started    time.Time

	mu       sync.Mutex
	shutdown bool
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates a server routing through the given registry.
// defaultCWD serves requests that carry no cwd.
func NewServer(socketPath string, registry *actor.Registry, defaultCWD string) *Server {
	return &Server{
		socketPath: socketPath,
		registry:   registry,
		defaultCWD: defaultCWD,
	}
}

// ListenAndServe starts the server and blocks until the context is
// cancelled or a shutdown request arrives.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return err
	}
	// Clean up any stale socket.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.started = time.Now()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	serveCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.stop = cancel
	s.mu.Unlock()

	slog.Info("daemon listening", "socket", s.socketPath)

	go func() {
		<-serveCtx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.shutdown
			s.mu.Unlock()
			if stopped {
				break
			}
			slog.Warn("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(serveCtx, conn)
		}()
	}

	s.wg.Wait()
	s.registry.Shutdown()
	return nil
}

// serveConn handles one connection: newline-delimited JSON requests.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	reader := bufio.NewReader(conn)
	encoder := json.NewEncoder(conn)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "malformed request"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

// dispatch routes one request. System methods answer here; everything
// else goes to the project actor selected by cwd.
func (s *Server) dispatch(ctx context.Context, req *Request) Response {
	if req.Method == "" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "method required")
	}

	switch req.Method {
	case "health_check":
		return NewSuccessResponse(req.ID, map[string]any{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
		})

	case "metrics":
		return NewSuccessResponse(req.ID, map[string]any{
			"uptime_seconds": int(time.Since(s.started).Seconds()),
		})

	case "shutdown":
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			// Answer first, then stop accepting.
			go stop()
		}
		return NewSuccessResponse(req.ID, map[string]bool{"stopping": true})
	}

	cwd := req.CWD
	if cwd == "" {
		cwd = s.defaultCWD
	}

	result, err := s.registry.Dispatch(ctx, cwd, req.Method, req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, engramerrors.RPCCode(err), err.Error())
	}
	return NewSuccessResponse(req.ID, result)
}
