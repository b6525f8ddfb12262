package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/engine"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/protocol"
	"github.com/google/renameio"
)

const (

	// Group granted access to the daemon socket.
	socketGroup = internal.Name

	// Socket mode. Connecting requires write permission.
	socketMode = 0660

	// Largest accepted request line.
	maxRequestSize = 1 << 20

	// Time a client has to send its request after connecting.
	requestTimeout = 30 * time.Second

	// Time allowed for writing a response.
	responseTimeout = 10 * time.Second

	// Pause after a failed Accept.
	acceptRetryDelay = 50 * time.Millisecond
)

// Reported as the cancel cause when a client hangs up mid-request.
var errClientGone = errors.New("client disconnected")

// Holds server configuration.
type Config struct {
	SocketPath string        // Unix socket path. Empty uses the default.
	PIDFile    string        // PID file path. Empty uses the default.
	Engine     engine.Config // Base configuration of every build.
}

// Kiln daemon serving build requests on a Unix domain socket.
//
// Each connection carries exactly one request and one response. Requests run
// under a context that ends when the client hangs up or the server stops.
type Server struct {
	cfg       Config
	listener  net.Listener
	startedAt time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	handlers sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	builds  int  // completed builds
	active  int  // builds in progress
	closing bool // set by Stop; no handlers start afterwards
}

// Creates a server. Nothing is opened until [Server.Start].
func New(cfg Config) (*Server, error) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = paths.Socket()
	}
	if cfg.PIDFile == "" {
		cfg.PIDFile = paths.PIDFile()
	}
	if _, err := engine.ParseRetention(string(cfg.Engine.KeepWork)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// Opens the socket and starts serving in the background.
//
// Fails if another daemon is already answering on the socket.
func (s *Server) Start() error {
	l, err := listen(s.cfg.SocketPath)
	if err != nil {
		return err
	}
	s.listener = l
	s.startedAt = time.Now()

	if err := writePID(s.cfg.PIDFile); err != nil {
		slog.Warn("failed to write PID file", "path", s.cfg.PIDFile, "error", err)
	}

	slog.Info("listening", "socket", s.cfg.SocketPath, "pid", os.Getpid())

	go s.serve()
	return nil
}

// Opens the Unix socket at path, replacing a stale socket file left by a
// daemon that is no longer running.
func listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	if live(path) {
		return nil, fmt.Errorf("%w: daemon already listening on %s", ErrServer, path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: removing stale socket: %w", ErrServer, err)
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %s: %w", ErrServer, path, err)
	}

	if err := restrictSocket(path); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Reports whether something accepts connections on the socket at path.
func live(path string) bool {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Limits the socket to its owner and the kiln group. A missing group leaves
// the socket owner-only.
func restrictSocket(path string) error {
	if err := os.Chmod(path, socketMode); err != nil {
		return fmt.Errorf("%w: chmod socket %s: %w", ErrServer, path, err)
	}

	g, err := user.LookupGroup(socketGroup)
	if err != nil {
		slog.Debug("socket group not found", "group", socketGroup)
		return nil
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return nil
	}
	if err := os.Chown(path, -1, gid); err != nil {
		slog.Warn("failed to chgrp socket", "group", socketGroup, "error", err)
	}
	return nil
}

// Stops accepting connections, cancels running builds and waits for their
// handlers to return. Later calls do nothing.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.handlers.Wait()

		os.Remove(s.cfg.SocketPath)
		os.Remove(s.cfg.PIDFile)
		close(s.done)
	})
	return nil
}

// Blocks until [Server.Stop] has finished.
func (s *Server) Wait() {
	<-s.done
}

// Accepts connections until the listener is closed.
func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept failed", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		if !s.track() {
			conn.Close()
			return
		}
		go func() {
			defer s.handlers.Done()
			s.handle(conn)
		}()
	}
}

// Registers a handler unless the server is stopping.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.handlers.Add(1)
	return true
}

// Serves the single request carried by conn.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(requestTimeout))
	reader := bufio.NewReader(io.LimitReader(conn, maxRequestSize))

	line, err := reader.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) >= maxRequestSize {
			s.fail(conn, fmt.Errorf("%w: request exceeds %d bytes", protocol.ErrProtocol, maxRequestSize))
			return
		}
		slog.Debug("reading request failed", "error", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	env, payload, err := protocol.Decode(line)
	if err != nil {
		s.fail(conn, err)
		return
	}

	slog.Info("request", "command", env.Command)

	ctx, cancel := watchPeer(s.ctx, conn)
	defer cancel(nil)

	s.dispatch(ctx, conn, env.Command, payload)
}

// Routes a command to its handler.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, cmd protocol.Command, payload json.RawMessage) {
	switch cmd {
	case protocol.CmdBuild:
		s.handleBuild(ctx, conn, payload)
	case protocol.CmdStatus:
		s.handleStatus(conn)
	case protocol.CmdShutdown:
		s.handleShutdown(conn)
	default:
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{
			Message: fmt.Sprintf("unknown command: %s", cmd),
		})
	}
}

// Sends err to the client, tagged with its error kind.
func (s *Server) fail(conn net.Conn, err error) {
	s.respond(conn, protocol.CmdError, &protocol.ErrorResult{
		Message: err.Error(),
		Kind:    errorKind(err),
	})
}

// Writes one response line.
func (s *Server) respond(conn net.Conn, cmd protocol.Command, payload any) {
	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		slog.Error("encoding response failed", "command", cmd, "error", err)
		return
	}

	conn.SetWriteDeadline(time.Now().Add(responseTimeout))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}

// Records the daemon PID at path.
func writePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), paths.DefaultDirMode); err != nil {
		return err
	}
	return renameio.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), paths.DefaultFileMode)
}

// Derives a context that is cancelled with [errClientGone] once the peer
// hangs up.
//
// The client sends nothing after its request, so any read returning, with
// data or an error, ends the context. The returned function must be called.
func watchPeer(parent context.Context, r io.Reader) (context.Context, context.CancelCauseFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	go func() {
		var b [1]byte
		r.Read(b[:])
		cancel(errClientGone)
	}()

	return ctx, cancel
}
