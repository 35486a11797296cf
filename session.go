package preview

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"go.jetify.com/typeid"
)

// NewSessionID returns a new typed ID for session identification
func NewSessionID() string {
	id, err := typeid.WithPrefix("sess")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// SessionOptions configures a new worker session. Stdin and Stdout are the
// two directions of the byte-stream channel; Done must be closed when the
// worker process exits; Kill terminates the process without a handshake.
type SessionOptions struct {
	Stdin  io.WriteCloser
	Stdout io.Reader
	Done   <-chan struct{}
	Kill   func() error
	Logger *slog.Logger
}

// Session is one worker process instance plus its channel, from spawn to
// termination. It is exclusively owned by one Controller; Call serializes
// commands so at most one is ever in flight.
type Session struct {
	id       string
	logger   *slog.Logger
	stdin    io.WriteCloser
	commands *CommandWriter
	done     <-chan struct{}
	kill     func() error

	responses chan *Response

	mutex   sync.Mutex
	readErr error
	closed  bool
}

// NewSession wraps an already-connected worker channel. Callers normally go
// through a Launcher rather than constructing sessions directly.
func NewSession(opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Session{
		id:        NewSessionID(),
		logger:    logger,
		stdin:     opts.Stdin,
		commands:  NewCommandWriter(opts.Stdin),
		done:      opts.Done,
		kill:      opts.Kill,
		responses: make(chan *Response, 16),
	}
	go s.readLoop(opts.Stdout)
	return s
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// Done is closed when the worker process has exited, for any reason.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// readLoop decodes responses until the channel breaks, then closes the
// responses channel so pending Calls observe the failure.
func (s *Session) readLoop(r io.Reader) {
	reader := NewResponseReader(r)
	for {
		resp, err := reader.Read()
		if err != nil {
			s.mutex.Lock()
			s.readErr = err
			s.mutex.Unlock()
			close(s.responses)
			return
		}
		s.responses <- resp
	}
}

// Call sends one command and blocks until its response arrives, the context
// expires, or the worker process exits. Responses arrive in command order;
// Call never pipelines.
func (s *Session) Call(ctx context.Context, cmd *Command) (*Response, error) {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil, NewPreviewError(ErrorTypeTransport, "session closed")
	}
	s.mutex.Unlock()

	if err := s.commands.Write(cmd); err != nil {
		return nil, TransportError(fmt.Sprintf("failed to send %s command", cmd.Kind), err)
	}

	select {
	case resp, ok := <-s.responses:
		if !ok {
			return nil, s.channelError()
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ClassifyError(ctx.Err())
	case <-s.done:
		// The process may have answered just before exiting; prefer a
		// decoded response over reporting the exit.
		select {
		case resp, ok := <-s.responses:
			if ok {
				return resp, nil
			}
		default:
		}
		return nil, NewPreviewError(ErrorTypeTransport, "worker process exited")
	}
}

func (s *Session) channelError() error {
	s.mutex.Lock()
	err := s.readErr
	s.mutex.Unlock()
	if err == nil || errors.Is(err, io.EOF) {
		return NewPreviewError(ErrorTypeTransport, "worker closed the response channel")
	}
	return TransportError("response channel failed", err)
}

// Kill terminates the worker process without a shutdown handshake. Used when
// the worker is presumed wedged.
func (s *Session) Kill() error {
	if s.kill == nil {
		return nil
	}
	return s.kill()
}

// Close tears down the channel and terminates the process if it is still
// running. Safe to call more than once.
func (s *Session) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	s.mutex.Unlock()

	if s.stdin != nil {
		s.stdin.Close()
	}
	return s.Kill()
}

// Launcher spawns worker processes and connects their channels.
type Launcher interface {
	Launch(ctx context.Context) (*Session, error)
}

// DefaultWorkerCommand is the worker executable looked up on PATH when no
// explicit command is configured.
const DefaultWorkerCommand = "composer-worker"

// ProcessLauncher launches the worker as an external process and wires its
// standard streams into a Session. The worker needs no arguments beyond
// locating itself; stderr is forwarded to the log.
type ProcessLauncher struct {
	command []string
	logger  *slog.Logger
}

// NewProcessLauncher creates a launcher for the given worker command line.
func NewProcessLauncher(command []string, logger *slog.Logger) *ProcessLauncher {
	if len(command) == 0 {
		command = []string{DefaultWorkerCommand}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ProcessLauncher{command: command, logger: logger}
}

func (l *ProcessLauncher) Launch(ctx context.Context) (*Session, error) {
	cmd := exec.Command(l.command[0], l.command[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn worker %q: %w", l.command[0], err)
	}
	l.logger.Info("worker process spawned", "command", l.command[0], "pid", cmd.Process.Pid)

	go l.forwardStderr(stderr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := cmd.Wait(); err != nil {
			l.logger.Warn("worker process exited", "error", err)
		}
	}()

	kill := func() error {
		err := cmd.Process.Kill()
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		return nil
	}

	return NewSession(SessionOptions{
		Stdin:  stdin,
		Stdout: stdout,
		Done:   done,
		Kill:   kill,
		Logger: l.logger,
	}), nil
}

func (l *ProcessLauncher) forwardStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		l.logger.Debug("worker stderr", "line", scanner.Text())
	}
}
