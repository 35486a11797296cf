package preview

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ControllerState represents the controller's position in its lifecycle.
type ControllerState string

const (
	StateStopped  ControllerState = "stopped"
	StateStarting ControllerState = "starting"
	StateReady    ControllerState = "ready"
	StateBusy     ControllerState = "busy"
	StateFailed   ControllerState = "failed"
)

// DefaultCommandTimeout bounds every command round trip. A worker that does
// not answer within the deadline is terminated rather than waited on.
const DefaultCommandTimeout = 30 * time.Second

// ControllerOptions configures a new Controller
type ControllerOptions struct {
	// Launcher spawns worker sessions. Defaults to a ProcessLauncher running
	// WorkerCommand.
	Launcher Launcher

	// WorkerCommand is the worker command line used by the default launcher.
	WorkerCommand []string

	// CommandTimeout bounds each command round trip.
	CommandTimeout time.Duration

	Logger    *slog.Logger
	Callbacks SessionCallbacks
}

// Controller owns one worker session and translates preview requests into
// protocol commands. Operations block the calling goroutine until the
// response arrives or the command deadline passes; the GUI layer is expected
// to call from a non-UI goroutine and marshal results back itself.
//
// On session failure the controller attempts exactly one transparent respawn
// on the next preview request, replaying the last loaded scene source. If
// that respawn also fails, operations return ErrPreviewUnavailable until the
// caller shuts the controller down and starts over.
type Controller struct {
	launcher  Launcher
	timeout   time.Duration
	logger    *slog.Logger
	callbacks SessionCallbacks

	mutex        sync.Mutex
	state        ControllerState
	session      *Session
	sceneSource  string
	respawnSpent bool
}

// NewController creates a controller in the Stopped state. No worker is
// spawned until the first preview request.
func NewController(opts ControllerOptions) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Launcher == nil {
		opts.Launcher = NewProcessLauncher(opts.WorkerCommand, opts.Logger)
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseSessionCallbacks{}
	}
	return &Controller{
		launcher:  opts.Launcher,
		timeout:   opts.CommandTimeout,
		logger:    opts.Logger,
		callbacks: opts.Callbacks,
		state:     StateStopped,
	}
}

// State returns the current controller state
func (c *Controller) State() ControllerState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// PreviewFull replaces all live worker state by loading the given scene
// source. The source is remembered so a respawned worker can be seeded with
// the last known-good scene.
func (c *Controller) PreviewFull(ctx context.Context, source string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	return c.loadScene(ctx, source)
}

// PreviewIncremental restores the named checkpoint and then runs the code
// fragment against the restored state. If the restore fails its error is
// reported and the fragment is never sent.
func (c *Controller) PreviewIncremental(ctx context.Context, checkpointID, code string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.ensureScene(ctx); err != nil {
		return err
	}

	resp, err := c.roundTrip(ctx, &Command{Kind: CommandRestore, ID: checkpointID})
	if err != nil {
		return err
	}
	if !resp.Ok() {
		return ExecutionError(resp.Message)
	}

	resp, err = c.roundTrip(ctx, &Command{Kind: CommandRunCode, Code: code})
	if err != nil {
		return err
	}
	if !resp.Ok() {
		return ExecutionError(resp.Message)
	}
	return nil
}

// MarkCheckpoint snapshots the worker's live state under the given id,
// overwriting any previous snapshot with that id.
func (c *Controller) MarkCheckpoint(ctx context.Context, id string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.ensureScene(ctx); err != nil {
		return err
	}

	resp, err := c.roundTrip(ctx, &Command{Kind: CommandCheckpoint, ID: id})
	if err != nil {
		return err
	}
	if !resp.Ok() {
		return ExecutionError(resp.Message)
	}
	return nil
}

// Shutdown gracefully ends the worker session and returns the controller to
// Stopped. Idempotent: shutting down a stopped controller is a no-op.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state == StateStopped {
		return nil
	}
	if c.session != nil {
		tctx, cancel := context.WithTimeout(ctx, c.timeout)
		if _, err := c.session.Call(tctx, &Command{Kind: CommandShutdown}); err != nil {
			c.logger.Warn("shutdown handshake failed", "error", err)
		}
		cancel()
		c.session.Close()
		c.session = nil
	}
	c.state = StateStopped
	c.respawnSpent = false
	c.logger.Info("preview controller stopped")
	return nil
}

// ensureSession makes sure a worker session exists, spawning or respawning
// as the state machine allows. Holds c.mutex.
func (c *Controller) ensureSession(ctx context.Context) error {
	switch c.state {
	case StateReady, StateStarting:
		return nil
	case StateStopped:
		return c.start(ctx)
	case StateFailed:
		if c.respawnSpent {
			return TransportError(ErrPreviewUnavailable.Error(), ErrPreviewUnavailable)
		}
		c.respawnSpent = true
		c.teardown()
		c.logger.Info("attempting worker respawn")
		return c.start(ctx)
	default:
		return NewPreviewError(ErrorTypeTransport, "preview operation already in flight")
	}
}

// ensureScene brings the controller to Ready for operations that need live
// state, replaying the remembered scene source after a (re)spawn. Holds
// c.mutex.
func (c *Controller) ensureScene(ctx context.Context) error {
	if c.state != StateReady && c.sceneSource == "" {
		return ExecutionError(ErrNoSceneLoaded.Error())
	}
	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	if c.state == StateStarting {
		if err := c.loadScene(ctx, c.sceneSource); err != nil {
			return err
		}
	}
	return nil
}

// loadScene sends load_scene and applies the Starting/Ready transitions.
// Holds c.mutex.
func (c *Controller) loadScene(ctx context.Context, source string) error {
	starting := c.state == StateStarting

	resp, err := c.roundTrip(ctx, &Command{Kind: CommandLoadScene, Code: source})
	if err != nil {
		return err
	}
	if !resp.Ok() {
		if starting {
			// A worker that cannot load any scene never becomes responsive
			// in a useful sense.
			c.fail(ctx, CommandLoadScene, ExecutionError(resp.Message))
		}
		return ExecutionError(resp.Message)
	}
	c.state = StateReady
	c.sceneSource = source
	c.respawnSpent = false
	return nil
}

// start spawns a fresh worker session. Holds c.mutex.
func (c *Controller) start(ctx context.Context) error {
	c.state = StateStarting

	session, err := c.launcher.Launch(ctx)
	if err != nil {
		perr := TransportError("failed to spawn worker", err)
		c.fail(ctx, "", perr)
		return perr
	}
	c.session = session
	go c.watchSession(session)

	c.logger.Info("worker session started", "session_id", session.ID())
	c.callbacks.SessionStarted(ctx, &SessionEvent{
		SessionID: session.ID(),
		State:     StateStarting,
		StartTime: time.Now(),
	})
	return nil
}

// watchSession delivers the asynchronous "worker died" notification when a
// session's process exits while the controller still considers it live.
func (c *Controller) watchSession(session *Session) {
	<-session.Done()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session != session {
		// Already torn down or replaced; the exit was handled elsewhere.
		return
	}
	c.session = nil
	c.state = StateFailed
	c.logger.Error("worker process exited unexpectedly", "session_id", session.ID())
	c.callbacks.SessionFailed(context.Background(), &SessionEvent{
		SessionID: session.ID(),
		State:     StateFailed,
		EndTime:   time.Now(),
		Error:     NewPreviewError(ErrorTypeTransport, "worker process exited"),
	})
}

// roundTrip sends one command and waits for its response under the command
// deadline. Transport and timeout failures move the controller to Failed;
// error-status responses are returned to the caller for classification.
// Holds c.mutex.
func (c *Controller) roundTrip(ctx context.Context, cmd *Command) (*Response, error) {
	if c.state == StateReady {
		c.state = StateBusy
	}
	sessionID := c.session.ID()
	start := time.Now()

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	resp, err := c.session.Call(tctx, cmd)
	cancel()

	end := time.Now()
	if err != nil {
		perr := ClassifyError(err)
		c.fail(ctx, cmd.Kind, perr)
		return nil, perr
	}

	if c.state == StateBusy {
		c.state = StateReady
	}
	event := &SessionEvent{
		SessionID: sessionID,
		State:     c.state,
		Command:   cmd.Kind,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
	}
	if !resp.Ok() {
		event.Error = ExecutionError(resp.Message)
	}
	c.callbacks.CommandFinished(ctx, event)
	return resp, nil
}

// fail tears the session down and records the failure. Holds c.mutex.
func (c *Controller) fail(ctx context.Context, kind CommandKind, perr *PreviewError) {
	var sessionID string
	if c.session != nil {
		sessionID = c.session.ID()
	}
	c.teardown()
	c.state = StateFailed
	c.logger.Error("worker session failed",
		"session_id", sessionID,
		"command", kind,
		"error_type", perr.Type,
		"error", perr.Cause)
	c.callbacks.SessionFailed(ctx, &SessionEvent{
		SessionID: sessionID,
		State:     StateFailed,
		Command:   kind,
		EndTime:   time.Now(),
		Error:     perr,
	})
}

// teardown closes and forgets the current session, killing the process if it
// is still alive. Holds c.mutex.
func (c *Controller) teardown() {
	if c.session == nil {
		return
	}
	c.session.Close()
	c.session = nil
}
