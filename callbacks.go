package preview

import (
	"context"
	"time"
)

// SessionCallbacks defines the callback interface for worker session events.
// The GUI layer uses SessionFailed as its asynchronous "worker died"
// notification to show a banner and disable preview controls.
type SessionCallbacks interface {
	// SessionStarted fires after a worker process has been spawned and its
	// channel connected.
	SessionStarted(ctx context.Context, event *SessionEvent)

	// SessionFailed fires when the session becomes unusable: channel
	// failure, unexpected process exit, command timeout, or spawn failure.
	SessionFailed(ctx context.Context, event *SessionEvent)

	// CommandFinished fires after each command round trip, successful or not.
	CommandFinished(ctx context.Context, event *SessionEvent)
}

// SessionEvent provides context for session-level events
type SessionEvent struct {
	SessionID string
	State     ControllerState
	Command   CommandKind
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Error     error
}

// BaseSessionCallbacks provides a default implementation that does nothing.
// Embed this in your own callbacks to override only the events you care about.
type BaseSessionCallbacks struct{}

func (n *BaseSessionCallbacks) SessionStarted(ctx context.Context, event *SessionEvent) {
	// noop
}

func (n *BaseSessionCallbacks) SessionFailed(ctx context.Context, event *SessionEvent) {
	// noop
}

func (n *BaseSessionCallbacks) CommandFinished(ctx context.Context, event *SessionEvent) {
	// noop
}

// CallbackChain allows chaining multiple callback implementations
type CallbackChain struct {
	callbacks []SessionCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...SessionCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback SessionCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) SessionStarted(ctx context.Context, event *SessionEvent) {
	for _, callback := range c.callbacks {
		callback.SessionStarted(ctx, event)
	}
}

func (c *CallbackChain) SessionFailed(ctx context.Context, event *SessionEvent) {
	for _, callback := range c.callbacks {
		callback.SessionFailed(ctx, event)
	}
}

func (c *CallbackChain) CommandFinished(ctx context.Context, event *SessionEvent) {
	for _, callback := range c.callbacks {
		callback.CommandFinished(ctx, event)
	}
}
