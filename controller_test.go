package preview_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	preview "github.com/cenmir/composer-preview"
	"github.com/cenmir/composer-preview/worker"
)

// pipeLauncher launches real workers in-process, connected over pipes, so
// controller behavior is exercised against the actual command loop without
// spawning binaries. failFrom > 0 makes launch attempt N and later fail.
type pipeLauncher struct {
	mutex    sync.Mutex
	launches int
	failFrom int
	kill     func() error
}

func (l *pipeLauncher) Launch(ctx context.Context) (*preview.Session, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.launches++
	if l.failFrom > 0 && l.launches >= l.failFrom {
		return nil, errors.New("spawn failed")
	}

	cmdR, cmdW := io.Pipe()
	respR, respW := io.Pipe()
	done := make(chan struct{})

	w := worker.New(worker.Options{})
	go func() {
		defer close(done)
		w.Run(context.Background(), cmdR, respW)
		respW.Close()
	}()

	kill := func() error {
		cmdR.CloseWithError(io.ErrClosedPipe)
		respW.CloseWithError(io.ErrClosedPipe)
		return nil
	}
	l.kill = kill

	return preview.NewSession(preview.SessionOptions{
		Stdin:  cmdW,
		Stdout: respR,
		Done:   done,
		Kill:   kill,
	}), nil
}

func (l *pipeLauncher) launchCount() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.launches
}

// killWorker simulates the worker process dying externally.
func (l *pipeLauncher) killWorker() {
	l.mutex.Lock()
	kill := l.kill
	l.mutex.Unlock()
	kill()
}

func newTestController(t *testing.T, launcher preview.Launcher, callbacks preview.SessionCallbacks) *preview.Controller {
	t.Helper()
	controller := preview.NewController(preview.ControllerOptions{
		Launcher:       launcher,
		CommandTimeout: 5 * time.Second,
		Callbacks:      callbacks,
	})
	t.Cleanup(func() { controller.Shutdown(context.Background()) })
	return controller
}

func TestControllerLifecycle(t *testing.T) {
	ctx := context.Background()
	launcher := &pipeLauncher{}
	controller := newTestController(t, launcher, nil)

	require.Equal(t, preview.StateStopped, controller.State())

	require.NoError(t, controller.PreviewFull(ctx, `scene["x"] = 1`))
	require.Equal(t, preview.StateReady, controller.State())

	require.NoError(t, controller.MarkCheckpoint(ctx, "c1"))
	require.NoError(t, controller.PreviewIncremental(ctx, "c1", `assert(scene["x"] == 1)`))

	// Mutate, then prove restore reverts the mutation.
	require.NoError(t, controller.PreviewIncremental(ctx, "c1", `scene["x"] = 2`))
	require.NoError(t, controller.PreviewIncremental(ctx, "c1", `assert(scene["x"] == 1)`))

	require.NoError(t, controller.Shutdown(ctx))
	require.Equal(t, preview.StateStopped, controller.State())
	require.NoError(t, controller.Shutdown(ctx), "shutdown is idempotent")
	require.Equal(t, 1, launcher.launchCount())
}

func TestControllerUnknownCheckpoint(t *testing.T) {
	ctx := context.Background()
	controller := newTestController(t, &pipeLauncher{}, nil)

	require.NoError(t, controller.PreviewFull(ctx, `scene["x"] = 1`))

	err := controller.PreviewIncremental(ctx, "missing", `scene["x"] = 2`)
	require.Error(t, err)
	require.Equal(t, preview.ErrorTypeExecution, preview.ClassifyError(err).Type)
	require.Contains(t, err.Error(), "unknown checkpoint")

	// The restore error short-circuited; the worker is still usable and
	// live state unchanged.
	require.Equal(t, preview.StateReady, controller.State())
	require.NoError(t, controller.MarkCheckpoint(ctx, "c1"))
	require.NoError(t, controller.PreviewIncremental(ctx, "c1", `assert(scene["x"] == 1)`))
}

func TestControllerNoSceneLoaded(t *testing.T) {
	ctx := context.Background()
	launcher := &pipeLauncher{}
	controller := newTestController(t, launcher, nil)

	err := controller.MarkCheckpoint(ctx, "c1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no scene loaded")

	err = controller.PreviewIncremental(ctx, "c1", `scene["x"] = 1`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no scene loaded")

	require.Zero(t, launcher.launchCount(), "no worker should be spawned without a scene")
	require.Equal(t, preview.StateStopped, controller.State())
}

func TestControllerInitialLoadFailure(t *testing.T) {
	ctx := context.Background()
	launcher := &pipeLauncher{}
	controller := newTestController(t, launcher, nil)

	err := controller.PreviewFull(ctx, `nonsense(`)
	require.Error(t, err)
	require.Equal(t, preview.ErrorTypeExecution, preview.ClassifyError(err).Type)
	require.Equal(t, preview.StateFailed, controller.State())

	// The next preview request gets the one automatic respawn.
	require.NoError(t, controller.PreviewFull(ctx, `scene["x"] = 1`))
	require.Equal(t, preview.StateReady, controller.State())
	require.Equal(t, 2, launcher.launchCount())
}

func TestControllerExecutionErrorRecoverable(t *testing.T) {
	ctx := context.Background()
	launcher := &pipeLauncher{}
	controller := newTestController(t, launcher, nil)

	require.NoError(t, controller.PreviewFull(ctx, `scene["x"] = 1`))

	err := controller.PreviewFull(ctx, `nonsense(`)
	require.Error(t, err)
	require.Equal(t, preview.ErrorTypeExecution, preview.ClassifyError(err).Type)

	// A bad reload once Ready does not kill the session; prior state stands.
	require.Equal(t, preview.StateReady, controller.State())
	require.NoError(t, controller.MarkCheckpoint(ctx, "c1"))
	require.NoError(t, controller.PreviewIncremental(ctx, "c1", `assert(scene["x"] == 1)`))
	require.Equal(t, 1, launcher.launchCount())
}

func TestControllerRespawnAfterWorkerDeath(t *testing.T) {
	ctx := context.Background()
	launcher := &pipeLauncher{}
	controller := newTestController(t, launcher, nil)

	require.NoError(t, controller.PreviewFull(ctx, `scene["x"] = 1`))
	launcher.killWorker()

	require.Eventually(t, func() bool {
		return controller.State() == preview.StateFailed
	}, 2*time.Second, 10*time.Millisecond)

	// A non-full request triggers respawn plus replay of the remembered
	// scene source. The checkpoint store is fresh, so live state must have
	// been rebuilt from the replay for this to pass.
	require.NoError(t, controller.MarkCheckpoint(ctx, "c1"))
	require.NoError(t, controller.PreviewIncremental(ctx, "c1", `assert(scene["x"] == 1)`))
	require.Equal(t, preview.StateReady, controller.State())
	require.Equal(t, 2, launcher.launchCount())
}

func TestControllerRespawnExhausted(t *testing.T) {
	ctx := context.Background()
	launcher := &pipeLauncher{failFrom: 2}
	controller := newTestController(t, launcher, nil)

	require.NoError(t, controller.PreviewFull(ctx, `scene["x"] = 1`))
	launcher.killWorker()

	require.Eventually(t, func() bool {
		return controller.State() == preview.StateFailed
	}, 2*time.Second, 10*time.Millisecond)

	// The single respawn attempt fails at spawn.
	err := controller.PreviewFull(ctx, `scene["x"] = 1`)
	require.Error(t, err)
	require.Equal(t, preview.StateFailed, controller.State())
	require.Equal(t, 2, launcher.launchCount())

	// Further requests surface the terminal error without spawning again.
	err = controller.PreviewFull(ctx, `scene["x"] = 1`)
	require.ErrorIs(t, err, preview.ErrPreviewUnavailable)
	require.Equal(t, 2, launcher.launchCount())
}

// wedgedLauncher produces sessions whose worker accepts commands but never
// answers them.
type wedgedLauncher struct {
	killed chan struct{}
}

func (l *wedgedLauncher) Launch(ctx context.Context) (*preview.Session, error) {
	cmdR, cmdW := io.Pipe()
	respPipeR, respPipeW := io.Pipe()
	done := make(chan struct{})

	go func() {
		reader := preview.NewCommandReader(cmdR)
		for {
			if _, err := reader.Read(); err != nil {
				return
			}
		}
	}()

	kill := func() error {
		select {
		case <-l.killed:
		default:
			close(l.killed)
		}
		cmdR.CloseWithError(io.ErrClosedPipe)
		respPipeW.CloseWithError(io.ErrClosedPipe)
		close(done)
		return nil
	}
	return preview.NewSession(preview.SessionOptions{
		Stdin:  cmdW,
		Stdout: respPipeR,
		Done:   done,
		Kill:   kill,
	}), nil
}

func TestControllerCommandTimeout(t *testing.T) {
	ctx := context.Background()
	launcher := &wedgedLauncher{killed: make(chan struct{})}
	controller := preview.NewController(preview.ControllerOptions{
		Launcher:       launcher,
		CommandTimeout: 50 * time.Millisecond,
	})

	err := controller.PreviewFull(ctx, `scene["x"] = 1`)
	require.Error(t, err)
	require.Equal(t, preview.ErrorTypeTimeout, preview.ClassifyError(err).Type)
	require.Equal(t, preview.StateFailed, controller.State())

	select {
	case <-launcher.killed:
	default:
		t.Fatal("timeout should terminate the worker process")
	}
}

// recordingCallbacks counts session events for assertion.
type recordingCallbacks struct {
	preview.BaseSessionCallbacks
	mutex    sync.Mutex
	started  int
	failed   int
	commands int
}

func (r *recordingCallbacks) SessionStarted(ctx context.Context, event *preview.SessionEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.started++
}

func (r *recordingCallbacks) SessionFailed(ctx context.Context, event *preview.SessionEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.failed++
}

func (r *recordingCallbacks) CommandFinished(ctx context.Context, event *preview.SessionEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.commands++
}

func (r *recordingCallbacks) counts() (started, failed, commands int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.started, r.failed, r.commands
}

func TestControllerCallbacks(t *testing.T) {
	ctx := context.Background()
	launcher := &pipeLauncher{}
	callbacks := &recordingCallbacks{}
	controller := newTestController(t, launcher, callbacks)

	require.NoError(t, controller.PreviewFull(ctx, `scene["x"] = 1`))
	require.NoError(t, controller.MarkCheckpoint(ctx, "c1"))

	started, failed, commands := callbacks.counts()
	require.Equal(t, 1, started)
	require.Zero(t, failed)
	require.Equal(t, 2, commands)

	launcher.killWorker()
	require.Eventually(t, func() bool {
		_, failed, _ := callbacks.counts()
		return failed == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, preview.StateFailed, controller.State())
}
