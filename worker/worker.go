package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	preview "github.com/cenmir/composer-preview"
)

// Options configures a new Worker
type Options struct {
	Logger  *slog.Logger
	Display Display
}

// Worker executes preview commands against live scene state. It never
// initiates communication: it reads one command, handles it completely,
// emits exactly one response, and only then reads the next command.
type Worker struct {
	logger  *slog.Logger
	display Display
	env     *Env
	store   *Store
}

// New creates a worker with an empty environment and snapshot store.
func New(opts Options) *Worker {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Display == nil {
		opts.Display = NewNullDisplay()
	}
	return &Worker{
		logger:  opts.Logger,
		display: opts.Display,
		env:     NewEnv(),
		store:   NewStore(),
	}
}

// Run processes commands from in and writes responses to out until a
// shutdown command, a clean channel close, or a transport fault. Execution
// errors are reported as error responses and never end the loop.
func (w *Worker) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	commands := preview.NewCommandReader(in)
	responses := preview.NewResponseWriter(out)

	defer w.display.Close()

	for {
		cmd, err := commands.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Controller closed its end; nothing left to answer.
				w.logger.Info("command channel closed")
				return nil
			}
			return fmt.Errorf("command channel failed: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		resp := w.handle(ctx, cmd)
		if err := responses.Write(&resp); err != nil {
			return err
		}
		if cmd.Kind == preview.CommandShutdown {
			w.logger.Info("shutting down")
			return nil
		}
	}
}

func (w *Worker) handle(ctx context.Context, cmd *preview.Command) preview.Response {
	start := time.Now()
	resp := w.dispatch(ctx, cmd)
	w.logger.Debug("command handled",
		"kind", cmd.Kind,
		"id", cmd.ID,
		"status", resp.Status,
		"duration", time.Since(start))
	return resp
}

func (w *Worker) dispatch(ctx context.Context, cmd *preview.Command) preview.Response {
	switch cmd.Kind {
	case preview.CommandLoadScene:
		if err := w.env.LoadScene(ctx, cmd.Code); err != nil {
			return preview.ErrorResponse(cmd, err.Error())
		}
		w.refreshDisplay()
		return preview.OkResponse(cmd)

	case preview.CommandCheckpoint:
		state, err := w.env.Snapshot()
		if err != nil {
			return preview.ErrorResponse(cmd, err.Error())
		}
		w.store.Save(&Snapshot{ID: cmd.ID, State: state, TakenAt: time.Now()})
		return preview.OkResponse(cmd)

	case preview.CommandRestore:
		snapshot, ok := w.store.Load(cmd.ID)
		if !ok {
			return preview.ErrorResponse(cmd, fmt.Sprintf("unknown checkpoint %q", cmd.ID))
		}
		if err := w.env.Restore(snapshot.State); err != nil {
			return preview.ErrorResponse(cmd, err.Error())
		}
		w.refreshDisplay()
		return preview.OkResponse(cmd)

	case preview.CommandRunCode:
		result, err := w.env.Run(ctx, cmd.Code)
		if err != nil {
			return preview.ErrorResponse(cmd, err.Error())
		}
		w.refreshDisplay()
		resp := preview.OkResponse(cmd)
		resp.Result = result
		return resp

	case preview.CommandShutdown:
		return preview.OkResponse(cmd)

	default:
		return preview.ErrorResponse(cmd, fmt.Sprintf("unknown command kind %q", cmd.Kind))
	}
}

// refreshDisplay pushes the new state to the surface. Display trouble is
// logged, not reported: the command itself succeeded.
func (w *Worker) refreshDisplay() {
	state, err := w.env.Snapshot()
	if err != nil {
		w.logger.Warn("display refresh skipped", "error", err)
		return
	}
	if err := w.display.Refresh(state); err != nil {
		w.logger.Warn("display refresh failed", "error", err)
	}
}
