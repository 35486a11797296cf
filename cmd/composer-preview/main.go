// The composer-preview binary previews a YAML scene definition through a
// live worker process. With --watch it keeps the worker warm and replays
// edits incrementally as the scene file changes, which is the whole point of
// the checkpoint/restore protocol: the worker is spawned once, not once per
// edit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"

	preview "github.com/cenmir/composer-preview"
	"github.com/cenmir/composer-preview/scene"
)

// CLI configuration
type Config struct {
	SceneFile     string
	WorkerCommand string
	Timeout       time.Duration
	Watch         bool
	Verbose       bool
}

func main() {
	config := parseFlags()

	if config.SceneFile == "" {
		color.Red("Error: scene file is required")
		flag.Usage()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if config.Verbose {
		level = slog.LevelDebug
	}
	logger := preview.NewLeveledLogger(os.Stderr, level)

	controller := preview.NewController(preview.ControllerOptions{
		WorkerCommand:  []string{config.WorkerCommand},
		CommandTimeout: config.Timeout,
		Logger:         logger,
		Callbacks:      &cliCallbacks{},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer controller.Shutdown(context.Background())

	s, err := scene.LoadFile(config.SceneFile)
	if err != nil {
		color.Red("Error: %s", err)
		os.Exit(1)
	}

	if err := runScene(ctx, controller, s); err != nil {
		color.Red("Preview failed: %s", err)
		if !config.Watch {
			os.Exit(1)
		}
	}

	if !config.Watch {
		color.Green("Scene %q previewed", s.Name)
		return
	}

	if err := watch(ctx, controller, config, s); err != nil && ctx.Err() == nil {
		color.Red("Watch failed: %s", err)
		os.Exit(1)
	}
}

func parseFlags() *Config {
	config := &Config{}
	flag.StringVar(&config.SceneFile, "scene", "", "scene definition file (YAML)")
	flag.StringVar(&config.WorkerCommand, "worker", preview.DefaultWorkerCommand, "worker command")
	flag.DurationVar(&config.Timeout, "timeout", preview.DefaultCommandTimeout, "per-command timeout")
	flag.BoolVar(&config.Watch, "watch", false, "re-preview when the scene file changes")
	flag.BoolVar(&config.Verbose, "verbose", false, "enable debug logging")
	flag.Parse()
	return config
}

// runScene loads the scene construction into the worker, then plays every
// animation step through the checkpoint/restore path so each step's restore
// point exists for later incremental replays.
func runScene(ctx context.Context, controller *preview.Controller, s *scene.Scene) error {
	if err := controller.PreviewFull(ctx, scene.BaseSource(s)); err != nil {
		return err
	}
	for i := range s.Animations {
		key := scene.CheckpointKey(i)
		if err := controller.MarkCheckpoint(ctx, key); err != nil {
			return err
		}
		code, err := scene.StepSource(s, i)
		if err != nil {
			return err
		}
		if err := controller.PreviewIncremental(ctx, key, code); err != nil {
			return err
		}
		fmt.Printf("  %s step %d: %s\n", color.GreenString("✓"), i, s.Animations[i].Type)
	}
	return nil
}

// watch re-previews on every change to the scene file. When the edit keeps
// the same number of animation steps, only the final step is replayed from
// its checkpoint; structural edits trigger a full rebuild.
func watch(ctx context.Context, controller *preview.Controller, config *Config, current *scene.Scene) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(config.SceneFile); err != nil {
		return err
	}
	color.Cyan("Watching %s", config.SceneFile)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			next, err := scene.LoadFile(config.SceneFile)
			if err != nil {
				color.Yellow("Ignoring change: %s", err)
				continue
			}
			if err := applyChange(ctx, controller, current, next); err != nil {
				color.Red("Preview failed: %s", err)
			} else {
				color.Green("Scene %q previewed", next.Name)
			}
			current = next
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			color.Yellow("Watcher error: %s", err)
		}
	}
}

func applyChange(ctx context.Context, controller *preview.Controller, prev, next *scene.Scene) error {
	if plan, ok := scene.IncrementalPlan(prev, next); ok {
		if err := controller.PreviewIncremental(ctx, plan.Checkpoint, plan.Code); err == nil {
			fmt.Printf("  %s replayed step %d\n", color.GreenString("✓"), len(next.Animations)-1)
			return nil
		}
		// Fall through to a full rebuild; the checkpoint may be gone after a
		// worker respawn.
	}
	return runScene(ctx, controller, next)
}

// cliCallbacks surfaces session failures on the terminal; the controller's
// one-shot respawn handles recovery on the next request.
type cliCallbacks struct {
	preview.BaseSessionCallbacks
}

func (c *cliCallbacks) SessionFailed(ctx context.Context, event *preview.SessionEvent) {
	color.Yellow("preview disconnected, restarting on next request…")
}
