// Package worker implements the preview worker: the long-lived process that
// owns live renderable scene state, executes commands strictly one at a
// time, and keeps named deep snapshots of its state for restore.
package worker

import (
	"context"
	"errors"

	"github.com/risor-io/risor/object"

	"github.com/cenmir/composer-preview/script"
)

// Env holds the worker's live state: a mutable scene table bound into every
// evaluation as the "scene" global. Scripts mutate the table in place; the
// Env itself never reaches into what they store there.
type Env struct {
	engine script.Compiler
	scene  *object.Map
}

// NewEnv creates an environment with no scene loaded.
func NewEnv() *Env {
	return &Env{
		engine: script.NewRisorEngine(script.DefaultSceneGlobals()),
	}
}

// Ready reports whether a scene has been loaded.
func (e *Env) Ready() bool {
	return e.scene != nil
}

// LoadScene evaluates full scene-construction source against a fresh scene
// table. On failure the prior live state is left untouched.
func (e *Env) LoadScene(ctx context.Context, source string) error {
	fresh := newSceneTable()
	if _, err := e.eval(ctx, source, fresh); err != nil {
		return err
	}
	e.scene = fresh
	return nil
}

// Run evaluates a code fragment against current live state and returns the
// value of the final expression rendered as text, empty for nil. Exceptions
// propagate as errors; whatever the fragment mutated before raising stands.
func (e *Env) Run(ctx context.Context, code string) (string, error) {
	if e.scene == nil {
		return "", errors.New("no scene loaded")
	}
	value, err := e.eval(ctx, code, e.scene)
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

func (e *Env) eval(ctx context.Context, code string, scene *object.Map) (script.Value, error) {
	compiled, err := e.engine.Compile(ctx, code)
	if err != nil {
		return nil, err
	}
	return compiled.Evaluate(ctx, map[string]any{"scene": scene})
}

// Snapshot returns a deep copy of live state as plain Go values. Later
// mutation of live state cannot affect the copy and vice versa.
func (e *Env) Snapshot() (map[string]any, error) {
	if e.scene == nil {
		return nil, errors.New("no scene loaded")
	}
	state, ok := script.RisorToGo(e.scene).(map[string]any)
	if !ok {
		return nil, errors.New("scene state is not a table")
	}
	return state, nil
}

// Restore replaces live state wholesale with a fresh generation built from
// the snapshot. The snapshot itself never becomes live-and-mutable, so a
// later restore of the same snapshot yields the same state again.
func (e *Env) Restore(state map[string]any) error {
	items := make(map[string]object.Object, len(state))
	for key, value := range state {
		obj, err := script.GoToRisor(value)
		if err != nil {
			return err
		}
		items[key] = obj
	}
	e.scene = object.NewMap(items)
	return nil
}

// newSceneTable seeds the scene-global defaults every load_scene starts
// from: camera frame dimensions in scene units and the background color.
func newSceneTable() *object.Map {
	camera := object.NewMap(map[string]object.Object{
		"frame_width":  object.NewFloat(14.22),
		"frame_height": object.NewFloat(8.0),
		"background":   object.NewString("#000000"),
	})
	return object.NewMap(map[string]object.Object{
		"camera": camera,
	})
}
