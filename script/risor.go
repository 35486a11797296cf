package script

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/modules/all"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
)

// RisorScript is a compiled Risor program bound to its engine's globals.
type RisorScript struct {
	engine *RisorEngine
	code   *compiler.Code
}

func (s *RisorScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	combinedGlobals := make(map[string]any)
	for name, value := range s.engine.globals {
		combinedGlobals[name] = value
	}
	for name, value := range globals {
		combinedGlobals[name] = value
	}
	value, err := risor.EvalCode(ctx, s.code, risor.WithGlobals(combinedGlobals))
	if err != nil {
		return nil, err
	}
	return &RisorValue{obj: value}, nil
}

// RisorEngine compiles scene source against a fixed set of global names.
// Globals passed at evaluation time override the engine defaults, which is
// how the worker binds its live scene table into each run.
type RisorEngine struct {
	globals map[string]any
}

func NewRisorEngine(globals map[string]any) *RisorEngine {
	return &RisorEngine{globals: globals}
}

func (e *RisorEngine) Compile(ctx context.Context, code string) (Script, error) {
	ast, err := parser.Parse(ctx, code)
	if err != nil {
		return nil, err
	}

	var globalNames []string
	for name := range e.globals {
		globalNames = append(globalNames, name)
	}
	sort.Strings(globalNames)

	compiledCode, err := compiler.Compile(ast, compiler.WithGlobalNames(globalNames))
	if err != nil {
		return nil, err
	}
	return &RisorScript{engine: e, code: compiledCode}, nil
}

// RisorValue adapts a Risor object to the Value interface.
type RisorValue struct {
	obj object.Object
}

func (value *RisorValue) Value() any {
	return RisorToGo(value.obj)
}

func (value *RisorValue) IsTruthy() bool {
	switch obj := value.obj.(type) {
	case *object.Bool:
		return obj.Value()
	case *object.Int:
		return obj.Value() != 0
	case *object.Float:
		return obj.Value() != 0.0
	case *object.List:
		return len(obj.Value()) > 0
	case *object.Map:
		return len(obj.Value()) > 0
	case *object.String:
		val := obj.Value()
		return val != "" && strings.ToLower(val) != "false"
	default:
		return obj.IsTruthy()
	}
}

func (value *RisorValue) String() string {
	switch v := value.obj.(type) {
	case *object.String:
		return v.Value()
	case *object.Int:
		return fmt.Sprintf("%d", v.Value())
	case *object.Float:
		return fmt.Sprintf("%g", v.Value())
	case *object.Bool:
		return fmt.Sprintf("%t", v.Value())
	case *object.Time:
		return v.Value().Format(time.RFC3339)
	case *object.NilType:
		return ""
	default:
		return v.Inspect()
	}
}

// DefaultSceneGlobals returns the global environment scene scripts compile
// against: the full Risor builtin set plus a placeholder "scene" table that
// the worker replaces with live state on every evaluation.
func DefaultSceneGlobals() map[string]any {
	globals := map[string]any{}
	for name, value := range all.Builtins() {
		globals[name] = value
	}
	globals["scene"] = object.NewMap(map[string]object.Object{})
	return globals
}
