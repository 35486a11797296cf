package script

import (
	"testing"

	"github.com/risor-io/risor/object"
	"github.com/stretchr/testify/require"
)

func TestRisorToGo(t *testing.T) {
	obj := object.NewMap(map[string]object.Object{
		"name":  object.NewString("eq_1"),
		"size":  object.NewInt(48),
		"x":     object.NewFloat(1.5),
		"shown": object.NewBool(true),
		"tags":  object.NewList([]object.Object{object.NewString("a"), object.NewInt(2)}),
		"empty": object.Nil,
	})

	value := RisorToGo(obj).(map[string]any)
	require.Equal(t, "eq_1", value["name"])
	require.Equal(t, int64(48), value["size"])
	require.Equal(t, 1.5, value["x"])
	require.Equal(t, true, value["shown"])
	require.Equal(t, []any{"a", int64(2)}, value["tags"])
	require.Nil(t, value["empty"])
}

func TestRisorToGoDeepCopies(t *testing.T) {
	inner := object.NewList([]object.Object{object.NewInt(1)})
	outer := object.NewMap(map[string]object.Object{"items": inner})

	value := RisorToGo(outer).(map[string]any)
	items := value["items"].([]any)
	require.Equal(t, int64(1), items[0])

	// Mutating the converted copy leaves the VM object untouched.
	items[0] = int64(99)
	require.Equal(t, int64(1), RisorToGo(inner).([]any)[0])
}

func TestGoToRisorRoundTrip(t *testing.T) {
	state := map[string]any{
		"name": "scene_1",
		"size": int64(48),
		"x":    -3.25,
		"ok":   false,
		"tags": []any{"a", int64(2), nil},
		"nested": map[string]any{
			"inner": []any{1.0, 2.0},
		},
	}

	obj, err := GoToRisor(state)
	require.NoError(t, err)
	require.Equal(t, state, RisorToGo(obj))
}

func TestGoToRisorUnsupportedType(t *testing.T) {
	_, err := GoToRisor(struct{ X int }{X: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported snapshot value type")

	_, err = GoToRisor(map[string]any{"bad": make(chan int)})
	require.Error(t, err)
}
