package script

import (
	"fmt"
	"time"

	"github.com/risor-io/risor/object"
)

// RisorToGo converts a Risor object to a plain Go value. Containers are
// rebuilt recursively, so the result shares no structure with the VM object
// graph. This is what makes checkpoint snapshots true deep copies.
func RisorToGo(obj object.Object) any {
	switch o := obj.(type) {
	case *object.String:
		return o.Value()

	case *object.Int:
		return o.Value()

	case *object.Float:
		return o.Value()

	case *object.Bool:
		return o.Value()

	case *object.Time:
		return o.Value()

	case *object.NilType:
		return nil

	case *object.List:
		var result []any
		for _, item := range o.Value() {
			result = append(result, RisorToGo(item))
		}
		return result

	case *object.Map:
		result := make(map[string]any)
		for key, value := range o.Value() {
			result[key] = RisorToGo(value)
		}
		return result

	case *object.Set:
		var result []any
		for _, item := range o.Value() {
			result = append(result, RisorToGo(item))
		}
		return result

	default:
		// Non-data values (functions, modules) degrade to their string
		// representation. Scene state is expected to hold plain data.
		return obj.Inspect()
	}
}

// GoToRisor converts a plain Go value back into a Risor object. It accepts
// exactly the shapes RisorToGo produces, so a snapshot always round-trips.
func GoToRisor(v any) (object.Object, error) {
	switch value := v.(type) {
	case nil:
		return object.Nil, nil

	case string:
		return object.NewString(value), nil

	case bool:
		return object.NewBool(value), nil

	case int:
		return object.NewInt(int64(value)), nil

	case int64:
		return object.NewInt(value), nil

	case float64:
		return object.NewFloat(value), nil

	case time.Time:
		return object.NewTime(value), nil

	case []any:
		items := make([]object.Object, 0, len(value))
		for _, item := range value {
			obj, err := GoToRisor(item)
			if err != nil {
				return nil, err
			}
			items = append(items, obj)
		}
		return object.NewList(items), nil

	case map[string]any:
		items := make(map[string]object.Object, len(value))
		for key, item := range value {
			obj, err := GoToRisor(item)
			if err != nil {
				return nil, err
			}
			items[key] = obj
		}
		return object.NewMap(items), nil

	default:
		return nil, fmt.Errorf("unsupported snapshot value type %T", v)
	}
}
