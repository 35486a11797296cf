package scene

import (
	"fmt"
	"strconv"
	"strings"
)

// Code generation from the scene model into worker script source. The
// generated vocabulary is deliberately small: object declarations into the
// scene table, then one "played" entry appended per animation step. The
// worker's scripting engine executes this source against its live state.

// BaseSource generates the scene-construction source: globals and object
// declarations, with no animation steps played. This is the state the
// controller checkpoints between steps.
func BaseSource(s *Scene) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scene[\"name\"] = %s\n", strconv.Quote(s.Name))
	fmt.Fprintf(&b, "scene[\"background\"] = %s\n", strconv.Quote(s.Background))
	b.WriteString("objects := {}\n")
	for _, obj := range s.Objects {
		fmt.Fprintf(&b, "objects[%s] = %s\n", strconv.Quote(obj.Name), objectLiteral(obj))
	}
	b.WriteString("scene[\"objects\"] = objects\n")
	b.WriteString("scene[\"played\"] = []\n")
	return b.String()
}

// Source generates the full scene source: construction plus every animation
// step, for the "full rebuild" preview path.
func Source(s *Scene) string {
	var b strings.Builder
	b.WriteString(BaseSource(s))
	for i := range s.Animations {
		b.WriteString(stepSource(s, i))
		b.WriteString("\n")
	}
	return b.String()
}

// StepSource generates the fragment that plays animation step index against
// live state.
func StepSource(s *Scene, index int) (string, error) {
	if index < 0 || index >= len(s.Animations) {
		return "", fmt.Errorf("animation step %d out of range", index)
	}
	return stepSource(s, index), nil
}

// stepSource assumes index is in range.
func stepSource(s *Scene, index int) string {
	return fmt.Sprintf("scene[\"played\"] = scene[\"played\"] + [%s]",
		animationLiteral(s.Animations[index]))
}

// CheckpointKey names the checkpoint taken before animation step index
// plays. Marking these between steps is what makes "replay one step"
// previews possible without a full rebuild.
func CheckpointKey(index int) string {
	return fmt.Sprintf("step_%d", index)
}

// ReplayPlan describes an incremental preview: the checkpoint to restore
// and the fragment to run against the restored state.
type ReplayPlan struct {
	Checkpoint string
	Code       string
}

// LastStepPlan returns the plan for replaying the scene's final animation
// step, the common case while an animation is being tweaked.
func LastStepPlan(s *Scene) (*ReplayPlan, error) {
	if len(s.Animations) == 0 {
		return nil, fmt.Errorf("scene %q has no animations", s.Name)
	}
	last := len(s.Animations) - 1
	code, err := StepSource(s, last)
	if err != nil {
		return nil, err
	}
	return &ReplayPlan{Checkpoint: CheckpointKey(last), Code: code}, nil
}

// IncrementalPlan decides whether next can be previewed by replaying only its
// final animation step against prev's checkpoints. That is only sound when
// the construction source and every earlier step are unchanged; any other
// edit needs a full rebuild, because the restored checkpoint would carry
// stale state.
func IncrementalPlan(prev, next *Scene) (*ReplayPlan, bool) {
	if prev == nil || len(next.Animations) == 0 ||
		len(next.Animations) != len(prev.Animations) {
		return nil, false
	}
	if BaseSource(prev) != BaseSource(next) {
		return nil, false
	}
	last := len(next.Animations) - 1
	for i := 0; i < last; i++ {
		if stepSource(prev, i) != stepSource(next, i) {
			return nil, false
		}
	}
	return &ReplayPlan{Checkpoint: CheckpointKey(last), Code: stepSource(next, last)}, true
}

func objectLiteral(obj *Object) string {
	return fmt.Sprintf(
		"{\"type\": %s, \"latex\": %s, \"color\": %s, \"font_size\": %d, \"x\": %s, \"y\": %s}",
		strconv.Quote(string(obj.Type)),
		strconv.Quote(obj.Latex),
		strconv.Quote(obj.Color),
		obj.FontSize,
		formatFloat(obj.X),
		formatFloat(obj.Y),
	)
}

func animationLiteral(anim *Animation) string {
	if anim.Type == AnimWait {
		return fmt.Sprintf("{\"type\": %s, \"duration\": %s}",
			strconv.Quote(anim.Type), formatFloat(anim.Duration))
	}
	return fmt.Sprintf("{\"target\": %s, \"type\": %s, \"duration\": %s, \"easing\": %s}",
		strconv.Quote(anim.Target),
		strconv.Quote(anim.Type),
		formatFloat(anim.Duration),
		strconv.Quote(anim.Easing),
	)
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
