// Package scene holds the composer's scene model: the tracked objects and
// animation steps a scene is built from, loadable from a YAML definition,
// plus generation of worker script source from that model.
package scene

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ObjectType identifies what kind of renderable an object is.
type ObjectType string

const (
	// ObjectMathTex is a LaTeX math expression. The only type the composer
	// places today; shapes follow once the canvas tools land.
	ObjectMathTex ObjectType = "mathtex"
)

// Animation type names, matching the rendering engine's vocabulary.
const (
	AnimFadeIn       = "FadeIn"
	AnimFadeOut      = "FadeOut"
	AnimWrite        = "Write"
	AnimShowCreation = "ShowCreation"
	AnimAdd          = "Add"
	AnimWait         = "Wait"
)

const (
	DefaultFontSize   = 48
	DefaultDuration   = 1.0
	DefaultEasing     = "smooth"
	DefaultColor      = "#FFFFFF"
	DefaultBackground = "#000000"
)

var animTypes = map[string]bool{
	AnimFadeIn:       true,
	AnimFadeOut:      true,
	AnimWrite:        true,
	AnimShowCreation: true,
	AnimAdd:          true,
	AnimWait:         true,
}

var (
	nameRe  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	colorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// Object is one tracked object on the canvas.
type Object struct {
	Name     string     `yaml:"name"`
	Type     ObjectType `yaml:"type"`
	Latex    string     `yaml:"latex"`
	Color    string     `yaml:"color,omitempty"`
	FontSize int        `yaml:"font_size,omitempty"`
	X        float64    `yaml:"x,omitempty"` // scene units, origin at center
	Y        float64    `yaml:"y,omitempty"` // scene units, positive up
}

// Animation is one step in the scene's animation list.
type Animation struct {
	Target   string  `yaml:"target,omitempty"` // empty for Wait
	Type     string  `yaml:"type"`
	Duration float64 `yaml:"duration,omitempty"` // seconds
	Easing   string  `yaml:"easing,omitempty"`
}

// Scene is a complete scene definition: objects plus the ordered animation
// steps played over them.
type Scene struct {
	Name       string       `yaml:"name"`
	Background string       `yaml:"background,omitempty"`
	Objects    []*Object    `yaml:"objects"`
	Animations []*Animation `yaml:"animations,omitempty"`
}

// Load reads a YAML scene definition, applies defaults, and validates it.
func Load(r io.Reader) (*Scene, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene definition: %w", err)
	}
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scene definition: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads a YAML scene definition from a file.
func LoadFile(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (s *Scene) applyDefaults() {
	if s.Background == "" {
		s.Background = DefaultBackground
	}
	for _, obj := range s.Objects {
		if obj.Type == "" {
			obj.Type = ObjectMathTex
		}
		if obj.Color == "" {
			obj.Color = DefaultColor
		}
		if obj.FontSize == 0 {
			obj.FontSize = DefaultFontSize
		}
	}
	for _, anim := range s.Animations {
		if anim.Duration == 0 {
			anim.Duration = DefaultDuration
		}
		if anim.Easing == "" {
			anim.Easing = DefaultEasing
		}
	}
}

// Validate checks names, colors, animation types, and animation targets.
func (s *Scene) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scene name required")
	}
	if !colorRe.MatchString(s.Background) {
		return fmt.Errorf("invalid background color %q", s.Background)
	}
	names := make(map[string]bool, len(s.Objects))
	for _, obj := range s.Objects {
		if !nameRe.MatchString(obj.Name) {
			return fmt.Errorf("invalid object name %q", obj.Name)
		}
		if names[obj.Name] {
			return fmt.Errorf("duplicate object name %q", obj.Name)
		}
		names[obj.Name] = true
		if obj.Type != ObjectMathTex {
			return fmt.Errorf("object %q: unsupported type %q", obj.Name, obj.Type)
		}
		if obj.Latex == "" {
			return fmt.Errorf("object %q: latex required", obj.Name)
		}
		if !colorRe.MatchString(obj.Color) {
			return fmt.Errorf("object %q: invalid color %q", obj.Name, obj.Color)
		}
	}
	for i, anim := range s.Animations {
		if !animTypes[anim.Type] {
			return fmt.Errorf("animation %d: unknown type %q", i, anim.Type)
		}
		if anim.Type == AnimWait {
			if anim.Target != "" {
				return fmt.Errorf("animation %d: %s takes no target", i, AnimWait)
			}
			continue
		}
		if !names[anim.Target] {
			return fmt.Errorf("animation %d: unknown target %q", i, anim.Target)
		}
	}
	return nil
}
