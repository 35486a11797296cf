package worker

// Display is the worker's rendering surface. The actual drawing of scene
// state belongs to the rendering engine; the worker only tells the surface
// when state changed and releases it on shutdown.
type Display interface {
	// Refresh is called after every command that changed live state, with a
	// snapshot of the new state.
	Refresh(state map[string]any) error

	// Close releases the surface.
	Close() error
}

// NullDisplay discards all display updates. Used headless and in tests.
type NullDisplay struct{}

func NewNullDisplay() *NullDisplay {
	return &NullDisplay{}
}

func (d *NullDisplay) Refresh(state map[string]any) error {
	return nil
}

func (d *NullDisplay) Close() error {
	return nil
}
