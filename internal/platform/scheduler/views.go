package scheduler

import "sync"

// Handle is an owned, releasable rendered view. Releasing a handle frees
// whatever the renderer allocated for it; releasing twice is harmless.
type Handle interface {
	Release()
}

// Renderer materializes computed analytics into a named view. A successful
// Render replaces the live view; a failed Render must leave the previous
// view untouched.
type Renderer interface {
	Render(view string, data interface{}) (Handle, error)
}

// ViewSet owns one handle per view name and guarantees that every handle is
// released exactly once: the previous handle for a view is released as soon
// as its replacement has rendered, so view instances never stack up across
// refresh cycles.
type ViewSet struct {
	renderer Renderer

	mu    sync.Mutex
	slots map[string]Handle
}

func NewViewSet(renderer Renderer) *ViewSet {
	return &ViewSet{
		renderer: renderer,
		slots:    make(map[string]Handle),
	}
}

// Render draws data into the named view. On failure the prior handle stays
// in its slot and the previous render remains visible.
func (vs *ViewSet) Render(view string, data interface{}) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	handle, err := vs.renderer.Render(view, data)
	if err != nil {
		return err
	}

	if old, ok := vs.slots[view]; ok && old != nil {
		old.Release()
	}
	vs.slots[view] = handle
	return nil
}

// Release frees every held handle. Called on session teardown.
func (vs *ViewSet) Release() {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	for view, handle := range vs.slots {
		if handle != nil {
			handle.Release()
		}
		delete(vs.slots, view)
	}
}

// Views returns the names of views currently holding a rendered handle.
func (vs *ViewSet) Views() []string {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	views := make([]string, 0, len(vs.slots))
	for view := range vs.slots {
		views = append(views, view)
	}
	return views
}
