package plan

import (
	"sync"
	"sync/atomic"
)

// Registry is the process-wide catalog of behavior-graph elements. It holds
// the current published Graph; readers take that snapshot without locking,
// while loads build a private Graph and swap it in when complete. Loads are
// serialized with each other.
type Registry struct {
	current    atomic.Pointer[Graph]
	generation atomic.Uint64
	loadMu     sync.Mutex
}

// NewRegistry creates a registry holding an empty published graph.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := NewGraph()
	empty.seal(0)
	r.current.Store(empty)
	return r
}

// Current returns the published graph snapshot.
func (r *Registry) Current() *Graph {
	return r.current.Load()
}

// Generation returns the number of graphs published so far.
func (r *Registry) Generation() uint64 {
	return r.generation.Load()
}

// Find looks up an element in the current snapshot.
func (r *Registry) Find(c Category, name string) (Element, bool) {
	return r.Current().Find(c, name)
}

// All enumerates a category of the current snapshot.
func (r *Registry) All(c Category) []Element {
	return r.Current().All(c)
}

// Load builds a new graph with build and publishes it if build succeeds.
// On failure the previous snapshot stays current and the partially built
// graph is returned for inspection alongside the error.
func (r *Registry) Load(build func(g *Graph) error) (*Graph, error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	g := NewGraph()
	if err := build(g); err != nil {
		return g, err
	}
	r.publishLocked(g)
	return g, nil
}

// Publish makes g the current snapshot and returns its generation. g must
// not be modified by the caller afterwards.
func (r *Registry) Publish(g *Graph) (uint64, error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if g.sealed {
		return 0, NewError("Publish").Cause(ErrGraphSealed)
	}
	return r.publishLocked(g), nil
}

func (r *Registry) publishLocked(g *Graph) uint64 {
	gen := r.generation.Add(1)
	g.seal(gen)
	r.current.Store(g)
	return gen
}
