package plan

// Graph is one loaded behavior graph: a dense per-category arena of
// elements plus a name index per category. A Graph is built by a single
// loader and becomes read-only once published to a Registry; only the
// elements' dirty flags change afterwards.
type Graph struct {
	elements    [numCategories][]Element
	index       [numCategories]map[string]int
	synthesized int
	sealed      bool
	generation  uint64
}

// NewGraph creates an empty, unpublished graph.
func NewGraph() *Graph {
	g := &Graph{}
	for _, c := range Categories {
		g.index[c] = make(map[string]int)
	}
	return g
}

// Generation returns the registry generation this graph was published as,
// or zero if it was never published.
func (g *Graph) Generation() uint64 {
	return g.generation
}

// Sealed reports whether the graph has been published.
func (g *Graph) Sealed() bool {
	return g.sealed
}

// Find looks up an element by category and name. It never fails loudly.
func (g *Graph) Find(c Category, name string) (Element, bool) {
	if !c.Valid() {
		return nil, false
	}
	idx, ok := g.index[c][name]
	if !ok {
		return nil, false
	}
	return g.elements[c][idx], true
}

// RefOf returns the handle of the named element.
func (g *Graph) RefOf(c Category, name string) (Ref, bool) {
	if !c.Valid() {
		return Ref{}, false
	}
	idx, ok := g.index[c][name]
	if !ok {
		return Ref{}, false
	}
	return Ref{Category: c, Index: idx}, true
}

// Resolve returns the element a handle points at.
func (g *Graph) Resolve(r Ref) (Element, bool) {
	if !r.Category.Valid() || r.Index < 0 || r.Index >= len(g.elements[r.Category]) {
		return nil, false
	}
	return g.elements[r.Category][r.Index], true
}

// ResolveAll resolves a list of handles, skipping any that dangle.
func (g *Graph) ResolveAll(refs []Ref) []Element {
	out := make([]Element, 0, len(refs))
	for _, r := range refs {
		if e, ok := g.Resolve(r); ok {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) FindAction(name string) (*ActionEvent, bool) {
	e, ok := g.Find(CategoryAction, name)
	if !ok {
		return nil, false
	}
	return e.(*ActionEvent), true
}

func (g *Graph) FindActionPattern(name string) (*ActionPattern, bool) {
	e, ok := g.Find(CategoryActionPattern, name)
	if !ok {
		return nil, false
	}
	return e.(*ActionPattern), true
}

func (g *Graph) FindCompetenceElement(name string) (*CompetenceElement, bool) {
	e, ok := g.Find(CategoryCompetenceElement, name)
	if !ok {
		return nil, false
	}
	return e.(*CompetenceElement), true
}

func (g *Graph) FindCompetence(name string) (*Competence, bool) {
	e, ok := g.Find(CategoryCompetence, name)
	if !ok {
		return nil, false
	}
	return e.(*Competence), true
}

func (g *Graph) FindDriveElement(name string) (*DriveElement, bool) {
	e, ok := g.Find(CategoryDriveElement, name)
	if !ok {
		return nil, false
	}
	return e.(*DriveElement), true
}

func (g *Graph) FindDriveCollection(name string) (*DriveCollection, bool) {
	e, ok := g.Find(CategoryDriveCollection, name)
	if !ok {
		return nil, false
	}
	return e.(*DriveCollection), true
}

// All returns the elements of a category in arena order.
func (g *Graph) All(c Category) []Element {
	if !c.Valid() {
		return nil
	}
	out := make([]Element, len(g.elements[c]))
	copy(out, g.elements[c])
	return out
}

// Len returns the number of elements in a category.
func (g *Graph) Len(c Category) int {
	if !c.Valid() {
		return 0
	}
	return len(g.elements[c])
}

// Counts returns the element count of every category.
func (g *Graph) Counts() map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		counts[c] = len(g.elements[c])
	}
	return counts
}

// Synthesized returns how many actions were created implicitly because a
// trigger named nothing else.
func (g *Graph) Synthesized() int {
	return g.synthesized
}

// DirtyElements returns every element whose dirty flag is currently set.
func (g *Graph) DirtyElements() []Element {
	var out []Element
	for _, c := range Categories {
		for _, e := range g.elements[c] {
			if e.Dirty() {
				out = append(out, e)
			}
		}
	}
	return out
}

// Add registers a fully formed element. A duplicate name in the same
// category replaces the earlier element in place, so existing handles see
// the newer one, and ErrDuplicateElement is returned alongside the handle.
func (g *Graph) Add(e Element) (Ref, error) {
	c := e.Category()
	if !c.Valid() {
		return Ref{}, NewError("Add").Name(e.Name()).Cause(ErrInvalidCategory)
	}
	if g.sealed {
		return Ref{}, NewError("Add").Element(c, e.Name()).Cause(ErrGraphSealed)
	}
	if idx, ok := g.index[c][e.Name()]; ok {
		g.elements[c][idx] = e
		return Ref{Category: c, Index: idx}, NewError("Add").Element(c, e.Name()).Cause(ErrDuplicateElement)
	}
	idx := len(g.elements[c])
	g.elements[c] = append(g.elements[c], e)
	g.index[c][e.Name()] = idx
	return Ref{Category: c, Index: idx}, nil
}

// CreateAction returns the action of that name, creating and registering
// it first if necessary. Repeated calls return the same element. On a
// published graph a missing action is returned detached, never registered.
func (g *Graph) CreateAction(name string) *ActionEvent {
	ref, _ := g.createAction(name)
	if ref.IsZero() {
		return NewActionEvent(name)
	}
	e, _ := g.Resolve(ref)
	return e.(*ActionEvent)
}

func (g *Graph) createAction(name string) (ref Ref, created bool) {
	if idx, ok := g.index[CategoryAction][name]; ok {
		return Ref{Category: CategoryAction, Index: idx}, false
	}
	if g.sealed {
		return Ref{}, false
	}
	ref, _ = g.Add(NewActionEvent(name))
	return ref, true
}

// ResolveTrigger resolves a trigger target name: an ActionPattern of that
// name wins, then a Competence, and otherwise the name is taken to be a
// primitive action and resolved through CreateAction. Changing this order
// changes which category wins when names collide.
func (g *Graph) ResolveTrigger(name string) Ref {
	if ref, ok := g.RefOf(CategoryActionPattern, name); ok {
		return ref
	}
	if ref, ok := g.RefOf(CategoryCompetence, name); ok {
		return ref
	}
	ref, created := g.createAction(name)
	if created {
		g.synthesized++
	}
	return ref
}

func (g *Graph) seal(generation uint64) {
	g.sealed = true
	g.generation = generation
}
