package plan

import (
	"sync/atomic"
)

// Category identifies one of the six behavior-graph node kinds.
type Category uint8

const (
	CategoryAction Category = iota + 1
	CategoryActionPattern
	CategoryCompetenceElement
	CategoryCompetence
	CategoryDriveElement
	CategoryDriveCollection

	numCategories = int(CategoryDriveCollection) + 1
)

// Categories lists every valid category in declaration order.
var Categories = []Category{
	CategoryAction,
	CategoryActionPattern,
	CategoryCompetenceElement,
	CategoryCompetence,
	CategoryDriveElement,
	CategoryDriveCollection,
}

// String returns the category name as used in plan documents.
func (c Category) String() string {
	switch c {
	case CategoryAction:
		return "Action"
	case CategoryActionPattern:
		return "ActionPattern"
	case CategoryCompetenceElement:
		return "CompetenceElement"
	case CategoryCompetence:
		return "Competence"
	case CategoryDriveElement:
		return "DriveElement"
	case CategoryDriveCollection:
		return "DriveCollection"
	default:
		return "Unknown"
	}
}

// Valid reports whether c is one of the six categories.
func (c Category) Valid() bool {
	return c >= CategoryAction && c <= CategoryDriveCollection
}

// ParseCategory parses a category name as returned by String.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// CategoryFromCode maps a telemetry category code to a Category. Only A, AP,
// C, CE and D have a registry counterpart; APE (an action-pattern step) and
// everything else report not ok.
func CategoryFromCode(code string) (Category, bool) {
	switch code {
	case "A":
		return CategoryAction, true
	case "AP":
		return CategoryActionPattern, true
	case "C":
		return CategoryCompetence, true
	case "CE":
		return CategoryCompetenceElement, true
	case "D":
		return CategoryDriveCollection, true
	}
	return 0, false
}

// Ref is a non-owning handle to an element slot in a Graph's arena.
// The zero Ref refers to nothing.
type Ref struct {
	Category Category
	Index    int
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool {
	return r.Category == 0
}

// Element is the identity shared by all six node kinds: a name and the
// dirty flag set by telemetry and cleared by the presentation layer.
type Element interface {
	Name() string
	Category() Category
	Dirty() bool
	MarkDirty()
	// ClearDirty clears the flag and reports whether it was set.
	ClearDirty() bool
}

type header struct {
	name  string
	dirty atomic.Bool
}

func (h *header) Name() string     { return h.name }
func (h *header) Dirty() bool      { return h.dirty.Load() }
func (h *header) MarkDirty()       { h.dirty.Store(true) }
func (h *header) ClearDirty() bool { return h.dirty.Swap(false) }

// ActionEvent is a primitive action. Its name is unique across the graph.
type ActionEvent struct {
	header
}

// NewActionEvent returns an ActionEvent that is not registered in any graph.
func NewActionEvent(name string) *ActionEvent {
	return &ActionEvent{header: header{name: name}}
}

func (*ActionEvent) Category() Category { return CategoryAction }

// ActionPattern is a fixed sequence of actions. The order is recorded for
// the external runtime and never interpreted here.
type ActionPattern struct {
	header
	Actions []Ref
}

func NewActionPattern(name string, actions []Ref) *ActionPattern {
	return &ActionPattern{header: header{name: name}, Actions: actions}
}

func (*ActionPattern) Category() Category { return CategoryActionPattern }

// CompetenceElement fires Triggered when its guard holds. Triggers holds the
// raw target name from the document until the link pass resolves it.
type CompetenceElement struct {
	header
	Guard     Guard
	Triggers  string
	Triggered Ref
}

func NewCompetenceElement(name string, guard Guard, triggers string) *CompetenceElement {
	return &CompetenceElement{header: header{name: name}, Guard: guard, Triggers: triggers}
}

func (*CompetenceElement) Category() Category { return CategoryCompetenceElement }

// Competence is a priority-ordered list of competence elements; the first
// element whose guard holds wins at runtime.
type Competence struct {
	header
	Goal     Guard
	Elements []Ref
}

func NewCompetence(name string, goal Guard, elements []Ref) *Competence {
	return &Competence{header: header{name: name}, Goal: goal, Elements: elements}
}

func (*Competence) Category() Category { return CategoryCompetence }

// DefaultCheckTime is the poll interval, in seconds, of a DriveElement
// declared without one.
const DefaultCheckTime = 1.0

// DriveElement is a periodically checked top-level drive entry.
type DriveElement struct {
	header
	Guard     Guard
	Triggers  string
	Triggered Ref
	CheckTime float64
}

func NewDriveElement(name string, guard Guard, triggered Ref, triggers string, checkTime float64) *DriveElement {
	return &DriveElement{
		header:    header{name: name},
		Guard:     guard,
		Triggers:  triggers,
		Triggered: triggered,
		CheckTime: checkTime,
	}
}

func (*DriveElement) Category() Category { return CategoryDriveElement }

// DriveCollection is the top-level container of drive elements.
type DriveCollection struct {
	header
	Enabling Guard
	Elements []Ref
}

func NewDriveCollection(name string, enabling Guard, elements []Ref) *DriveCollection {
	return &DriveCollection{header: header{name: name}, Enabling: enabling, Elements: elements}
}

func (*DriveCollection) Category() Category { return CategoryDriveCollection }
