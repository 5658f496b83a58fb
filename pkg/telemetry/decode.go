package telemetry

import (
	"strconv"
	"strings"

	"github.com/dd0wney/posh-debugger/pkg/plan"
)

// ByeLine is the status line with which a device ends its session.
const ByeLine = "bye"

// LineKind classifies an inbound status line.
type LineKind int

const (
	KindOther      LineKind = iota // not decode-eligible, or an unrecognized type code
	KindDiagnostic                 // X and Y: device-internal telemetry
	KindReleaser                   // R: a sense evaluation
	KindLifecycle                  // E, S, P, F, Z, C: a plan element event
)

func (k LineKind) String() string {
	switch k {
	case KindDiagnostic:
		return "diagnostic"
	case KindReleaser:
		return "releaser"
	case KindLifecycle:
		return "lifecycle"
	}
	return "other"
}

// Decoded is the result of decoding one status line.
type Decoded struct {
	Line string // trimmed, with resolved names substituted
	Kind LineKind
	// Element is set for lifecycle lines whose element resolved; it has
	// already been marked dirty.
	Element plan.Element
	// Generation is the generation of the graph Element was found in.
	Generation uint64
	Err        error
}

// Decoder resolves the numeric IDs in status lines through a session's
// tables and marks the referenced behavior-graph elements dirty.
type Decoder struct {
	tables *Tables
	graph  func() *plan.Graph
}

// NewDecoder creates a decoder reading the graph snapshot returned by
// graph at each lookup.
func NewDecoder(tables *Tables, graph func() *plan.Graph) *Decoder {
	return &Decoder{tables: tables, graph: graph}
}

// Decode decodes one line. A line is eligible for decoding when it has at
// least four whitespace separated fields and its second field is a single
// character. A malformed numeric field abandons decoding of that line only
// and is reported in Err; the raw line is kept.
func (d *Decoder) Decode(line string) Decoded {
	out := Decoded{Line: strings.TrimSpace(line)}

	fields := strings.Fields(line)
	if len(fields) < 4 || len(fields[1]) != 1 {
		return out
	}

	switch fields[1] {
	case "X", "Y":
		out.Kind = KindDiagnostic
	case "R":
		out.Kind = KindReleaser
		out.Err = d.decodeReleaser(fields)
	case "E", "S", "P", "F", "Z", "C":
		out.Kind = KindLifecycle
		out.Element, out.Generation, out.Err = d.decodeLifecycle(fields)
	default:
		return out
	}

	if out.Err != nil {
		out.Err = &LineError{Op: out.Kind.String(), Line: out.Line, Cause: out.Err}
		return out
	}
	if out.Kind != KindDiagnostic {
		out.Line = strings.Join(fields, " ")
	}
	return out
}

// decodeReleaser substitutes the sense name for field 2 and the comparator
// name for field 3, in place.
func (d *Decoder) decodeReleaser(fields []string) error {
	senseID, err := strconv.Atoi(fields[2])
	if err != nil {
		return ErrMalformedTelemetryField
	}
	code, err := strconv.Atoi(fields[3])
	if err != nil {
		return ErrMalformedTelemetryField
	}

	if name, ok := d.tables.RobotSenses.Name(senseID); ok {
		fields[2] = name
	}
	// Codes outside the table are passed through unresolved.
	if c, ok := plan.ComparatorFromCode(code); ok {
		fields[3] = c.Code()
	}
	return nil
}

// decodeLifecycle substitutes the plan element name for field 3, in place,
// and marks the matching element dirty.
func (d *Decoder) decodeLifecycle(fields []string) (plan.Element, uint64, error) {
	id, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, 0, ErrMalformedTelemetryField
	}
	name, ok := d.tables.PlanElements.Name(id)
	if !ok {
		return nil, 0, nil
	}
	fields[3] = name

	// Lines flagged with a leading '*' and action pattern steps carry no
	// element of their own.
	if strings.HasPrefix(fields[0], "*") || strings.HasPrefix(fields[2], "APE") {
		return nil, 0, nil
	}

	g := d.graph()
	e := lookup(g, fields[2], name)
	if e == nil {
		return nil, 0, nil
	}
	e.MarkDirty()
	return e, g.Generation(), nil
}

// lookup finds the element a lifecycle line refers to. Actions and action
// patterns the graph does not know get a detached placeholder action, so
// the event still has a subject.
func lookup(g *plan.Graph, code, name string) plan.Element {
	c, ok := plan.CategoryFromCode(code)
	if !ok {
		return nil
	}
	if e, found := g.Find(c, name); found {
		return e
	}
	if c == plan.CategoryAction || c == plan.CategoryActionPattern {
		return plan.NewActionEvent(name)
	}
	return nil
}
