package telemetry

import (
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// Directive keywords.
const (
	KeywordPlanElement = "PELEM"
	KeywordRobotAction = "RACTION"
	KeywordRobotSense  = "RSENSE"
)

// Table maps the numeric IDs a device reports to the names declared by the
// session's command script. Inserting a name for an existing ID replaces
// the old mapping.
type Table struct {
	mu    sync.RWMutex
	names map[int]string
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{names: make(map[int]string)}
}

// Put maps id to name.
func (t *Table) Put(id int, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names[id] = name
}

// Name returns the name mapped to id. Empty names count as absent.
func (t *Table) Name(id int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.names[id]
	return name, ok && name != ""
}

// Len returns the number of mapped IDs.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}

// Snapshot returns a copy of the table.
func (t *Table) Snapshot() map[int]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int]string, len(t.names))
	for id, name := range t.names {
		out[id] = name
	}
	return out
}

// Tables are the three session-local ID tables.
type Tables struct {
	PlanElements *Table
	RobotActions *Table
	RobotSenses  *Table
}

// NewTables creates empty tables.
func NewTables() *Tables {
	return &Tables{
		PlanElements: NewTable(),
		RobotActions: NewTable(),
		RobotSenses:  NewTable(),
	}
}

// table returns the table a directive keyword writes to.
func (t *Tables) table(keyword string) *Table {
	switch keyword {
	case KeywordPlanElement:
		return t.PlanElements
	case KeywordRobotAction:
		return t.RobotActions
	case KeywordRobotSense:
		return t.RobotSenses
	}
	return nil
}

// Directive is a parsed "KEYWORD name=id" script line.
type Directive struct {
	Keyword string
	Name    string
	ID      int
}

// ParseDirective recognizes a directive line. ok is false when the line's
// first token is not a directive keyword; err is set when it is one but the
// "name=id" part is malformed.
func ParseDirective(line string) (d Directive, ok bool, err error) {
	line = strings.TrimSpace(line)
	keyword := line
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		keyword = line[:i]
	}
	if keyword != KeywordPlanElement && keyword != KeywordRobotAction && keyword != KeywordRobotSense {
		return Directive{}, false, nil
	}

	rest := strings.TrimSpace(line[len(keyword):])
	name, idText, found := strings.Cut(rest, "=")
	if !found || name == "" || strings.ContainsFunc(name, unicode.IsSpace) {
		return Directive{}, true, &LineError{Op: "directive", Line: line, Cause: ErrMalformedDirective}
	}
	// The id must follow "=" directly; " 9" is not a number.
	id, convErr := strconv.Atoi(idText)
	if convErr != nil {
		return Directive{}, true, &LineError{Op: "directive", Line: line, Cause: ErrMalformedDirective}
	}
	return Directive{Keyword: keyword, Name: name, ID: id}, true, nil
}

// Apply records d in the matching table.
func (t *Tables) Apply(d Directive) {
	if tbl := t.table(d.Keyword); tbl != nil {
		tbl.Put(d.ID, d.Name)
	}
}
