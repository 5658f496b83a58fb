package plan

import (
	"strconv"
	"strings"
)

// Comparator selects how a Sense compares a reading against its literal.
// The numeric values match the comparator codes used on the telemetry wire.
type Comparator uint8

const (
	Equal Comparator = iota
	NotEqual
	GreaterThan
	LessThan
	AlwaysTrue
	AlwaysFalse
)

var comparatorCodes = [...]string{"EQ", "NE", "GT", "LT", "TR", "FL"}

// Code returns the two-letter wire mnemonic for the comparator.
func (c Comparator) Code() string {
	if int(c) < len(comparatorCodes) {
		return comparatorCodes[c]
	}
	return strconv.Itoa(int(c))
}

// String returns the comparator's wire mnemonic.
func (c Comparator) String() string {
	return c.Code()
}

// ComparatorFromCode maps a numeric wire code to a Comparator. Codes outside
// 0..5 are reported as not ok.
func ComparatorFromCode(code int) (Comparator, bool) {
	if code < 0 || code >= len(comparatorCodes) {
		return 0, false
	}
	return Comparator(code), true
}

// ParseComparator parses a comparator token as written in plan documents.
// Symbolic and mnemonic forms are accepted, mnemonics case-insensitively.
// A blank token means Equal.
func ParseComparator(token string) (Comparator, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "", "=", "==", "eq":
		return Equal, nil
	case "!=", "<>", "ne":
		return NotEqual, nil
	case ">", "gt":
		return GreaterThan, nil
	case "<", "lt":
		return LessThan, nil
	case "true", "tr":
		return AlwaysTrue, nil
	case "false", "fl":
		return AlwaysFalse, nil
	}
	return 0, NewError("ParseComparator").Context(token).Cause(ErrUnknownComparator)
}

// Sense is an atomic guard condition: a named externally evaluated
// predicate compared against a literal.
type Sense struct {
	Name       string
	Comparator Comparator
	Value      string
}

// NewSense builds a Sense from its document attributes. An unrecognized
// comparator token is an error for this Sense only.
func NewSense(name, comparatorToken, valueText string) (Sense, error) {
	cmp, err := ParseComparator(comparatorToken)
	if err != nil {
		return Sense{}, NewError("NewSense").Name(name).Context(comparatorToken).Cause(ErrUnknownComparator)
	}
	return Sense{Name: name, Comparator: cmp, Value: valueText}, nil
}

// String renders the sense in "name CMP value" form.
func (s Sense) String() string {
	return s.Name + " " + s.Comparator.Code() + " " + s.Value
}

// Evaluate compares a reading against the sense's literal. Both sides are
// compared numerically when they parse as numbers; otherwise equality
// comparators fall back to string comparison and ordering comparators fail.
func (s Sense) Evaluate(reading string) bool {
	switch s.Comparator {
	case AlwaysTrue:
		return true
	case AlwaysFalse:
		return false
	}

	lhs, lerr := strconv.ParseFloat(strings.TrimSpace(reading), 64)
	rhs, rerr := strconv.ParseFloat(strings.TrimSpace(s.Value), 64)
	numeric := lerr == nil && rerr == nil

	switch s.Comparator {
	case Equal:
		if numeric {
			return lhs == rhs
		}
		return reading == s.Value
	case NotEqual:
		if numeric {
			return lhs != rhs
		}
		return reading != s.Value
	case GreaterThan:
		return numeric && lhs > rhs
	case LessThan:
		return numeric && lhs < rhs
	}
	return false
}

// Guard is a conjunction of senses. An empty guard is always satisfied.
type Guard []Sense

// Satisfied reports whether every sense holds for the readings returned by
// lookup. A sense with no reading fails unless it is AlwaysTrue.
func (g Guard) Satisfied(lookup func(name string) (string, bool)) bool {
	for _, s := range g {
		reading, ok := lookup(s.Name)
		if !ok && s.Comparator != AlwaysTrue {
			return false
		}
		if !s.Evaluate(reading) {
			return false
		}
	}
	return true
}
