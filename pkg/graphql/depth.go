package graphql

import (
	"fmt"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
)

// DefaultMaxDepth bounds how far a query may follow triggered/children
// links. Plans are small but the links form cycles a query could chase.
const DefaultMaxDepth = 8

// calculateQueryDepth calculates the maximum depth of a GraphQL query
func calculateQueryDepth(document *ast.Document) int {
	fragments := make(map[string]*ast.FragmentDefinition)
	for _, definition := range document.Definitions {
		if frag, ok := definition.(*ast.FragmentDefinition); ok {
			fragments[frag.Name.Value] = frag
		}
	}

	maxDepth := 0
	for _, definition := range document.Definitions {
		if def, ok := definition.(*ast.OperationDefinition); ok {
			depth := selectionSetDepth(def.SelectionSet, 1, fragments, map[string]bool{})
			if depth > maxDepth {
				maxDepth = depth
			}
		}
	}

	return maxDepth
}

// selectionSetDepth recursively calculates the depth of a selection set.
// Fragment spreads are expanded; visiting tracks spreads on the current
// path so a self-referencing fragment terminates.
func selectionSetDepth(selectionSet *ast.SelectionSet, currentDepth int, fragments map[string]*ast.FragmentDefinition, visiting map[string]bool) int {
	if selectionSet == nil || len(selectionSet.Selections) == 0 {
		return currentDepth
	}

	maxDepth := currentDepth

	for _, selection := range selectionSet.Selections {
		var depth int
		switch sel := selection.(type) {
		case *ast.Field:
			if strings.HasPrefix(sel.Name.Value, "__") || sel.SelectionSet == nil {
				continue
			}
			depth = selectionSetDepth(sel.SelectionSet, currentDepth+1, fragments, visiting)

		case *ast.InlineFragment:
			depth = selectionSetDepth(sel.SelectionSet, currentDepth, fragments, visiting)

		case *ast.FragmentSpread:
			name := sel.Name.Value
			frag, ok := fragments[name]
			if !ok || visiting[name] {
				continue
			}
			visiting[name] = true
			depth = selectionSetDepth(frag.SelectionSet, currentDepth, fragments, visiting)
			delete(visiting, name)
		}
		if depth > maxDepth {
			maxDepth = depth
		}
	}

	return maxDepth
}

// ValidateQueryDepth validates a query against the depth limit
func ValidateQueryDepth(query string, maxDepth int) error {
	document, err := parser.Parse(parser.ParseParams{
		Source: query,
	})
	if err != nil {
		return fmt.Errorf("failed to parse query: %w", err)
	}

	if queryDepth := calculateQueryDepth(document); queryDepth > maxDepth {
		return fmt.Errorf("query depth %d exceeds maximum allowed depth %d", queryDepth, maxDepth)
	}

	return nil
}
