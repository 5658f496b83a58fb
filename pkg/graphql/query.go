package graphql

import (
	"context"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
)

// ExecuteQuery executes a GraphQL query against a schema
func ExecuteQuery(query string, schema graphql.Schema) *graphql.Result {
	return ExecuteQueryWithVariables(context.Background(), query, schema, nil, 0)
}

// ExecuteQueryWithVariables executes a GraphQL query with variables. A
// positive maxDepth rejects deeper queries before they run.
func ExecuteQueryWithVariables(ctx context.Context, query string, schema graphql.Schema, variables map[string]any, maxDepth int) *graphql.Result {
	if maxDepth > 0 {
		if err := ValidateQueryDepth(query, maxDepth); err != nil {
			return &graphql.Result{
				Errors: []gqlerrors.FormattedError{gqlerrors.FormatError(err)},
			}
		}
	}

	return graphql.Do(graphql.Params{
		Schema:         schema,
		RequestString:  query,
		VariableValues: variables,
		Context:        ctx,
	})
}
