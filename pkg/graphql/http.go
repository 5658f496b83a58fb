package graphql

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"
)

// GraphQLRequest represents a GraphQL HTTP request
type GraphQLRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// GraphQLResponse represents a GraphQL HTTP response
type GraphQLResponse struct {
	Data   any            `json:"data,omitempty"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// GraphQLError represents a GraphQL error
type GraphQLError struct {
	Message string `json:"message"`
}

// GraphQLHandler handles GraphQL HTTP requests
type GraphQLHandler struct {
	schema   graphql.Schema
	maxDepth int
}

// NewGraphQLHandler creates a handler that enforces DefaultMaxDepth.
func NewGraphQLHandler(schema graphql.Schema) *GraphQLHandler {
	return &GraphQLHandler{
		schema:   schema,
		maxDepth: DefaultMaxDepth,
	}
}

// WithMaxDepth replaces the depth limit; zero disables it.
func (h *GraphQLHandler) WithMaxDepth(maxDepth int) *GraphQLHandler {
	h.maxDepth = maxDepth
	return h
}

// ServeHTTP accepts POSTed JSON requests and GET requests carrying the
// query in the "query" parameter.
func (h *GraphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "application/json")

	var req GraphQLRequest
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet:
		req.Query = r.URL.Query().Get("query")
		if req.Query == "" {
			http.Error(w, "Missing query", http.StatusBadRequest)
			return
		}
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := ExecuteQueryWithVariables(r.Context(), req.Query, h.schema, req.Variables, h.maxDepth)

	response := GraphQLResponse{
		Data: result.Data,
	}
	if result.HasErrors() {
		response.Errors = make([]GraphQLError, len(result.Errors))
		for i, err := range result.Errors {
			response.Errors[i] = GraphQLError{Message: err.Message}
		}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
