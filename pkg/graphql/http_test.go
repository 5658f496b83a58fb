package graphql

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) *GraphQLHandler {
	t.Helper()
	schema, err := GenerateSchema(testRegistry(t))
	require.NoError(t, err)
	return NewGraphQLHandler(schema)
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) GraphQLResponse {
	t.Helper()
	var response GraphQLResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	return response
}

func TestGraphQLHTTPHandlerPost(t *testing.T) {
	handler := newTestHandler(t)

	body, _ := json.Marshal(GraphQLRequest{
		Query:     `query($n: String!) { element(category: Competence, name: $n) { name } }`,
		Variables: map[string]any{"n": "Play"},
	})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	response := decodeResponse(t, rr)
	assert.Empty(t, response.Errors)
	assert.Equal(t, map[string]any{"element": map[string]any{"name": "Play"}}, response.Data)
}

func TestGraphQLHTTPHandlerGet(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape(`{ health }`), nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"health": "ok"}, decodeResponse(t, rr).Data)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/graphql", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGraphQLHTTPHandlerRejects(t *testing.T) {
	handler := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/graphql", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader([]byte("{not json"))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/graphql", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestGraphQLHTTPHandlerDepthLimit(t *testing.T) {
	handler := newTestHandler(t).WithMaxDepth(2)

	body, _ := json.Marshal(GraphQLRequest{
		Query: `{ elements(category: Competence) { children { name } } }`,
	})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body)))

	response := decodeResponse(t, rr)
	require.Len(t, response.Errors, 1)
	assert.Contains(t, response.Errors[0].Message, "exceeds maximum allowed depth")
}
