package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirasagi62/chopgrep/internal/chunker"
	"github.com/sirasagi62/chopgrep/internal/embedder"
	"github.com/sirasagi62/chopgrep/internal/ingest"
	"github.com/sirasagi62/chopgrep/internal/searcher"
	"github.com/sirasagi62/chopgrep/internal/store"
)

const testDim = 16

// setupServer wires the full pipeline over an in-memory store and the
// deterministic hash embedder.
func setupServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(":memory:", testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	emb := embedder.NewHashProvider(testDim, nil)
	logger := zerolog.Nop()
	sc := chunker.NewScanner(chunker.New(0, 0), chunker.ScanConfig{}, logger)
	ing := ingest.New(st, emb, sc, ingest.Config{}, logger)
	srch := searcher.New(st, emb)

	return NewServer(st, ing, srch)
}

// toolRequest builds a CallToolRequest with the given arguments
func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

// resultJSON unmarshals the text payload of a tool result
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

// writeTestTree creates a small indexable source tree
func writeTestTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	source := `package demo

// Greet returns a friendly greeting for the given name.
func Greet(name string) string {
	return "hello " + name
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.go"), []byte(source), 0644))
	return dir
}

func TestHandleIndexDirectory(t *testing.T) {
	s := setupServer(t)
	dir := writeTestTree(t)

	result, err := s.handleIndexDirectory(context.Background(), toolRequest(map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, true, payload["indexed"])
	assert.Equal(t, float64(1), payload["files"])
	assert.Greater(t, payload["inserted"], float64(0))
}

func TestHandleIndexDirectory_MissingPath(t *testing.T) {
	s := setupServer(t)

	_, err := s.handleIndexDirectory(context.Background(), toolRequest(map[string]interface{}{}))
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleIndexDirectory_RelativePath(t *testing.T) {
	s := setupServer(t)

	_, err := s.handleIndexDirectory(context.Background(), toolRequest(map[string]interface{}{
		"path": "relative/path",
	}))
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleSearchChunks(t *testing.T) {
	s := setupServer(t)
	dir := writeTestTree(t)

	_, err := s.handleIndexDirectory(context.Background(), toolRequest(map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)

	result, err := s.handleSearchChunks(context.Background(), toolRequest(map[string]interface{}{
		"query": "Greet",
		"mode":  "keyword",
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, "keyword", payload["mode"])
	results, ok := payload["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)

	first, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Greet", first["entity_name"])
	assert.Contains(t, first["content"], "func Greet")
}

func TestHandleSearchChunks_EmptyQuery(t *testing.T) {
	s := setupServer(t)

	_, err := s.handleSearchChunks(context.Background(), toolRequest(map[string]interface{}{}))
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeEmptyQuery, mcpErr.Code)
}

func TestHandleSearchChunks_InvalidLimit(t *testing.T) {
	s := setupServer(t)

	_, err := s.handleSearchChunks(context.Background(), toolRequest(map[string]interface{}{
		"query": "anything",
		"limit": float64(500),
	}))
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleSearchChunks_InvalidMode(t *testing.T) {
	s := setupServer(t)

	_, err := s.handleSearchChunks(context.Background(), toolRequest(map[string]interface{}{
		"query": "anything",
		"mode":  "hybrid",
	}))
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleGetStatus(t *testing.T) {
	s := setupServer(t)
	dir := writeTestTree(t)

	_, err := s.handleIndexDirectory(context.Background(), toolRequest(map[string]interface{}{
		"path": dir,
	}))
	require.NoError(t, err)

	result, err := s.handleGetStatus(context.Background(), toolRequest(map[string]interface{}{}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	stats, ok := payload["statistics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(testDim), stats["dimension"])
	assert.Equal(t, stats["chunk_count"], stats["vector_count"])

	health, ok := payload["health"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, health["database_accessible"])
	assert.Equal(t, true, health["vectors_in_sync"])
}

func TestMCPError_Message(t *testing.T) {
	err := &MCPError{Code: -32602, Message: "invalid params"}
	assert.Equal(t, "MCP error -32602: invalid params", err.Error())
}
