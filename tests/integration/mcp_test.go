package integration

import (
	"context"
	"encoding/json"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirasagi62/chopgrep/internal/mcp"
)

// callTool invokes one MCP tool handler through the server mux
func callTool(t *testing.T, s *mcp.Server, name string, args map[string]interface{}) map[string]interface{} {
	t.Helper()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := s.HandleTool(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func TestMCP_IndexSearchStatus(t *testing.T) {
	p := newPipeline(t)
	dir := writeTree(t)

	s := mcp.NewServer(p.store, p.ingestor, p.searcher)

	indexed := callTool(t, s, "index_directory", map[string]interface{}{"path": dir})
	assert.Equal(t, true, indexed["indexed"])
	assert.Equal(t, float64(3), indexed["files"])

	found := callTool(t, s, "search_chunks", map[string]interface{}{
		"query": "RefreshToken",
		"mode":  "keyword",
	})
	results, ok := found["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	first, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "RefreshToken", first["entity_name"])

	status := callTool(t, s, "get_status", map[string]interface{}{})
	stats, ok := status["statistics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, stats["chunk_count"], stats["vector_count"])
}
