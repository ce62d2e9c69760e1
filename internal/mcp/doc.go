// Package mcp implements the Model Context Protocol server for chopgrep.
//
// The server exposes three tools to MCP clients over stdio:
//   - index_directory: index a directory of source files
//   - search_chunks: query the indexed corpus semantically or by keyword
//   - get_status: report index statistics and health
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport; stdout is reserved
// for protocol messages, so all logging goes to stderr.
//
// # Basic Usage
//
// The server is typically started via the serve command:
//
//	chopgrep serve
//
// # Tool: index_directory
//
//	{"name": "index_directory", "arguments": {"path": "/path/to/project"}}
//
// Re-indexing a directory replaces the chunks of every file it touches.
// A run requested while another is active fails with error -32001.
//
// # Tool: search_chunks
//
//	{"name": "search_chunks", "arguments": {
//	  "query": "where are batches committed",
//	  "limit": 10,
//	  "mode": "semantic"
//	}}
//
// Results carry the chunk content, its file path and entity name, and a
// relevance score in [0, 1].
//
// # Tool: get_status
//
//	{"name": "get_status", "arguments": {}}
//
// Reports chunk/vector/file counts, the embedding dimension, the database
// size, and whether the vector index is in sync with chunk metadata.
package mcp
