package chunker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestChunkFile_SimpleFunction(t *testing.T) {
	path := writeFile(t, t.TempDir(), "greet.go", `package testpkg

import "fmt"

// Greet prints a greeting message
func Greet(name string) {
	fmt.Println("Hello, " + name)
}
`)

	c := New(0, 0)
	chunks, err := c.ChunkFile(path, "greet.go")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	assert.Equal(t, "greet.go", chunk.FilePath)
	assert.Equal(t, "greet.go", chunk.FileName)
	assert.Equal(t, "Greet", chunk.EntityName)
	assert.Equal(t, "testpkg", chunk.ParentPath)
	assert.Equal(t, "Greet prints a greeting message", chunk.Doc)
	assert.True(t, strings.HasPrefix(chunk.Content, "func Greet"))
	assert.Contains(t, chunk.Content, "fmt.Println")
}

func TestChunkFile_Method(t *testing.T) {
	path := writeFile(t, t.TempDir(), "user.go", `package testpkg

type User struct {
	ID   int
	Name string
}

// GetID returns the user ID
func (u *User) GetID() int {
	return u.ID
}
`)

	c := New(0, 0)
	chunks, err := c.ChunkFile(path, "user.go")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "User", chunks[0].EntityName)
	assert.Equal(t, "testpkg", chunks[0].ParentPath)
	assert.Contains(t, chunks[0].Content, "type User struct")

	assert.Equal(t, "GetID", chunks[1].EntityName)
	assert.Equal(t, "testpkg.User", chunks[1].ParentPath)
	assert.Contains(t, chunks[1].Content, "return u.ID")
}

func TestChunkFile_GenericReceiver(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cache.go", `package testpkg

type Cache[K comparable, V any] struct {
	items map[K]V
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.items[key]
	return v, ok
}
`)

	c := New(0, 0)
	chunks, err := c.ChunkFile(path, "cache.go")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "testpkg.Cache", chunks[1].ParentPath)
	assert.Equal(t, "Get", chunks[1].EntityName)
}

func TestChunkFile_TypeBlock(t *testing.T) {
	path := writeFile(t, t.TempDir(), "types.go", `package testpkg

type (
	// Alpha is the first kind
	Alpha struct{ N int }

	Beta struct{ S string }
)
`)

	c := New(0, 0)
	chunks, err := c.ChunkFile(path, "types.go")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "Alpha", chunks[0].EntityName)
	assert.Equal(t, "Alpha is the first kind", chunks[0].Doc)
	assert.Equal(t, "Beta", chunks[1].EntityName)
	assert.Contains(t, chunks[1].Content, "Beta struct")
}

func TestChunkFile_ConstBlock(t *testing.T) {
	path := writeFile(t, t.TempDir(), "consts.go", `package testpkg

// Limits for the worker pool
const (
	MinWorkers = 1
	MaxWorkers = 32
)
`)

	c := New(0, 0)
	chunks, err := c.ChunkFile(path, "consts.go")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	assert.Equal(t, "MinWorkers", chunk.EntityName)
	assert.Equal(t, "Limits for the worker pool", chunk.Doc)
	assert.Contains(t, chunk.Content, "MinWorkers = 1")
	assert.Contains(t, chunk.Content, "MaxWorkers = 32")
}

func TestChunkFile_NoDeclarations(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.go", `// Package testpkg does nothing yet.
package testpkg
`)

	c := New(0, 0)
	chunks, err := c.ChunkFile(path, "empty.go")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	assert.Empty(t, chunk.EntityName)
	assert.Equal(t, "testpkg", chunk.ParentPath)
	assert.Equal(t, "Package testpkg does nothing yet.", chunk.Doc)
	assert.Contains(t, chunk.Content, "package testpkg")
}

func TestChunkFile_SyntaxErrorFallsBackToWindows(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.go", `package testpkg

func Broken( {
	this is not go
`)

	c := New(10, 2)
	chunks, err := c.ChunkFile(path, "broken.go")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Window chunks carry no entity metadata
	assert.Empty(t, chunks[0].EntityName)
	assert.Contains(t, chunks[0].Content, "func Broken")
}

func TestChunkContent_SkipsBinaryAndEmpty(t *testing.T) {
	c := New(0, 0)

	assert.Nil(t, c.ChunkContent([]byte("PK\x03\x04\x00binarydata"), "archive.zip"))
	assert.Nil(t, c.ChunkContent([]byte("   \n\t\n"), "blank.txt"))
	assert.Nil(t, c.ChunkContent(nil, "empty.txt"))
}

func TestChunkLines_WindowsAndOverlap(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&sb, "line-%d\n", i)
	}

	// 26 lines including the trailing empty one; step = 10 - 2 = 8,
	// so windows start at lines 0, 8, and 16
	c := New(10, 2)
	chunks := c.ChunkContent([]byte(sb.String()), "notes.txt")
	require.Len(t, chunks, 3)

	assert.True(t, strings.HasPrefix(chunks[0].Content, "line-1\n"))
	assert.Contains(t, chunks[0].Content, "line-10")
	assert.NotContains(t, chunks[0].Content, "line-11")

	// Overlap: the second window starts before the first ends
	assert.True(t, strings.HasPrefix(chunks[1].Content, "line-9\n"))
	assert.True(t, strings.HasPrefix(chunks[2].Content, "line-17\n"))

	for _, chunk := range chunks {
		assert.Equal(t, "notes.txt", chunk.FilePath)
		assert.Empty(t, chunk.EntityName)
		assert.Empty(t, chunk.Doc)
	}
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nfunc A() int { return 1 }\n")
	writeFile(t, root, "docs/readme.md", "# Title\n\nSome documentation text.\n")
	writeFile(t, root, "vendor/dep.go", "package dep\n\nfunc Hidden() {}\n")
	writeFile(t, root, ".secret/creds.go", "package creds\n\nfunc Key() {}\n")
	writeFile(t, root, ".env", "SECRET=1\n")
	writeFile(t, root, "image.bin", "\x00\x01\x02")
	writeFile(t, root, "big.txt", strings.Repeat("padding line\n", 200))

	s := NewScanner(New(0, 0), ScanConfig{MaxFileSize: 512}, zerolog.Nop())
	chunks, wait := s.Scan(context.Background(), root)

	var got []Chunk
	for chunk := range chunks {
		got = append(got, chunk)
	}
	require.NoError(t, wait())

	paths := make(map[string]bool)
	for _, chunk := range got {
		paths[chunk.FilePath] = true
	}

	assert.True(t, paths["a.go"], "expected a.go to be scanned")
	assert.True(t, paths["docs/readme.md"], "expected docs/readme.md to be scanned")
	assert.False(t, paths["vendor/dep.go"], "vendor must be ignored")
	assert.False(t, paths[".secret/creds.go"], "hidden dirs must be ignored")
	assert.False(t, paths[".env"], "dotfiles must be ignored")
	assert.False(t, paths["image.bin"], "unlisted extensions must be ignored")
	assert.False(t, paths["big.txt"], "oversized files must be ignored")
}

func TestScanner_SingleFile(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "single.go", "package single\n\nfunc One() {}\n\nfunc Two() {}\n")

	s := NewScanner(New(0, 0), ScanConfig{}, zerolog.Nop())
	chunks, wait := s.Scan(context.Background(), path)

	var names []string
	for chunk := range chunks {
		names = append(names, chunk.EntityName)
	}
	require.NoError(t, wait())
	assert.Equal(t, []string{"One", "Two"}, names)
}

func TestScanner_MissingRoot(t *testing.T) {
	s := NewScanner(New(0, 0), ScanConfig{}, zerolog.Nop())
	chunks, wait := s.Scan(context.Background(), filepath.Join(t.TempDir(), "nope"))

	for range chunks {
	}
	assert.Error(t, wait())
}

func TestScanner_ContextCancelled(t *testing.T) {
	root := t.TempDir()

	// Enough chunks to overflow the channel buffer with nobody reading
	var sb strings.Builder
	sb.WriteString("package many\n")
	for i := 0; i < scanBuffer+10; i++ {
		fmt.Fprintf(&sb, "\nfunc F%d() int { return %d }\n", i, i)
	}
	writeFile(t, root, "many.go", sb.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScanner(New(0, 0), ScanConfig{}, zerolog.Nop())
	_, wait := s.Scan(ctx, root)

	assert.ErrorIs(t, wait(), context.Canceled)
}

func TestNormalizeExt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"go", ".go"},
		{".GO", ".go"},
		{" md ", ".md"},
		{".yaml", ".yaml"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeExt(tt.in))
	}
}
