package chunker

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
)

// Window defaults for line-based chunking of non-Go files
const (
	DefaultWindowLines  = 60
	DefaultOverlapLines = 10
)

// binarySniffLen bounds how much of a file is inspected for NUL bytes
const binarySniffLen = 8000

// Chunk describes one extracted piece of a file, ready for embedding.
// Doc carries the declaration's comment separately from the content;
// ParentPath qualifies EntityName (package, or package.Receiver for methods).
type Chunk struct {
	FilePath   string
	FileName   string
	Content    string
	Doc        string
	ParentPath string
	EntityName string
}

// Chunker splits files into chunks. Go sources produce one chunk per
// top-level declaration; everything else falls back to overlapping line
// windows.
type Chunker struct {
	windowLines  int
	overlapLines int
}

// New creates a Chunker. Non-positive window or overlap values use defaults.
func New(windowLines, overlapLines int) *Chunker {
	if windowLines <= 0 {
		windowLines = DefaultWindowLines
	}
	if overlapLines < 0 || overlapLines >= windowLines {
		overlapLines = DefaultOverlapLines
	}
	return &Chunker{
		windowLines:  windowLines,
		overlapLines: overlapLines,
	}
}

// ChunkFile reads path and splits it into chunks. relPath is recorded as the
// chunk FilePath so stored paths stay stable across machines. Binary and
// empty files yield no chunks and no error.
func (c *Chunker) ChunkFile(path, relPath string) ([]Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return c.ChunkContent(content, relPath), nil
}

// ChunkContent splits already-read file content into chunks
func (c *Chunker) ChunkContent(content []byte, relPath string) []Chunk {
	if isBinary(content) || len(bytes.TrimSpace(content)) == 0 {
		return nil
	}

	if strings.HasSuffix(relPath, ".go") {
		if chunks := c.chunkGo(content, relPath); chunks != nil {
			return chunks
		}
		// Files that fail to parse still get indexed as plain text
	}

	return c.chunkLines(string(content), relPath)
}

// chunkGo produces one chunk per top-level declaration. Returns nil when the
// file cannot be parsed at all.
func (c *Chunker) chunkGo(content []byte, relPath string) []Chunk {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, relPath, content, parser.ParseComments)
	if file == nil || err != nil {
		return nil
	}

	pkg := ""
	if file.Name != nil {
		pkg = file.Name.Name
	}
	lines := strings.Split(string(content), "\n")
	fileName := filepath.Base(relPath)

	chunks := make([]Chunk, 0, len(file.Decls))
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			chunks = append(chunks, Chunk{
				FilePath:   relPath,
				FileName:   fileName,
				Content:    extractLines(lines, fset, d.Pos(), d.End()),
				Doc:        docText(d.Doc),
				ParentPath: funcParentPath(pkg, d),
				EntityName: d.Name.Name,
			})
		case *ast.GenDecl:
			chunks = append(chunks, c.chunkGenDecl(d, pkg, fileName, relPath, lines, fset)...)
		}
	}

	// A file with no declarations beyond package/imports is indexed whole
	if len(chunks) == 0 {
		return []Chunk{{
			FilePath:   relPath,
			FileName:   fileName,
			Content:    strings.Join(lines, "\n"),
			Doc:        docText(file.Doc),
			ParentPath: pkg,
		}}
	}

	return chunks
}

// chunkGenDecl handles type, const, and var declarations. Type blocks yield
// one chunk per spec; const and var blocks stay together as one chunk since
// grouped values usually only make sense together.
func (c *Chunker) chunkGenDecl(d *ast.GenDecl, pkg, fileName, relPath string, lines []string, fset *token.FileSet) []Chunk {
	switch d.Tok {
	case token.TYPE:
		chunks := make([]Chunk, 0, len(d.Specs))
		for _, spec := range d.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}

			start, end := ts.Pos(), ts.End()
			doc := docText(ts.Doc)
			if len(d.Specs) == 1 {
				// Single-spec declaration: keep the `type` keyword
				start, end = d.Pos(), d.End()
				if doc == "" {
					doc = docText(d.Doc)
				}
			}

			chunks = append(chunks, Chunk{
				FilePath:   relPath,
				FileName:   fileName,
				Content:    extractLines(lines, fset, start, end),
				Doc:        doc,
				ParentPath: pkg,
				EntityName: ts.Name.Name,
			})
		}
		return chunks

	case token.CONST, token.VAR:
		name := firstValueName(d)
		if name == "" {
			return nil
		}
		return []Chunk{{
			FilePath:   relPath,
			FileName:   fileName,
			Content:    extractLines(lines, fset, d.Pos(), d.End()),
			Doc:        docText(d.Doc),
			ParentPath: pkg,
			EntityName: name,
		}}

	default:
		// Imports carry no searchable content of their own
		return nil
	}
}

// chunkLines splits text into overlapping line windows
func (c *Chunker) chunkLines(content, relPath string) []Chunk {
	lines := strings.Split(content, "\n")
	fileName := filepath.Base(relPath)

	step := c.windowLines - c.overlapLines
	if step <= 0 {
		step = 1
	}

	chunks := make([]Chunk, 0, len(lines)/step+1)
	for i := 0; i < len(lines); i += step {
		end := i + c.windowLines
		if end > len(lines) {
			end = len(lines)
		}

		window := strings.Join(lines[i:end], "\n")
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, Chunk{
				FilePath: relPath,
				FileName: fileName,
				Content:  window,
			})
		}

		if end >= len(lines) {
			break
		}
	}

	return chunks
}

// extractLines returns the source text between two token positions, whole
// lines inclusive.
func extractLines(lines []string, fset *token.FileSet, start, end token.Pos) string {
	startLine := fset.Position(start).Line
	endLine := fset.Position(end).Line

	if startLine <= 0 || startLine > len(lines) {
		return ""
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}

	return strings.Join(lines[startLine-1:endLine], "\n")
}

// funcParentPath qualifies functions by package and methods by receiver
func funcParentPath(pkg string, d *ast.FuncDecl) string {
	if d.Recv == nil || len(d.Recv.List) == 0 {
		return pkg
	}
	recv := receiverTypeName(d.Recv.List[0].Type)
	if recv == "" {
		return pkg
	}
	if pkg == "" {
		return recv
	}
	return pkg + "." + recv
}

// receiverTypeName unwraps pointers and type parameters to the receiver's
// base type name.
func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.IndexExpr:
		return receiverTypeName(t.X)
	case *ast.IndexListExpr:
		return receiverTypeName(t.X)
	}
	return ""
}

// firstValueName returns the first declared name in a const or var block
func firstValueName(d *ast.GenDecl) string {
	for _, spec := range d.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for _, name := range vs.Names {
			if name.Name != "_" {
				return name.Name
			}
		}
	}
	return ""
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

// isBinary reports whether content looks like binary data (NUL byte in the
// leading bytes, the same heuristic grep uses).
func isBinary(content []byte) bool {
	sniff := content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	return bytes.IndexByte(sniff, 0) != -1
}
