// Package chunker divides source files into chunks for embedding and search.
//
// Go sources are chunked at declaration boundaries so each chunk carries one
// complete function, method, type, or const/var block together with its doc
// comment. Other text files fall back to overlapping line windows. Binary
// files produce no chunks.
//
// # Basic Usage
//
//	c := chunker.New(0, 0) // default window/overlap for non-Go files
//	chunks, err := c.ChunkFile("/repo/internal/store/sqlite.go", "internal/store/sqlite.go")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, chunk := range chunks {
//	    fmt.Printf("%s %s.%s\n", chunk.FilePath, chunk.ParentPath, chunk.EntityName)
//	}
//
// # Chunk Fields
//
// Each chunk records where it came from and what it declares:
//   - FilePath/FileName: location relative to the scanned root
//   - Content: the declaration text (or line window)
//   - Doc: the declaration's doc comment, kept separate from Content
//   - ParentPath: package name, or package.Receiver for methods
//   - EntityName: the declared name; empty for line windows
//
// # Scanning Trees
//
// Scanner walks a directory and streams chunks over a channel:
//
//	s := chunker.NewScanner(c, chunker.ScanConfig{}, logger)
//	chunks, wait := s.Scan(ctx, "/repo")
//	for chunk := range chunks {
//	    // consume
//	}
//	if err := wait(); err != nil {
//	    log.Fatal(err)
//	}
//
// The scanner skips hidden files and directories, configured ignore
// directories, files with unlisted extensions, and oversized files.
package chunker
