package chunker

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxFileSize bounds the size of files considered for indexing
const DefaultMaxFileSize = 1 << 20 // 1 MiB

// scanBuffer is the chunk channel capacity; keeps the walker ahead of the
// embedding pipeline without holding a whole tree in memory
const scanBuffer = 64

// ScanConfig controls which files a Scanner picks up
type ScanConfig struct {
	Extensions  []string // file extensions to index; empty means DefaultExtensions
	IgnoreDirs  []string // directory names to skip entirely
	MaxFileSize int64    // files larger than this are skipped
}

// DefaultExtensions lists the file types indexed when no explicit set is
// configured.
var DefaultExtensions = []string{
	".go", ".md", ".txt", ".py", ".js", ".ts", ".java", ".rs",
	".c", ".h", ".cpp", ".sh", ".yaml", ".yml", ".json", ".sql", ".proto",
}

// DefaultIgnoreDirs lists directory names skipped during scans. Hidden
// directories are always skipped.
var DefaultIgnoreDirs = []string{
	"vendor", "node_modules", "testdata", "dist", "build", "target",
}

// Scanner walks a directory tree and streams chunks for every matching file
type Scanner struct {
	chunker *Chunker
	extSet  map[string]bool
	ignore  map[string]bool
	maxSize int64
	logger  zerolog.Logger
}

// NewScanner creates a Scanner over the given chunker
func NewScanner(c *Chunker, cfg ScanConfig, logger zerolog.Logger) *Scanner {
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	extSet := make(map[string]bool, len(exts))
	for _, ext := range exts {
		extSet[normalizeExt(ext)] = true
	}

	dirs := cfg.IgnoreDirs
	if len(dirs) == 0 {
		dirs = DefaultIgnoreDirs
	}
	ignore := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		ignore[dir] = true
	}

	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	return &Scanner{
		chunker: c,
		extSet:  extSet,
		ignore:  ignore,
		maxSize: maxSize,
		logger:  logger,
	}
}

// Scan walks root and sends chunks on the returned channel in walk order.
// The channel closes when the walk finishes; the returned wait function
// reports the first error. root may also name a single file.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan Chunk, func() error) {
	out := make(chan Chunk, scanBuffer)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(out)

		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return s.emitFile(ctx, out, root, filepath.Base(root), info.Size())
		}

		files, chunks := 0, 0
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			name := d.Name()
			if d.IsDir() {
				if path == root {
					return nil
				}
				if strings.HasPrefix(name, ".") || s.ignore[name] {
					return filepath.SkipDir
				}
				return nil
			}

			// Dotfiles often hold credentials; never index them
			if strings.HasPrefix(name, ".") || !s.extSet[strings.ToLower(filepath.Ext(name))] {
				return nil
			}

			fi, err := d.Info()
			if err != nil {
				s.logger.Warn().Err(err).Str("file", path).Msg("skipping unstatable file")
				return nil
			}
			if fi.Size() > s.maxSize {
				s.logger.Debug().Str("file", path).Int64("size", fi.Size()).Msg("skipping oversized file")
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}

			n, err := s.emitChunks(ctx, out, path, filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			files++
			chunks += n
			return nil
		})
		if err != nil {
			return err
		}

		s.logger.Debug().Int("files", files).Int("chunks", chunks).Str("root", root).Msg("scan complete")
		return nil
	})

	return out, g.Wait
}

// emitFile handles the single-file scan case
func (s *Scanner) emitFile(ctx context.Context, out chan<- Chunk, path, rel string, size int64) error {
	if size > s.maxSize {
		s.logger.Debug().Str("file", path).Int64("size", size).Msg("skipping oversized file")
		return nil
	}
	_, err := s.emitChunks(ctx, out, path, filepath.ToSlash(rel))
	return err
}

// emitChunks chunks one file and sends the results. Unreadable files are
// logged and skipped so one bad file cannot abort a whole scan.
func (s *Scanner) emitChunks(ctx context.Context, out chan<- Chunk, path, rel string) (int, error) {
	chunks, err := s.chunker.ChunkFile(path, rel)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", rel).Msg("skipping unreadable file")
		return 0, nil
	}

	for _, chunk := range chunks {
		select {
		case out <- chunk:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return len(chunks), nil
}

// normalizeExt lowercases an extension and ensures the leading dot
func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
