package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/sirasagi62/chopgrep/internal/chunker"
	"github.com/sirasagi62/chopgrep/internal/config"
	"github.com/sirasagi62/chopgrep/internal/embedder"
	"github.com/sirasagi62/chopgrep/internal/ingest"
	"github.com/sirasagi62/chopgrep/internal/mcp"
	"github.com/sirasagi62/chopgrep/internal/searcher"
	"github.com/sirasagi62/chopgrep/internal/store"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// .env is optional; missing files are fine
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chopgrep: %v\n", err)
		os.Exit(1)
	}

	// stdout carries command output (and the MCP protocol in serve mode);
	// logs always go to stderr
	logger := newLogger(cfg.LogLevel)

	args := flag.Args()
	switch args[0] {
	case "index":
		err = runIndex(cfg, logger, args[1:])
	case "query":
		err = runQuery(cfg, logger, args[1:])
	case "status":
		err = runStatus(cfg, args[1:])
	case "serve":
		err = runServe(cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "chopgrep: unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error().Err(err).Msg(args[0] + " failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `chopgrep indexes source trees and answers similarity queries over them.

Usage:
  chopgrep [flags] <command> [arguments]

Flags:
  -config string   Path to config file (default: chopgrep.yaml if present)
  -version         Show version information

Commands:
  index <dir>      Chunk, embed, and index a directory
  query <text>     Search the index
  status           Show index statistics
  serve            Run the MCP server on stdio
`)
}

func printVersion() {
	fmt.Printf("chopgrep\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Build Mode: %s\n", store.BuildMode)
	fmt.Printf("SQLite Driver: %s\n", store.DriverName)
	fmt.Printf("Vector Extension: %v\n", store.VectorExtensionAvailable)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}

// openStore opens the database configured in cfg; the caller closes it
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	st, err := store.Open(cfg.DBPath, cfg.Embedding.Dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", cfg.DBPath, err)
	}
	return st, nil
}

func newEmbedder(cfg *config.Config) (embedder.Embedder, error) {
	return embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.Dimension,
		CacheSize: cfg.Embedding.CacheSize,
	})
}

func newIngestor(cfg *config.Config, st store.Store, emb embedder.Embedder, logger zerolog.Logger) (*ingest.Ingestor, error) {
	policy, err := ingest.ParsePolicy(cfg.Ingest.FailurePolicy)
	if err != nil {
		return nil, err
	}

	sc := chunker.NewScanner(
		chunker.New(cfg.Chunking.WindowLines, cfg.Chunking.OverlapLines),
		chunker.ScanConfig{
			Extensions:  cfg.Chunking.Extensions,
			IgnoreDirs:  cfg.Chunking.IgnoreDirs,
			MaxFileSize: cfg.Chunking.MaxFileSize,
		},
		logger,
	)

	return ingest.New(st, emb, sc, ingest.Config{
		BatchSize:      cfg.Ingest.BatchSize,
		EmbedBatchSize: cfg.Ingest.EmbedBatchSize,
		Policy:         policy,
	}, logger), nil
}

func runIndex(cfg *config.Config, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	jsonOut := fs.Bool("json", false, "print a machine-readable summary")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: chopgrep index <dir>")
	}
	root := fs.Arg(0)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = emb.Close() }()

	ing, err := newIngestor(cfg, st, emb, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := ing.IndexDirectory(ctx, root)
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(stats)
	}
	fmt.Printf("Indexed %d files, %d chunks (%d inserted, %d replaced, %d skipped) in %s\n",
		stats.Files, stats.Chunks, stats.Inserted, stats.Replaced, stats.Skipped,
		stats.Duration.Round(time.Millisecond))
	return nil
}

func runQuery(cfg *config.Config, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	k := fs.Int("k", searcher.DefaultLimit, "number of results")
	mode := fs.String("mode", string(searcher.ModeSemantic), "search mode: semantic or keyword")
	jsonOut := fs.Bool("json", false, "print machine-readable results")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: chopgrep query <text>")
	}
	query := fs.Arg(0)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = emb.Close() }()

	srch := searcher.New(st, emb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := srch.Search(ctx, searcher.Request{
		Query: query,
		Limit: *k,
		Mode:  searcher.Mode(*mode),
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		out := make([]queryResult, len(resp.Results))
		for i, r := range resp.Results {
			out[i] = queryResult{
				Rank:       r.Rank,
				Score:      r.Score,
				FilePath:   r.FilePath,
				ParentPath: r.ParentPath,
				EntityName: r.EntityName,
				Doc:        r.Doc,
				Content:    r.Content,
			}
		}
		return printJSON(out)
	}

	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for _, r := range resp.Results {
		entity := r.EntityName
		if r.ParentPath != "" && entity != "" {
			entity = r.ParentPath + "." + entity
		}
		fmt.Printf("%2d. [%.3f] %s", r.Rank, r.Score, r.FilePath)
		if entity != "" {
			fmt.Printf("  %s", entity)
		}
		fmt.Println()
		fmt.Println(indent(firstLines(r.Content, 8), "    "))
	}
	return nil
}

func runStatus(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOut := fs.Bool("json", false, "print machine-readable status")
	_ = fs.Parse(args)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	status, err := st.Status(context.Background())
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(status)
	}
	fmt.Printf("Database:   %s\n", cfg.DBPath)
	fmt.Printf("Chunks:     %d\n", status.ChunkCount)
	fmt.Printf("Vectors:    %d\n", status.VectorCount)
	fmt.Printf("Files:      %d\n", status.FileCount)
	fmt.Printf("Dimension:  %d\n", status.Dimension)
	fmt.Printf("Size:       %.2f MB\n", status.IndexSizeMB)
	fmt.Printf("In sync:    %v\n", status.Health.VectorsInSync)
	return nil
}

func runServe(cfg *config.Config, logger zerolog.Logger) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = emb.Close() }()

	ing, err := newIngestor(cfg, st, emb, logger)
	if err != nil {
		return err
	}
	srch := searcher.New(st, emb)

	server := mcp.NewServer(st, ing, srch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", version).
		Str("driver", store.DriverName).
		Str("provider", emb.Provider()).
		Msg("MCP server listening on stdio")

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

// queryResult is the machine-readable projection of a search result;
// embeddings are deliberately left out
type queryResult struct {
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	FilePath   string  `json:"file_path"`
	ParentPath string  `json:"parent_path,omitempty"`
	EntityName string  `json:"entity_name,omitempty"`
	Doc        string  `json:"doc,omitempty"`
	Content    string  `json:"content"`
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// firstLines truncates text to at most n lines
func firstLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[:n], "\n") + "\n..."
}

func indent(text, prefix string) string {
	return prefix + strings.ReplaceAll(text, "\n", "\n"+prefix)
}
