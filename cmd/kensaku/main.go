// Package main is the kensaku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kensaku/internal/apperr"
	"github.com/hyperjump/kensaku/internal/cli"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/server"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/watcher"
	"github.com/hyperjump/kensaku/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

// errUsage is returned after usage has been printed.
var errUsage = errors.New("usage")

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default file yields the built-in defaults. Returns the config and the
// path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", apperr.IO("load config", err)
	}
	return cfg, path, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command, rest := args[0], args[1:]; command {
	case "index":
		err = runIndex(ctx, rest, stdout, stderr)
	case "search":
		err = runSearch(ctx, rest, stdout, stderr)
	case "dump":
		err = runDump(ctx, rest, stdout, stderr)
	case "status":
		err = runStatus(ctx, rest, stdout, stderr)
	case "demo":
		err = runDemo(ctx, rest, stdout, stderr)
	case "server":
		err = runServer(ctx, rest, stderr)
	case "watch":
		err = runWatch(ctx, rest, stdout, stderr)
	case "init":
		err = runInit(rest, stdout, stderr)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 1
	}
	if err != nil {
		switch {
		case err == errUsage:
		case errors.Is(err, errUsage):
			fmt.Fprintf(stderr, "error: %v\n", err)
		default:
			fmt.Fprintf(stderr, "error: %s: %v\n", apperr.Kind(err), err)
		}
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: kensaku <command> [flags] [args]

Commands:
  index [DIR]      build an index from the files under DIR
  search <query>   run a query and print the ranked hits
  dump             print the term dictionary and stored fields
  status           show the committed index and recent builds
  demo [DIR]       run the scripted lab queries (indexing DIR first if given)
  server           serve the HTTP API
  watch [DIR]      rebuild the index whenever files under DIR change
  init [PATH]      write a default config file
  version          print the version

Run "kensaku <command> -h" for command flags.
`)
}

// commonFlags are shared by every command that touches an index.
type commonFlags struct {
	configPath *string
	indexPath  *string
	debug      *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		indexPath:  fs.String("index", "", "index directory (overrides config)"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

// setup loads config, applies flag overrides and returns a console logger.
func (c commonFlags) setup() (*config.Config, *zap.Logger, error) {
	cfg, _, err := loadConfig(*c.configPath)
	if err != nil {
		return nil, nil, err
	}
	if *c.indexPath != "" {
		cfg.Index.Path = *c.indexPath
	}
	if *c.debug {
		cfg.Debug = true
	}
	logger, err := utils.NewConsoleLogger(cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

// parseFlags parses args, mapping -h to errUsage.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

// argsReorder moves the flags defined on fs (and their values) in front of the
// positional arguments and ends the flag list with "--". Go's flag package stops
// at the first non-flag argument, so "kensaku search obama -k 3" would otherwise
// leave -k unparsed, while a prohibited query term such as -hillary must stay
// positional.
func argsReorder(fs *flag.FlagSet, args []string) []string {
	var flags, rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			rest = append(rest, args[i+1:]...)
			break
		}
		name, hasValue := flagName(a)
		if name == "h" || name == "help" {
			flags = append(flags, a)
			continue
		}
		f := fs.Lookup(name)
		if name == "" || f == nil {
			rest = append(rest, a)
			continue
		}
		flags = append(flags, a)
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			continue
		}
		if !hasValue && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, flags...)
	out = append(out, "--")
	return append(out, rest...)
}

// flagName returns the name of a "-name", "--name" or "-name=value" argument.
func flagName(a string) (name string, hasValue bool) {
	if len(a) < 2 || a[0] != '-' {
		return "", false
	}
	name = strings.TrimPrefix(a[1:], "-")
	if i := strings.IndexByte(name, '='); i >= 0 {
		return name[:i], true
	}
	return name, false
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// corpusDir picks the corpus directory from the first positional arg or config.
func corpusDir(fs *flag.FlagSet, cfg *config.Config) (string, error) {
	dir := cfg.Index.Directory
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	if dir == "" {
		return "", fmt.Errorf("%w: no directory given and index.directory is not configured", errUsage)
	}
	return dir, nil
}

// openHistory opens the build journal of the index; failures only disable it.
func openHistory(cfg *config.Config, logger *zap.Logger) storage.BuildHistory {
	h, err := storage.OpenHistory(storage.HistoryPath(cfg.Index.Path))
	if err != nil {
		logger.Warn("build history disabled", zap.Error(err))
		return nil
	}
	return h
}

func newBuilder(cfg *config.Config, logger *zap.Logger, history storage.BuildHistory, opts ...indexer.Option) *indexer.Builder {
	opts = append([]indexer.Option{
		indexer.WithLogger(logger),
		indexer.WithMaxBufferedDocs(cfg.Index.MaxBufferedDocs),
	}, opts...)
	if history != nil {
		opts = append(opts, indexer.WithHistory(history))
	}
	return indexer.NewBuilder(cfg.Index.Path, opts...)
}

func runIndex(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := addCommonFlags(fs)
	suffix := fs.String("suffix", "", "file name suffix to index (default from config, .txt)")
	recursive := fs.Bool("recursive", true, "walk subdirectories")
	appendMode := fs.Bool("append", false, "add to the existing index instead of replacing it")
	workers := fs.Int("workers", 0, "parallel extraction workers (0 = GOMAXPROCS)")
	dump := fs.Bool("dump", false, "print the index after building")
	format := fs.String("format", "text", "output format: text or json")
	if err := parseFlags(fs, argsReorder(fs, args)); err != nil {
		return err
	}
	out, err := cli.ParseFormat(*format)
	if err != nil {
		return err
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	dir, err := corpusDir(fs, cfg)
	if err != nil {
		fs.Usage()
		return err
	}
	if *suffix != "" {
		cfg.Index.Suffix = *suffix
	}
	rec := cfg.Index.RecursiveOrDefault()
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "recursive" {
			rec = *recursive
		}
	})
	mode := index.Create
	if *appendMode {
		mode = index.CreateOrAppend
	}

	history := openHistory(cfg, logger)
	if history != nil {
		defer history.Close()
	}
	opts := []indexer.Option{indexer.WithWorkers(*workers)}
	if out == cli.OutputText {
		opts = append(opts, indexer.WithProgress(func(path string) {
			fmt.Fprintf(stdout, "Adding: %s\n", path)
		}))
	}
	b := newBuilder(cfg, logger, history, opts...)
	res, err := b.IndexDirectory(ctx, dir, cfg.Index.Suffix, rec, mode)
	if err != nil {
		return err
	}
	if err := cli.WriteIndexResult(stdout, res, out); err != nil {
		return err
	}
	if *dump {
		return dumpIndex(ctx, cfg.Index.Path, index.DumpOptions{Postings: true, Stored: true}, stdout)
	}
	return nil
}

func dumpIndex(ctx context.Context, dir string, opts index.DumpOptions, w io.Writer) error {
	e := search.NewEngine(dir)
	defer e.Close()
	snap, err := e.Acquire(ctx)
	if err != nil {
		return err
	}
	defer snap.DecRef()
	return index.Dump(w, snap, opts)
}

func runDump(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := addCommonFlags(fs)
	field := fs.String("field", "", "only dump terms of this field")
	postings := fs.Bool("postings", true, "list the postings of every term")
	stored := fs.Bool("stored", true, "list the stored fields of every document")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	return dumpIndex(ctx, cfg.Index.Path, index.DumpOptions{Field: *field, Postings: *postings, Stored: *stored}, stdout)
}

func runSearch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := addCommonFlags(fs)
	k := fs.Int("k", 0, "number of hits (default from config)")
	offset := fs.Int("offset", 0, "number of hits to skip")
	highlight := fs.Bool("highlight", false, "mark query terms in the first line of each hit")
	format := fs.String("format", "text", "output format: text or json")
	serverURL := fs.String("server", "", "search through a running server at this URL instead of opening the index")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kensaku search [flags] <query>\n\n")
		fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
		fs.PrintDefaults()
		fmt.Fprint(fs.Output(), `
Query syntax:
  obama hillary                 either term (more matches rank higher)
  "barack obama"~2              phrase, with optional slop
  ob*ma  obam?                  wildcards
  obama~0.6                     fuzzy, with optional minimum similarity
  FIRST_LINE:obama              field-qualified
  +obama -hillary               required / prohibited
  obama AND NOT hillary         boolean operators
  obama^10 hillary^0.1          boosts
`)
	}
	if err := parseFlags(fs, argsReorder(fs, args)); err != nil {
		return err
	}
	q := buildSearchQuery(fs.Args())
	if q == "" {
		fs.Usage()
		return errUsage
	}
	out, err := cli.ParseFormat(*format)
	if err != nil {
		return err
	}
	req := &models.SearchQuery{Query: q, Limit: *k, Offset: *offset, Highlight: *highlight}

	var resp *models.SearchResponse
	if *serverURL != "" {
		resp, err = searchViaHTTP(ctx, *serverURL, req)
	} else {
		var (
			cfg    *config.Config
			logger *zap.Logger
		)
		cfg, logger, err = common.setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		e := search.NewEngine(cfg.Index.Path, search.WithConfig(cfg.Search), search.WithLogger(logger))
		defer e.Close()
		resp, err = e.Search(ctx, req)
	}
	if err != nil {
		return err
	}
	return cli.WriteSearchResults(stdout, resp, out)
}

// remoteKinds maps the error kinds the API reports back to sentinels.
var remoteKinds = map[string]error{
	"IO":             apperr.ErrIO,
	"Corruption":     apperr.ErrCorruption,
	"LockHeld":       apperr.ErrLockHeld,
	"QuerySyntax":    apperr.ErrQuerySyntax,
	"SchemaMismatch": apperr.ErrSchemaMismatch,
}

func searchViaHTTP(ctx context.Context, serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+"/api/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, apperr.IO("search request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		b, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(b, &e) != nil || e.Error == "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
		if kind, ok := remoteKinds[e.Kind]; ok {
			return nil, apperr.New(kind, "search", e.Error)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runStatus(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := addCommonFlags(fs)
	builds := fs.Int("builds", 5, "number of recent builds to show")
	format := fs.String("format", "text", "output format: text or json")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	out, err := cli.ParseFormat(*format)
	if err != nil {
		return err
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	var history storage.BuildHistory
	if _, err := os.Stat(storage.HistoryPath(cfg.Index.Path)); err == nil {
		history = openHistory(cfg, logger)
	}
	if history != nil {
		defer history.Close()
	}
	st, err := storage.Status(ctx, cfg.Index.Path, history, *builds)
	if err != nil {
		return err
	}
	return cli.WriteStatus(stdout, st, out)
}

func runDemo(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := addCommonFlags(fs)
	k := fs.Int("k", 10, "hits per query")
	if err := parseFlags(fs, argsReorder(fs, args)); err != nil {
		return err
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if fs.NArg() > 0 {
		b := newBuilder(cfg, logger, nil, indexer.WithProgress(func(path string) {
			fmt.Fprintf(stdout, "Adding: %s\n", path)
		}))
		if _, err := b.IndexDirectory(ctx, fs.Arg(0), cfg.Index.Suffix, cfg.Index.RecursiveOrDefault(), index.Create); err != nil {
			return err
		}
		fmt.Fprintln(stdout)
	}
	e := search.NewEngine(cfg.Index.Path, search.WithConfig(cfg.Search), search.WithLogger(logger))
	defer e.Close()
	return cli.RunDemo(ctx, e, cli.DemoQueries, *k, stdout)
}

func runServer(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "rebuild the index when the configured directory changes")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("index", cfg.Index.Path),
		zap.Bool("debug", debugMode),
	)

	m := metrics.New(prometheus.NewRegistry())
	history := openHistory(cfg, logger)
	if history != nil {
		defer history.Close()
	}
	engine := search.NewEngine(cfg.Index.Path,
		search.WithConfig(cfg.Search), search.WithLogger(logger), search.WithMetrics(m))
	defer engine.Close()
	builder := newBuilder(cfg, logger, history, indexer.WithMetrics(m))

	if *watch || cfg.Watch.Enabled {
		w, err := startWatcher(ctx, cfg, builder, engine, logger)
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	opts := []server.Option{server.WithMetrics(m)}
	if history != nil {
		opts = append(opts, server.WithHistory(history))
	}
	srv := server.NewServer(engine, builder, cfg, logger, opts...)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// startWatcher watches the configured corpus and rebuilds into the engine's
// index directory.
func startWatcher(ctx context.Context, cfg *config.Config, b *indexer.Builder, e *search.Engine, logger *zap.Logger) (*watcher.Watcher, error) {
	dir := cfg.Index.Directory
	if dir == "" {
		return nil, fmt.Errorf("%w: watching needs index.directory", errUsage)
	}
	rec := cfg.Index.RecursiveOrDefault()
	rebuild := func(ctx context.Context) error {
		if _, err := b.IndexDirectory(ctx, dir, cfg.Index.Suffix, rec, index.Create); err != nil {
			return err
		}
		_, err := e.Refresh(ctx)
		return err
	}
	w := watcher.NewWatcher(dir, cfg.Index.Suffix, rec, rebuild,
		watcher.WithLogger(logger),
		watcher.WithDebounce(cfg.Watch.Debounce()),
		watcher.WithIgnore(cfg.Index.Path))
	if err := w.Start(ctx); err != nil {
		return nil, apperr.IO("watch "+dir, err)
	}
	return w, nil
}

func runWatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := addCommonFlags(fs)
	suffix := fs.String("suffix", "", "file name suffix to index (default from config, .txt)")
	debounce := fs.Duration("debounce", 0, "quiet period before a rebuild (default from config)")
	if err := parseFlags(fs, argsReorder(fs, args)); err != nil {
		return err
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	dir, err := corpusDir(fs, cfg)
	if err != nil {
		fs.Usage()
		return err
	}
	cfg.Index.Directory = dir
	if *suffix != "" {
		cfg.Index.Suffix = *suffix
	}
	if *debounce > 0 {
		cfg.Watch.DebounceMS = int(debounce.Milliseconds())
	}

	history := openHistory(cfg, logger)
	if history != nil {
		defer history.Close()
	}
	b := newBuilder(cfg, logger, history)
	res, err := b.IndexDirectory(ctx, dir, cfg.Index.Suffix, cfg.Index.RecursiveOrDefault(), index.Create)
	if err != nil {
		return err
	}
	if err := cli.WriteIndexResult(stdout, res, cli.OutputText); err != nil {
		return err
	}
	e := search.NewEngine(cfg.Index.Path, search.WithConfig(cfg.Search), search.WithLogger(logger))
	defer e.Close()
	w, err := startWatcher(ctx, cfg, b, e, logger)
	if err != nil {
		return err
	}
	defer w.Stop()
	fmt.Fprintf(stdout, "Watching %s (Ctrl-C to stop)\n", dir)
	<-ctx.Done()
	fmt.Fprintf(stdout, "Stopped after %d rebuilds\n", w.Rebuilds())
	return nil
}

func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	path := "config.yaml"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(path, cfg); err != nil {
		return apperr.IO("init", err)
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}
