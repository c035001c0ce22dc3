// Package main is the cordsearch CLI entry point.
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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/cordsearch/internal/cli"
	"github.com/hyperjump/cordsearch/internal/config"
	"github.com/hyperjump/cordsearch/internal/embedding"
	"github.com/hyperjump/cordsearch/internal/filter"
	"github.com/hyperjump/cordsearch/internal/indexer"
	"github.com/hyperjump/cordsearch/internal/metrics"
	"github.com/hyperjump/cordsearch/internal/models"
	"github.com/hyperjump/cordsearch/internal/search"
	"github.com/hyperjump/cordsearch/internal/server"
	"github.com/hyperjump/cordsearch/internal/storage"
	"github.com/hyperjump/cordsearch/internal/watcher"
	"github.com/hyperjump/cordsearch/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/cordsearch/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// When the default path does not exist either, built-in defaults are returned with an
// empty resolved path.
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
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", cfg.Validate()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "ask":
		runAsk()
	case "recache":
		runRecache()
	case "status":
		runStatus()
	case "init-config":
		runInitConfig()
	case "version", "--version", "-v":
		fmt.Printf("cordsearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config and builds the logger shared by every command.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if debugFlag {
		cfg.Debug = true
	}
	logger, err := utils.NewLogger(cfg.Debug, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug),
		zap.String("embedding_provider", cfg.Embedding.Provider))

	metrics.Register(prometheus.DefaultRegisterer)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A server without a usable snapshot still starts so that /api/v1/recache can repair it.
	if err := components.Load(ctx); err != nil {
		logger.Error("engine not ready", zap.Error(err))
	}

	srv := server.NewServer(components.Engine, components.Indexer, components.Storage, cfg, logger)

	if cfg.Watch.Enabled {
		watchSvc := watcher.NewWatcher(
			[]string{cfg.Corpus.SourcePath},
			func(path string) {
				report, err := srv.Recache(ctx, false)
				if err != nil {
					logger.Warn("recache after source change failed", zap.String("path", path), zap.Error(err))
					return
				}
				logger.Info("recache after source change", zap.String("generation", report.Generation), zap.Bool("skipped", report.Skipped))
			},
			watcher.WithLogger(logger),
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond),
		)
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: cordsearch search [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  cordsearch search does smoking increase covid risk
  cordsearch search -k 10 -date-min 2019 -language en "incubation period"
  cordsearch search -output json "transmission in children"
  cordsearch search -server "" masks     # query the caches directly
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// optionalInt is a flag.Value for an int that may be left unset.
type optionalInt struct {
	v *int
}

func (o *optionalInt) String() string {
	if o.v == nil {
		return ""
	}
	return strconv.Itoa(*o.v)
}

func (o *optionalInt) Set(s string) error {
	if strings.EqualFold(s, "none") || s == "" {
		o.v = nil
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%q is not an integer", s)
	}
	o.v = &n
	return nil
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = query the caches directly)")
	var k, dateMin, dateMax optionalInt
	fs.Var(&k, "k", "number of results (default from config)")
	fs.Var(&dateMin, "date-min", "earliest publication year")
	fs.Var(&dateMax, "date-max", "latest publication year")
	language := fs.String("language", "", "language code filter (de, en, es, fr, it, ja, pt, zh)")
	outputFormat := fs.String("output", "text", "output format: text, compact, json or ranked")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	query := &models.SearchQuery{
		Query:    queryStr,
		K:        k.v,
		DateMin:  dateMin.v,
		DateMax:  dateMax.v,
		Language: *language,
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, query)
	} else {
		response, err = searchDirect(*configPath, query)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchDirect(configPath string, query *models.SearchQuery) (*models.SearchResponse, error) {
	cfg, _, logger := setup(configPath, false)
	defer logger.Sync()
	if err := query.Validate(cfg.Search.Limits()); err != nil {
		return nil, err
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.Load(ctx); err != nil {
		return nil, err
	}
	return components.Ask(ctx, query)
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// serverError turns a non-200 response into an error carrying the server's message.
func serverError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// runAsk starts the interactive question loop against the local caches.
func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text, compact, json or ranked")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := components.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load caches: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Corpus size %d\n", components.Engine.Stats().Records)

	session := cli.NewSession(os.Stdin, os.Stdout, cfg.Search.Limits(), format)
	if err := session.Run(ctx, components.Ask); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runRecache() {
	fs := flag.NewFlagSet("recache", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = rebuild the caches directly)")
	force := fs.Bool("force", false, "rebuild even when the corpus source is unchanged")
	_ = fs.Parse(os.Args[2:])

	var report *indexer.Report
	var err error
	if *serverURL != "" {
		report, err = recacheViaHTTP(*serverURL, *force)
	} else {
		report, err = recacheDirect(*configPath, *force)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Recache failed: %v\n", err)
		os.Exit(1)
	}
	if report.Skipped {
		fmt.Printf("Corpus source unchanged; caches kept (generation %s)\n", report.Generation)
		return
	}
	fmt.Printf("Cached %d record(s), dropped %d, generation %s in %s\n",
		report.Load.Kept, report.Load.Dropped(), report.Generation, report.Duration.Round(time.Millisecond))
}

func recacheDirect(configPath string, force bool) (*indexer.Report, error) {
	cfg, _, logger := setup(configPath, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	res, err := components.Indexer.Recache(context.Background(), force)
	if err != nil {
		return nil, err
	}
	return &res.Report, nil
}

func recacheViaHTTP(serverURL string, force bool) (*indexer.Report, error) {
	resp, err := http.Post(serverURL+"/api/v1/recache?force="+strconv.FormatBool(force), "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var out struct {
		Report indexer.Report `json:"report"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out.Report, nil
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Engine         search.Stats           `json:"engine"`
	Cache          *storage.CacheMeta     `json:"cache,omitempty"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the caches directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status *statusResponse
	var err error
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = statusDirect(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeStatusText(os.Stdout, status)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "state:              %s\n", status.Engine.State)
	fmt.Fprintf(w, "records:            %d   # records served by the engine\n", status.Engine.Records)
	fmt.Fprintf(w, "dimensions:         %d\n", status.Engine.Dimensions)
	if status.Engine.Generation != "" {
		fmt.Fprintf(w, "generation:         %s\n", status.Engine.Generation)
	}
	if status.Engine.LastError != "" {
		fmt.Fprintf(w, "last_error:         %s\n", status.Engine.LastError)
	}
	if status.Cache != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# cache")
		fmt.Fprintf(w, "cache_generation:   %s\n", orNone(status.Cache.Generation))
		fmt.Fprintf(w, "cache_records:      %d\n", status.Cache.Records)
		if !status.Cache.CreatedAt.IsZero() {
			fmt.Fprintf(w, "cache_created_at:   %s\n", status.Cache.CreatedAt.Format(time.RFC3339))
		}
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # corpus cache + embedding cache on disk\n", *status.DiskUsageBytes)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func statusDirect(configPath string) (*statusResponse, error) {
	cfg, _, logger := setup(configPath, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.LoadCached(ctx); err != nil {
		logger.Debug("caches not loaded", zap.Error(err))
	}
	meta, err := components.Storage.Meta(ctx)
	if err != nil {
		return nil, err
	}
	status := &statusResponse{Engine: components.Engine.Stats(), Cache: meta}
	if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.VectorsPath); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return status, nil
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// runInitConfig writes a config file holding the built-in defaults.
func runInitConfig() {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	overwrite := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	path := defaultConfigPath
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if err := writeDefaultConfig(path, *overwrite); err != nil {
		fmt.Fprintf(os.Stderr, "init-config failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", path)
}

func writeDefaultConfig(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return config.Save(path, cfg)
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Embedder embedding.Embedder
	Engine   *search.Engine
	Indexer  *indexer.Indexer
}

// Close releases storage and the embedder.
func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// Load brings the engine up from the caches, rebuilding them when they are missing or stale.
func (c *Components) Load(ctx context.Context) error {
	res, err := c.Indexer.LoadOrRecache(ctx)
	if err != nil {
		return err
	}
	return c.Engine.Initialize(res.Store, res.Table)
}

// LoadCached brings the engine up from existing caches only.
func (c *Components) LoadCached(ctx context.Context) error {
	res, err := c.Indexer.LoadCache(ctx)
	if err != nil {
		return err
	}
	return c.Engine.Initialize(res.Store, res.Table)
}

// Ask answers an already validated query.
func (c *Components) Ask(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	spec := filter.Spec{DateMin: q.DateMin, DateMax: q.DateMax, Language: q.Language}
	k := models.DefaultK
	if q.K != nil {
		k = *q.K
	}
	return c.Engine.Ask(ctx, q.Query, spec, k)
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	engine := search.NewEngine(embedder, search.WithLogger(logger))
	idx := indexer.NewIndexer(store, embedder, cfg, indexer.WithLogger(logger))

	return &Components{
		Storage:  store,
		Embedder: embedder,
		Engine:   engine,
		Indexer:  idx,
	}, nil
}

func printUsage() {
	fmt.Println(`cordsearch - Semantic search over the CORD-19 abstracts

Usage:
  cordsearch server [flags]              Start the HTTP server
  cordsearch search [flags] <question>   Ask one question
  cordsearch ask [flags]                 Interactive question prompt
  cordsearch recache [flags]             Rebuild the corpus and embedding caches
  cordsearch status [flags]              Show engine and cache status
  cordsearch init-config [path]          Write a config file with defaults
  cordsearch version                     Show version
  cordsearch help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/cordsearch/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to read the caches directly.
  --k int            Number of results (default from config, 5)
  --date-min int     Earliest publication year
  --date-max int     Latest publication year
  --language string  Language code: de, en, es, fr, it, ja, pt, zh
  --output string    Output format: text, compact, json or ranked (default: text)

Recache Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL; when set the running server rebuilds and reloads
  --force            Rebuild even when the corpus source is unchanged

Status Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct mode.
  --output string    Output format: text or json (default: text)

Examples:
  cordsearch server
  cordsearch search "does smoking increase the risk"
  cordsearch search -k 10 -language en -date-min 2019 incubation period
  cordsearch ask
  cordsearch recache -force
  cordsearch status --output json`)
}
