package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/relay-ops/graphkb/internal/config"
	"github.com/relay-ops/graphkb/internal/gateway"
	"github.com/relay-ops/graphkb/internal/graph"
	"github.com/relay-ops/graphkb/internal/ingest"
	"github.com/relay-ops/graphkb/internal/mcptools"
	"github.com/relay-ops/graphkb/internal/mutation"
	"github.com/relay-ops/graphkb/internal/schema"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ConfigDir   string
	DBPath      string
	SchemaPath  string
	Lenient     bool
	AllowStubs  bool
	Addr        string
	MCPAddr     string
	MetricsAddr string
	ServeStdio  bool
	Version     bool
}

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("graphkb", flag.ContinueOnError)
	fs.StringVar(&flags.ConfigDir, "config-dir", ".", "directory holding graphkb.yml")
	fs.StringVar(&flags.DBPath, "db", "", "database directory (empty: in-memory store)")
	fs.StringVar(&flags.SchemaPath, "schema", "", "schema definitions file (empty: built-in defaults)")
	fs.BoolVar(&flags.Lenient, "lenient", false, "store undeclared properties instead of rejecting them")
	fs.BoolVar(&flags.AllowStubs, "allow-stubs", false, "let edges auto-create missing endpoint nodes")
	fs.StringVar(&flags.Addr, "addr", ":8440", "ingest API listen address")
	fs.StringVar(&flags.MCPAddr, "mcp-addr", ":8441", "MCP server listen address")
	fs.StringVar(&flags.MetricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address")
	fs.BoolVar(&flags.ServeStdio, "serve-mcp", false, "serve MCP tools over stdio instead of HTTP")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(flags.ConfigDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyFlags(cfg, &flags)

	defs, err := loadDefinitions(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	mode := schema.Strict
	if cfg.Lenient {
		mode = schema.Lenient
	}
	reg, err := schema.NewRegistry(defs, mode)
	if err != nil {
		return fmt.Errorf("building schema registry: %w", err)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.InitSchema(ctx, reg.DDL()); err != nil {
		return fmt.Errorf("initializing storage schema: %w", err)
	}

	muts := mutation.New(store, reg, mutation.Config{
		AllowStubNodes: cfg.AllowStubNodes,
		MaxRetries:     cfg.CommitRetries,
	})
	gw := gateway.New(store, reg, gateway.Config{
		DefaultTimeout:  time.Duration(cfg.QueryTimeout) * time.Second,
		DefaultRowLimit: cfg.DefaultLimit,
		MaxRowLimit:     cfg.MaxLimit,
	})
	svc := mcptools.NewGraphService(gw, reg, store)

	go reloadOnHangup(ctx, reg, store, cfg.SchemaPath)

	if flags.ServeStdio {
		return mcptools.RunStdio(ctx, svc)
	}

	ingestSrv := ingest.NewServer(muts, reg, store)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())

	fmt.Printf("graphkb %s: ingest %s, mcp %s, metrics %s\n",
		version, cfg.ListenAddr, cfg.MCPAddr, cfg.MetricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, cfg.ListenAddr, ingestSrv.Handler())
	})
	g.Go(func() error {
		return mcptools.RunMCPServer(gctx, svc, cfg.MCPAddr)
	})
	g.Go(func() error {
		return serveHTTP(gctx, cfg.MetricsAddr, metricsMux)
	})
	return g.Wait()
}

// applyFlags overlays non-default flag values onto the file config and fills
// the remaining blanks with flag defaults.
func applyFlags(cfg *config.ServiceConfig, flags *cliFlags) {
	if flags.DBPath != "" {
		cfg.DBPath = flags.DBPath
	}
	if flags.SchemaPath != "" {
		cfg.SchemaPath = flags.SchemaPath
	}
	if flags.Lenient {
		cfg.Lenient = true
	}
	if flags.AllowStubs {
		cfg.AllowStubNodes = true
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = flags.Addr
	}
	if cfg.MCPAddr == "" {
		cfg.MCPAddr = flags.MCPAddr
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = flags.MetricsAddr
	}
}

func loadDefinitions(path string) (*schema.Definitions, error) {
	if path == "" {
		return schema.DefaultDefinitions(), nil
	}
	return schema.LoadDefinitions(path)
}

// reloadSchema re-reads the definition file and swaps it into the registry,
// then re-runs the storage DDL so newly declared tables exist. A failure
// leaves the previous snapshot active.
func reloadSchema(ctx context.Context, reg *schema.Registry, store graph.Store, path string) error {
	defs, err := loadDefinitions(path)
	if err != nil {
		return err
	}
	if err := reg.Reload(defs); err != nil {
		return err
	}
	return store.InitSchema(ctx, reg.DDL())
}

// reloadOnHangup reloads the schema definitions on SIGHUP until the context
// is cancelled.
func reloadOnHangup(ctx context.Context, reg *schema.Registry, store graph.Store, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloadSchema(ctx, reg, store, path); err != nil {
				fmt.Fprintf(os.Stderr, "schema reload: %v\n", err)
				continue
			}
			fmt.Println("schema definitions reloaded")
		}
	}
}

// openStore selects the storage backend: the embedded database when a path
// is configured, the in-memory store otherwise.
func openStore(dbPath string) (graph.Store, error) {
	if dbPath == "" {
		return graph.NewMemStore(), nil
	}
	return graph.NewKuzuFileStore(dbPath)
}

// serveHTTP runs one HTTP listener until the context is cancelled, then
// shuts it down gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
