package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/a3tai/subsidy-form-filler/internal/config"
	"github.com/a3tai/subsidy-form-filler/internal/httpapi"
	"github.com/a3tai/subsidy-form-filler/internal/logging"
	"github.com/a3tai/subsidy-form-filler/internal/mcp"
	"github.com/a3tai/subsidy-form-filler/internal/pdf"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/document"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/filler"
	"github.com/a3tai/subsidy-form-filler/internal/registry"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// memoryDSN selects the non-persistent registry
const memoryDSN = ":memory:"

// app holds everything main wires together
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *pdf.Service
	files   *registry.FileBlobs
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
}

// openStore returns the template store configured by cfg, plus its closer
func openStore(cfg *config.Config) (registry.Store, func() error, error) {
	path := cfg.RegistryPath()
	if path == memoryDSN {
		return registry.NewMemoryStore(), func() error { return nil }, nil
	}
	store, err := registry.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// newApp builds the service graph for cfg
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := document.InstallFonts(cfg.FontFiles); err != nil {
		return nil, err
	}
	if !document.FontSupported(cfg.FontName) {
		return nil, fmt.Errorf("font %q is neither a standard PDF font nor an installed TrueType font", cfg.FontName)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	files, err := registry.NewFileBlobs(cfg.TemplateDirectory)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.files = files

	if cfg.MappingsFile != "" {
		n, err := registry.Seed(ctx, store, files, cfg.MappingsFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to seed registry from %s: %w", cfg.MappingsFile, err)
		}
		logger.Info("seeded template registry", zap.String("file", cfg.MappingsFile), zap.Int("templates", n))
	}

	f := filler.New(logger.Named("filler"), filler.Options{
		FontName:   cfg.FontName,
		FontSize:   cfg.FontSize,
		LineHeight: cfg.LineHeight,
	})
	a.service, err = pdf.NewService(logger.Named("service"), cfg.MaxFileSize, store, files, f)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// runServerMode serves the HTTP API until a signal arrives
func runServerMode(ctx context.Context, a *app) error {
	router := httpapi.NewRouter(a.service, a.logger.Named("http"))
	return httpapi.Serve(ctx, a.cfg.Address(), router, a.logger)
}

// runStdioMode serves MCP over stdin/stdout; the parent process controls
// our lifecycle.
func runStdioMode(ctx context.Context, a *app) error {
	server, err := mcp.NewServer(a.cfg, a.service, a.files, a.logger.Named("mcp"))
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.IsServerMode() {
		logger.Info("starting", zap.String("config", cfg.String()))
		return runServerMode(ctx, a)
	}
	return runStdioMode(ctx, a)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if version != "dev" {
		cfg.Version = version
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	err = run(cfg, logger)
	if err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Subsidy Form Filler\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
