package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/op/go-logging"

	"pricefeed/api"
	"pricefeed/automation"
	"pricefeed/config"
	"pricefeed/database"
	"pricefeed/ingest"
	"pricefeed/loader"
	"pricefeed/metrics"
)

var log = logging.MustGetLogger("main")

// InitLogger installs the formatted backend at the given level name
// (DEBUG, INFO, WARNING, ...).
func InitLogger(logLevel string) error {
	baseBackend := logging.NewLogBackend(os.Stdout, "", 0)
	format := logging.MustStringFormatter(
		`%{time:2006-01-02 15:04:05} %{level:.5s} %{module:-10s} %{message}`,
	)
	backendFormatter := logging.NewBackendFormatter(baseBackend, format)

	backendLeveled := logging.AddModuleLevel(backendFormatter)
	logLevelCode, err := logging.LogLevel(logLevel)
	if err != nil {
		return err
	}
	backendLeveled.SetLevel(logLevelCode, "")
	logging.SetBackend(backendLeveled)
	return nil
}

// newFetcher picks the file source for the configured fetch mode. The
// returned func releases it.
func newFetcher(cfg config.Config) (ingest.Fetcher, func(), error) {
	switch cfg.FetchMode {
	case config.FetchHTTP:
		return automation.NewHTTPFetcher(cfg.FetchBaseURL), func() {}, nil
	case config.FetchBrowser:
		f := automation.NewBrowserFetcher(cfg.FetchBaseURL, cfg.Headless)
		return f, func() {
			if err := f.Close(); err != nil {
				log.Warningf("failed to close browser: %v", err)
			}
		}, nil
	case config.FetchDir:
		return automation.DirFetcher{Dir: cfg.DownloadDir}, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown fetch mode %q", cfg.FetchMode)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "WARN: failed to load .env: %v\n", err)
	}

	configPath := os.Getenv("PRICEFEED_CONFIG")
	if configPath == "" {
		configPath = config.DefaultPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := InitLogger(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	log.Debugf("config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Connecting to database...")
	store, err := database.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("database open error: %v", err)
	}
	defer store.Close()
	log.Infof("Database ready at %s", cfg.DatabasePath)

	f, closeFetcher, err := newFetcher(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeFetcher()

	m := metrics.New()
	orchestrator := ingest.New(store, f, ingest.Options{
		Workers:      cfg.Workers,
		FetchTimeout: cfg.FetchTimeout,
		Metrics:      m,
	})

	catalogDir := "."
	if cfg.CatalogPath != "" {
		catalogDir = filepath.Dir(cfg.CatalogPath)
		go runCatalog(ctx, orchestrator, cfg.CatalogPath)
	}

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.NewRouter(api.RouterParams{
			Queries:     store,
			Ingester:    orchestrator,
			Metrics:     m,
			TopProducts: cfg.TopProducts,
			CatalogDir:  catalogDir,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warningf("server shutdown: %v", err)
		}
	}()

	log.Infof("Starting server on %s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server start error: %v", err)
	}
	log.Info("Server stopped")
}

// runCatalog ingests the configured catalog once at startup.
func runCatalog(ctx context.Context, o *ingest.Orchestrator, path string) {
	catalogs, err := loader.LoadCatalog(path)
	if err != nil {
		log.Errorf("catalog %s not ingested: %v", path, err)
		return
	}
	report, err := o.Run(ctx, catalogs)
	if err != nil {
		log.Errorf("startup ingest failed: %v", err)
		return
	}
	log.Infof("startup ingest %s: %d branches, %d errors", report.RunID, len(report.Branches), report.ErrorCount())
}
