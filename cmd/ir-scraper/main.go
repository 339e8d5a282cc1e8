package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"ir-scraper/pkg/catalog"
	"ir-scraper/pkg/config"
	"ir-scraper/pkg/dedupe"
	"ir-scraper/pkg/extract"
	"ir-scraper/pkg/fetch"
	"ir-scraper/pkg/models"
	"ir-scraper/pkg/run"
)

const appVersion = "0.3.0"

// databaseURLEnv overrides the YAML database_url field when set.
const databaseURLEnv = "IR_SCRAPER_DATABASE_URL"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCommand(os.Args[2:], log))
	case "validate":
		os.Exit(validateCommand(os.Args[2:], log))
	case "version":
		fmt.Printf("ir-scraper %s\n", appVersion)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: ir-scraper <command> [flags]

Commands:
  run       Crawl the due companies and catalog their presentations
  validate  Load and validate a config file, then exit
  version   Print the version
`)
}

func runCommand(args []string, log *logrus.Logger) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFlag := fs.String("config", "config.yaml", "Path to YAML config file")
	logLevelFlag := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	metricsFlag := fs.String("metrics", "", "Address for the Prometheus /metrics endpoint (empty to disable)")
	companiesFlag := fs.String("companies", "", "JSON file of companies; runs without a database when set")
	fs.Parse(args)

	if level, err := logrus.ParseLevel(*logLevelFlag); err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", *logLevelFlag, err)
	} else {
		log.SetLevel(level)
	}

	// .env is optional; environment variables win either way.
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded environment from .env file")
	}

	cfg, err := loadConfig(*configFlag, log)
	if err != nil {
		log.Errorf("Configuration error: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(cancel, log)

	mainLog := log.WithField("component", "main")

	// Catalog: Postgres when a database URL is configured, otherwise an
	// in-memory catalog seeded from the -companies file.
	var directory catalog.Directory
	var store catalog.Store
	switch {
	case *companiesFlag != "":
		companies, err := loadCompanies(*companiesFlag)
		if err != nil {
			mainLog.Errorf("Failed to load companies file: %v", err)
			return 1
		}
		mem := catalog.NewMemoryCatalog(companies, cfg.RescheduleAfter, nil)
		directory, store = mem, mem
		mainLog.Infof("Using in-memory catalog with %d companies from %s", len(companies), *companiesFlag)
	case cfg.DatabaseURL != "":
		pg, err := catalog.Connect(ctx, cfg.DatabaseURL, cfg.RescheduleAfter, log.WithField("component", "catalog"))
		if err != nil {
			mainLog.Errorf("Failed to connect to catalog database: %v", err)
			return 1
		}
		defer pg.Close()
		directory, store = pg, pg
	default:
		mainLog.Errorf("No catalog configured: set %s (or database_url in config), or pass -companies", databaseURLEnv)
		return 1
	}

	seen, err := dedupe.NewBadgerStore(cfg.StateDir, log.WithField("component", "dedupe"))
	if err != nil {
		mainLog.Errorf("Failed to open dedupe store: %v", err)
		return 1
	}
	defer seen.Close()

	httpClient := fetch.NewClient(cfg.HTTPClientSettings, log)
	fetcher := fetch.NewFetcher(httpClient, cfg.MaxRetries, cfg.RetryDelay, log)
	rateLimiter := fetch.NewRateLimiter(cfg.DelayPerHost, log)
	guard := fetch.NewPolitenessGuard(fetcher, rateLimiter, cfg.RobotsTimeout, cfg.UserAgent, log.WithField("component", "robots"))
	httpPages := fetch.NewHTTPFetcher(fetcher, rateLimiter, cfg.UserAgent, cfg.ProbeTimeout, log.WithField("component", "fetch"))

	var pages fetch.PageFetcher = httpPages
	if cfg.UseBrowser {
		browser, err := fetch.NewBrowserFetcher(ctx, httpPages, log.WithField("component", "browser"))
		if err != nil {
			mainLog.Errorf("Failed to start headless browser: %v", err)
			return 1
		}
		defer browser.Close()
		pages = browser
	}

	metrics := run.NewMetrics()
	if *metricsFlag != "" {
		serveMetrics(*metricsFlag, metrics, log)
	}

	classifier := extract.NewClassifier(cfg.Strategy)
	extractor := extract.NewMetadataExtractor(cfg.Strategy, nil, log.WithField("component", "extract"))
	crawler := run.NewCrawler(cfg, guard, pages, classifier, extractor, seen, store, metrics, log.WithField("component", "crawler"))
	orchestrator := run.NewBatchOrchestrator(cfg, directory, store, crawler, metrics, log.WithField("component", "orchestrator"))

	stats, err := orchestrator.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			mainLog.Warn("Run cancelled gracefully.")
			return 0
		}
		mainLog.Errorf("Run failed: %v", err)
		return 1
	}

	mainLog.Infof("Run %s finished: %d succeeded, %d failed, %d presentations saved",
		stats.RunID, stats.Succeeded, stats.Failed, stats.PresentationsSaved)
	return 0
}

func validateCommand(args []string, log *logrus.Logger) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFlag := fs.String("config", "config.yaml", "Path to YAML config file")
	fs.Parse(args)

	if _, err := loadConfig(*configFlag, log); err != nil {
		log.Errorf("Configuration error: %v", err)
		return 1
	}
	log.Infof("Configuration %s is valid", *configFlag)
	return 0
}

// loadConfig reads and validates the YAML config, applying the database URL
// from the environment when present.
func loadConfig(path string, log *logrus.Logger) (*config.AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file '%s': %w", path, err)
	}
	var cfg config.AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file '%s': %w", path, err)
	}

	if envURL := os.Getenv(databaseURLEnv); envURL != "" {
		cfg.DatabaseURL = envURL
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return nil, err
	}

	log.Infof("Config: concurrency %d, batch %d, retries %d, browser %t, state dir %s",
		cfg.MaxConcurrency, cfg.BatchSize, cfg.MaxRetries, cfg.UseBrowser, cfg.StateDir)
	return &cfg, nil
}

func loadCompanies(path string) ([]models.Company, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var companies []models.Company
	if err := json.Unmarshal(data, &companies); err != nil {
		return nil, fmt.Errorf("parse companies file '%s': %w", path, err)
	}
	return companies, nil
}

func installSignalHandler(cancel context.CancelFunc, log *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()
		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()
}

func serveMetrics(addr string, metrics *run.Metrics, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	go func() {
		log.Infof("Serving Prometheus metrics on http://%s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()
}
