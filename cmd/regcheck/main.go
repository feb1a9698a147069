// Command regcheck verifies the compliance documents of a checklist against
// the public registries and writes the results spreadsheet. It resumes from
// its checkpoint and restarts the browser after every source failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hazyhaar/regcheck/address"
	"github.com/hazyhaar/regcheck/browser"
	"github.com/hazyhaar/regcheck/checklist"
	"github.com/hazyhaar/regcheck/checkpoint"
	"github.com/hazyhaar/regcheck/classify"
	"github.com/hazyhaar/regcheck/internal/config"
	"github.com/hazyhaar/regcheck/journal"
	"github.com/hazyhaar/regcheck/pipeline"
	"github.com/hazyhaar/regcheck/registry"
	"github.com/hazyhaar/regcheck/standards"
	"github.com/hazyhaar/regcheck/verifier"
)

func main() {
	configPath := flag.String("config", "", "config file (YAML); default: ./regcheck.yaml if present")
	checklistPath := flag.String("checklist", "", "checklist file (.xlsx or .csv)")
	inspector := flag.String("inspector", "", "inspector name written into every result row")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics, /healthz and /progress on this address")
	maxIter := flag.Int("max-iterations", 0, "maximum restart iterations (0 = config value)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var lvl slog.Level
	switch *logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	overrides := map[string]any{}
	if *checklistPath != "" {
		overrides["checklist"] = *checklistPath
	}
	if *inspector != "" {
		overrides["inspector"] = *inspector
	}
	if *metricsAddr != "" {
		overrides["metrics_addr"] = *metricsAddr
	}
	if *maxIter > 0 {
		overrides["max_iterations"] = *maxIter
	}
	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		logger.Error("regcheck: config", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("regcheck: interrupted, progress saved")
			return
		}
		logger.Error("regcheck: stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	comparator := address.Default()
	if cfg.Abbreviations != "" {
		dict, err := address.LoadDictionary(cfg.Abbreviations)
		if err != nil {
			return err
		}
		comparator = address.New(dict)
	}

	feed, err := checklist.OpenFile(cfg.Checklist)
	if err != nil {
		return err
	}
	logger.Info("regcheck: checklist loaded", "path", feed.Path(), "rows", feed.Len())

	jr, err := journal.Open(cfg.Journal)
	if err != nil {
		return err
	}
	defer jr.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := pipeline.NewMetrics(reg)
	progress := &pipeline.Progress{}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newRouter(reg, progress, jr),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("regcheck: operator endpoint", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("regcheck: operator endpoint", "error", err)
			}
		}()
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			srv.Shutdown(shutCtx)
		}()
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Headful:          !cfg.Browser.Headless,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		DownloadDir:      cfg.Browser.DownloadDir,
		Logger:           logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	catalogue := standards.NewHTTPChecker(cfg.Sources.Standards.URL,
		standards.WithTimeout(cfg.Sources.Standards.Timeout),
		standards.WithLogger(logger))

	// Shared across iterations: the spacing and the cache outlive a browser.
	throttle := pipeline.NewThrottle(cfg.RateLimit)
	escalator := pipeline.NewEscalator(cfg.BlockWindow, cfg.Cooldown)
	cache := registry.NewCache()
	cp := checkpoint.New(cfg.Checkpoint)

	factory := func(ctx context.Context, iteration int) (pipeline.Runner, func(), error) {
		docs, err := mgr.NewSession(ctx)
		if err != nil {
			return nil, nil, err
		}
		regs, err := mgr.NewSession(ctx)
		if err != nil {
			docs.Close()
			return nil, nil, err
		}
		release := func() {
			docs.Close()
			regs.Close()
		}

		regCfg := registry.WebConfig{URL: cfg.Sources.Registry.URL, Timeout: cfg.Sources.Registry.Timeout}
		web := registry.NewWebSource(regs, regCfg)
		deps := verifier.Deps{
			Lookup: &registry.Lookup{
				Primary:  web,
				Fallback: registry.NewPDFSource(regs, regCfg),
				Detector: web,
				Observer: metrics,
				Logger:   logger,
			},
			Standards:  standards.NewVerifier(catalogue, logger),
			Comparator: comparator,
			Inspector:  cfg.Inspector,
			Logger:     logger,
		}

		o, err := pipeline.New(pipeline.Config{
			Feed:       feed,
			Results:    cfg.Results,
			Checkpoint: cp,
			Routes: pipeline.Routes{
				classify.Declaration: {
					Verifier: verifier.NewDeclaration(docs, verifier.PortalConfig{
						URL: cfg.Sources.Declaration.URL, ListTimeout: cfg.Sources.Declaration.Timeout,
					}, deps),
					Throttled: true,
				},
				classify.Certificate: {
					Verifier: verifier.NewCertificate(docs, verifier.PortalConfig{
						URL: cfg.Sources.Certificate.URL, ListTimeout: cfg.Sources.Certificate.Timeout,
					}, deps),
					Throttled: true,
				},
				classify.RegistrationRecord: {
					Verifier: verifier.NewRegistration(docs, verifier.RegistrationConfig{
						URL: cfg.Sources.Registration.URL, Timeout: cfg.Sources.Registration.Timeout,
					}, deps),
				},
			},
			Journal:   jr,
			Throttle:  throttle,
			Escalator: escalator,
			Metrics:   metrics,
			Progress:  progress,
			Cache:     cache,
			Logger:    logger.With("iteration", iteration),
		})
		if err != nil {
			release()
			return nil, nil, err
		}
		return o, release, nil
	}

	sup := pipeline.NewSupervisor(pipeline.SupervisorConfig{
		New:           factory,
		Recycle:       mgr.Recycle,
		MaxIterations: cfg.MaxIterations,
		Metrics:       metrics,
		Progress:      progress,
		Logger:        logger,
	})
	sum, err := sup.Run(ctx)
	if err != nil {
		return fmt.Errorf("regcheck: %w", err)
	}
	logger.Info("regcheck: done", "checkpoint", sum.Checkpoint, "results", cfg.Results)
	return nil
}
