package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/collector"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/hasura"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/httpserver"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/ingest"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/logger"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/logsource"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/poller"
	"github.com/tinytelemetry/hasura-metrics-adapter/internal/telemetry"
)

// runServer wires the registry, collectors, tailer, poller and scrape
// server together and runs until interrupted.
func runServer(cfg appConfig) error {
	log, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.RuntimeLogFile})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	registry := telemetry.New(cfg.Labels, cfg.Buckets)

	set, err := collector.NewSet(registry, cfg.Excluded)
	if err != nil {
		return fmt.Errorf("building collectors: %w", err)
	}

	processor, err := ingest.NewProcessor(registry, set, log)
	if err != nil {
		return fmt.Errorf("building ingest processor: %w", err)
	}

	client := hasura.NewClient(cfg.HasuraEndpoint, cfg.HasuraAdminSecret, nil)
	metadataPoller, err := poller.New(registry, client, set, cfg.collectInterval(), log)
	if err != nil {
		return fmt.Errorf("building poller: %w", err)
	}

	scrapeServer := httpserver.NewServer(cfg.ListenAddr, registry)
	if err := scrapeServer.Start(); err != nil {
		return fmt.Errorf("starting scrape server: %w", err)
	}
	defer scrapeServer.Stop()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down gracefully")
		cancel()

		// Shutdown deadline starts now — not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			log.Warn("forced shutdown")
		case <-deadline.C:
			log.Warn("shutdown timed out, forcing exit")
		}
		os.Exit(1)
	}()

	source := logsource.NewFileSource(ctx, cfg.LogFile, log, logsource.FileConfig{
		SleepTime: cfg.sleepTime(),
	})

	printStartupBanner(cfg, set)
	log.Info("hasura-metrics-adapter started",
		zap.String("listen", cfg.ListenAddr),
		zap.String("endpoint", cfg.HasuraEndpoint),
		zap.String("log_file", cfg.LogFile))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		processor.Run(source.Lines())
		return nil
	})

	g.Go(func() error {
		metadataPoller.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("errgroup exited with error", zap.Error(err))
	}

	cancel()
	source.Stop()
	signal.Stop(sigCh)

	return nil
}

func printStartupBanner(cfg appConfig, set *collector.Set) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	enabled := make(map[string]bool)
	for _, c := range set.LogCollectors() {
		enabled[c.Name()] = true
	}
	for _, c := range set.SnapshotCollectors() {
		enabled[c.Name()] = true
	}
	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, bold.Render("  hasura-metrics-adapter ")+dim.Render("v"+version))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("  %s  Scrape endpoint  %s", check, cyan.Render("http://"+cfg.ListenAddr+"/metrics")))
	lines = append(lines, fmt.Sprintf("  %s  Engine endpoint  %s", check, cyan.Render(cfg.HasuraEndpoint)))
	lines = append(lines, fmt.Sprintf("  %s  Engine log       %s", check, dim.Render(cfg.LogFile)))
	lines = append(lines, "")
	lines = append(lines, bold.Render("  Collectors"))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("  %s  %s", check, name))
	}
	excluded := make([]string, 0, len(cfg.Excluded))
	for name := range cfg.Excluded {
		excluded = append(excluded, name)
	}
	sort.Strings(excluded)
	for _, name := range excluded {
		lines = append(lines, fmt.Sprintf("  %s  %s %s", dot, name, dim.Render("(excluded)")))
	}
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}
