package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (optional; environment variables take precedence)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("hasura-metrics-adapter\n")
		fmt.Printf("  Version: %s\n", version)
		fmt.Printf("  Commit:  %s\n", commit)
		fmt.Printf("  Built:   %s\n", buildTime)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	v := viper.New()

	v.SetDefault("listen-addr", defaultListenAddr)
	v.SetDefault("sleep-time", defaultSleepTimeMS)
	v.SetDefault("collect-interval", defaultCollectIntervalMS)
	v.SetDefault("log-level", defaultLogLevel)

	// The environment contract predates this implementation; the names
	// are bound explicitly instead of derived from the keys.
	envBindings := map[string]string{
		"listen-addr":         "LISTEN_ADDR",
		"hasura-endpoint":     "HASURA_GRAPHQL_ENDPOINT",
		"hasura-admin-secret": "HASURA_GRAPHQL_ADMIN_SECRET",
		"log-file":            "LOG_FILE",
		"sleep-time":          "SLEEP_TIME",
		"collect-interval":    "COLLECT_INTERVAL",
		"exclude-collectors":  "EXCLUDE_COLLECTORS",
		"common-labels":       "COMMON_LABELS",
		"histogram-buckets":   "HISTOGRAM_BUCKETS",
		"log-level":           "LOG_LEVEL",
		"runtime-log-file":    "RUNTIME_LOG_FILE",
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return cfg, err
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return cfg, err
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	return cfg, validateConfig(&cfg)
}

// validateConfig enforces the required settings and resolves the derived
// fields. Any failure here aborts startup with a descriptive message.
func validateConfig(cfg *appConfig) error {
	if cfg.LogFile == "" {
		return errors.New("log-file is required (set LOG_FILE to the engine's log stream path)")
	}
	if cfg.HasuraEndpoint == "" {
		return errors.New("hasura-endpoint is required (set HASURA_GRAPHQL_ENDPOINT)")
	}
	if cfg.HasuraAdminSecret == "" {
		return errors.New("hasura-admin-secret is required (set HASURA_GRAPHQL_ADMIN_SECRET)")
	}
	if cfg.SleepTimeMS <= 0 {
		return fmt.Errorf("sleep-time must be positive milliseconds, got %d", cfg.SleepTimeMS)
	}
	if cfg.CollectIntervalMS <= 0 {
		return fmt.Errorf("collect-interval must be positive milliseconds, got %d", cfg.CollectIntervalMS)
	}

	var err error
	if cfg.Excluded, err = parseExcludeCollectors(cfg.ExcludeCollectors); err != nil {
		return fmt.Errorf("exclude-collectors: %w", err)
	}
	if cfg.Labels, err = parseCommonLabels(cfg.CommonLabels); err != nil {
		return fmt.Errorf("common-labels: %w", err)
	}
	if cfg.Buckets, err = parseHistogramBuckets(cfg.HistogramBuckets); err != nil {
		return fmt.Errorf("histogram-buckets: %w", err)
	}
	return nil
}
