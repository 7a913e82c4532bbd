package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/model"
)

const (
	defaultListenAddr        = model.DefaultListenAddr
	defaultSleepTimeMS       = 1000
	defaultCollectIntervalMS = 15000
	defaultLogLevel          = "info"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI
// entrypoint. Interval settings are milliseconds, matching the adapter's
// historical environment variable contract.
type appConfig struct {
	ListenAddr        string `mapstructure:"listen-addr"`
	HasuraEndpoint    string `mapstructure:"hasura-endpoint"`
	HasuraAdminSecret string `mapstructure:"hasura-admin-secret"`
	LogFile           string `mapstructure:"log-file"`
	SleepTimeMS       int    `mapstructure:"sleep-time"`
	CollectIntervalMS int    `mapstructure:"collect-interval"`
	ExcludeCollectors string `mapstructure:"exclude-collectors"` // ';'-separated variant names
	CommonLabels      string `mapstructure:"common-labels"`      // k=v,k=v
	HistogramBuckets  string `mapstructure:"histogram-buckets"`  // ';'-separated floats
	LogLevel          string `mapstructure:"log-level"`
	RuntimeLogFile    string `mapstructure:"runtime-log-file"`
	ConfigPath        string `mapstructure:"-"` // not from config file

	// Derived at load time.
	Excluded map[string]bool   `mapstructure:"-"`
	Labels   map[string]string `mapstructure:"-"`
	Buckets  []float64         `mapstructure:"-"`
}

func (c appConfig) sleepTime() time.Duration {
	return time.Duration(c.SleepTimeMS) * time.Millisecond
}

func (c appConfig) collectInterval() time.Duration {
	return time.Duration(c.CollectIntervalMS) * time.Millisecond
}

// parseExcludeCollectors validates a ';'-separated exclusion list against
// the known collector names. Duplicates collapse; unknown names fail.
func parseExcludeCollectors(s string) (map[string]bool, error) {
	excluded := make(map[string]bool)
	if strings.TrimSpace(s) == "" {
		return excluded, nil
	}

	known := make(map[string]bool, len(model.CollectorNames()))
	for _, name := range model.CollectorNames() {
		known[name] = true
	}

	for _, part := range strings.Split(s, ";") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if !known[name] {
			return nil, fmt.Errorf("unknown collector %q (known: %s)",
				name, strings.Join(model.CollectorNames(), ", "))
		}
		excluded[name] = true
	}
	return excluded, nil
}

// parseCommonLabels decodes "key=value,key=value" into a label map.
func parseCommonLabels(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	labels := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		pair := strings.SplitN(part, "=", 2)
		if len(pair) != 2 || strings.TrimSpace(pair[0]) == "" {
			return nil, fmt.Errorf("invalid KEY=value pair %q", part)
		}
		labels[strings.TrimSpace(pair[0])] = strings.TrimSpace(pair[1])
	}
	return labels, nil
}

// parseHistogramBuckets decodes a ';'-separated list of upper bounds.
func parseHistogramBuckets(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var buckets []float64
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bucket bound %q: %w", part, err)
		}
		buckets = append(buckets, f)
	}
	return buckets, nil
}
