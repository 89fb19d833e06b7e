package main

import (
	"flag"
	"fmt"
	"io"
	"time"
)

const defaultParallel = 8

// cliConfig holds command-line configuration
type cliConfig struct {
	ConfigPath  string
	LogLevel    string
	Pretty      bool
	Timeout     time.Duration
	MetricsAddr string
	Parallel    int
	URLs        []string

	// set records which flags were given explicitly, so that only those override
	// the loaded configuration.
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*cliConfig, error) {
	cfg := &cliConfig{set: make(map[string]bool)}

	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigPath, "config", "",
		"Path to a YAML configuration file (env: RETRYABLE_* overrides it)")
	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: trace, debug, info, warn, error")
	fs.BoolVar(&cfg.Pretty, "pretty", false,
		"Human readable console logs")
	fs.DurationVar(&cfg.Timeout, "timeout", 0,
		"Cancel every fetch after this long, 0 to disable")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address, empty to disable")
	fs.IntVar(&cfg.Parallel, "parallel", defaultParallel,
		"Maximum number of URLs fetched at once")

	fs.Usage = func() {
		printUsage(fs, stderr)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		cfg.set[f.Name] = true
	})

	cfg.URLs = fs.Args()
	if len(cfg.URLs) == 0 {
		fs.Usage()
		return nil, fmt.Errorf("at least one URL is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("invalid timeout: %s", cfg.Timeout)
	}
	if cfg.Parallel < 1 {
		return nil, fmt.Errorf("invalid parallel: %d", cfg.Parallel)
	}
	return cfg, nil
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - fetch JSON with retries

Usage: %s [options] URL...

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Every URL is fetched in parallel and reported as one JSON line on stdout.
SIGINT or SIGTERM cancels all fetches still running.

Examples:
  # Five attempts, exponential backoff from the environment
  RETRYABLE_RETRY_MAXATTEMPTS=5 RETRYABLE_RETRY_BACKOFF=exponential \
  RETRYABLE_RETRY_DELAY=200ms %s https://example.com/status

  # Give up on everything after ten seconds
  %s -timeout=10s https://a.example/x https://b.example/y
`, appName, appName)
}
