// Package main implements retryfetch, a command that fetches JSON documents over
// HTTP with retries and cancels every outstanding fetch on timeout or interrupt.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bjaus/retryable"
	"github.com/bjaus/retryable/config"
	"github.com/bjaus/retryable/httpretry"
	"github.com/bjaus/retryable/logger"
	"github.com/bjaus/retryable/metrics"
)

const (
	appName           = "retryfetch"
	metricsNamespace  = "retryfetch"
	reasonInterrupted = "interrupted"
)

var errFetchFailed = errors.New("one or more fetches failed")

// result is the line printed for one URL. Attempts counts completed attempts; one
// abandoned by a cancellation is not included.
type result struct {
	URL      string `json:"url"`
	OK       bool   `json:"ok"`
	Attempts int    `json:"attempts"`
	Payload  any    `json:"payload,omitempty"`
	Error    string `json:"error,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, errFetchFailed) {
			_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		}
		os.Exit(1)
	}
}

// run fetches every URL in args. Cancelling ctx cancels the shared signal with
// reason "interrupted".
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, cli)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	log := logger.NewWithWriter(stderr, cfg.Log.Level, cfg.Log.Pretty)

	m := metrics.New(metricsNamespace)
	if cli.MetricsAddr != "" {
		shutdown, err := serveMetrics(cli.MetricsAddr, m, log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	sig := retryable.NewSignal()
	if cfg.Retry.Timeout > 0 {
		sig.TimeoutAfter(cfg.Retry.Timeout)
	}
	stopInterrupt := context.AfterFunc(ctx, func() {
		log.Warn().Msg("interrupted, cancelling fetches")
		sig.Cancel(reasonInterrupted)
	})
	defer stopInterrupt()

	client := httpretry.NewClient(cfg.ClientOptions(log)...)
	results := fetchAll(client, sig, m, cli.URLs, cli.Parallel)

	enc := json.NewEncoder(stdout)
	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}

	log.Info().Int("urls", len(results)).Int("failed", failed).Msg("done")
	if failed > 0 {
		return errFetchFailed
	}
	return nil
}

func applyOverrides(cfg *config.Config, cli *cliConfig) {
	if cli.set["log-level"] {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.set["pretty"] {
		cfg.Log.Pretty = cli.Pretty
	}
	if cli.set["timeout"] {
		cfg.Retry.Timeout = cli.Timeout
	}
}

// fetchAll fetches urls in parallel and returns their results in input order.
func fetchAll(client *httpretry.Client, sig *retryable.Signal, m *metrics.Metrics, urls []string, parallel int) []result {
	results := make([]result, len(urls))

	// The context carries no deadline; every fetch ends through sig.
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, url := range urls {
		g.Go(func() error {
			var failures atomic.Int32
			payload, err := client.Get(context.Background(), url, nil,
				retryable.WithSignal(sig),
				m.Option(appName),
				retryable.OnError(func(context.Context, int, error) {
					failures.Add(1)
				}),
			)
			r := result{URL: url, Attempts: int(failures.Load())}
			if err != nil {
				r.Error = err.Error()
				r.Reason, _ = retryable.ReasonOf(err)
			} else {
				r.OK = true
				r.Attempts++
				r.Payload = payload
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// serveMetrics exposes m on addr and returns a function that stops the server.
func serveMetrics(addr string, m *metrics.Metrics, log zerolog.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	var wg sync.WaitGroup
	wg.Go(func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	})
	log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		wg.Wait()
	}, nil
}
