package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/dd0wney/cluso-bfi/pkg/config"
	"github.com/dd0wney/cluso-bfi/pkg/health"
	"github.com/dd0wney/cluso-bfi/pkg/logging"
	"github.com/dd0wney/cluso-bfi/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// env carries everything a subcommand needs
type env struct {
	cfg     config.Config
	logger  logging.Logger
	metrics *metrics.Registry
	health  *health.HealthChecker
	index   health.IndexSnapshot
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bfi", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }

	configPath := fs.String("config", "", "YAML config file")
	addressing := fs.String("addressing", "", "Addressing for new files: slot or key")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		printUsage(stderr)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "bfi: %v\n", err)
		return 1
	}
	if *addressing != "" {
		cfg.Addressing = *addressing
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "bfi: %v\n", err)
		return 1
	}

	e := &env{
		cfg:     cfg,
		logger:  cfg.Logger(stderr).With(logging.Component("cli")),
		metrics: metrics.NewRegistry(),
		health:  health.NewHealthChecker(),
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
	if cfg.MetricsAddr != "" {
		e.serveMetrics(cfg.MetricsAddr)
	}

	command, rest := fs.Arg(0), fs.Args()[1:]
	var cmdErr error
	switch command {
	case "index":
		cmdErr = e.cmdIndex(rest)
	case "lookup":
		cmdErr = e.cmdLookup(rest)
	case "get":
		cmdErr = e.cmdGet(rest)
	case "stat":
		cmdErr = e.cmdStat(rest)
	case "verify":
		cmdErr = e.cmdVerify(rest)
	case "delete":
		cmdErr = e.cmdDelete(rest)
	case "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 2
	}

	if cmdErr != nil {
		var usage usageError
		if errors.As(cmdErr, &usage) {
			fmt.Fprintf(stderr, "Usage: bfi %s\n", usage)
			return 2
		}
		fmt.Fprintf(stderr, "bfi %s: %v\n", command, cmdErr)
		return 1
	}
	return 0
}

func (e *env) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	mux.Handle("/health", e.health.HTTPHandler())
	e.health.RegisterCheck("index", health.IndexCheck(&e.index))
	e.health.RegisterCheck("memory", health.MemoryCheck(func() (uint64, uint64) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.HeapAlloc, m.Sys
	}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server failed", logging.String("addr", addr), logging.Error(err))
		}
	}()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for ; ; <-ticker.C {
			e.metrics.UpdateSystemMetrics()
		}
	}()
	e.logger.Info("serving metrics", logging.String("addr", addr))
}

// usageError is returned by a subcommand called with the wrong arguments
type usageError string

func (u usageError) Error() string { return string(u) }

func printUsage(w io.Writer) {
	usage := `bfi - Bloom filter index tool

Usage:
  bfi [flags] <command> [arguments]

Commands:
  index <file> <pk> <value>...   Index one record under primary key pk
  index <file>                   Index "pk value..." lines read from stdin
  lookup <file> <value>...       Print the keys of records holding every value
  get <file> <pk>                Print the values stored under pk
  stat <file>                    Show file statistics
  verify <file>                  Check every slot against its signature
  delete <file> <key>            Delete a record from a key-addressed file

Flags:
  -config FILE        YAML config file (env: BFI_PATH, BFI_READ_ONLY, LOG_LEVEL)
  -addressing MODE    slot (keys kept in <file>.pk) or key (numeric keys)
  -metrics-addr ADDR  Serve /metrics and /health while running
  -log-level LEVEL    debug, info, warn or error
`
	fmt.Fprint(w, usage)
}
