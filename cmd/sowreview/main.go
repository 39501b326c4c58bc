// Command sowreview reviews a statement of work with a swarm of specialist
// agents and writes the final report next to the document.
//
// Usage:
//
//	sowreview [flags] <sow_file>
//
// The exit code is 0 when the review completed, 2 when the run was aborted
// or failed (a report is still written) and 1 on setup errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/reviewswarm"
	"github.com/hupe1980/reviewswarm/config"
	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/internal/telemetry"
	"github.com/hupe1980/reviewswarm/logging"
	"github.com/hupe1980/reviewswarm/report"
)

var version = "dev"

type flags struct {
	configPath  string
	provider    string
	model       string
	bedrock     bool
	profile     string
	region      string
	output      string
	trace       bool
	logLevel    string
	logFormat   string
	metricsAddr string
	otlp        string
	timeout     time.Duration
	showVersion bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, sowFile, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "sowreview: %v\n", err)
		return 1
	}
	if f.showVersion {
		fmt.Printf("sowreview %s\n", version)
		return 0
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sowreview: %v\n", err)
		return 1
	}
	applyFlags(cfg, f)

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sowreview: %v\n", err)
		return 1
	}
	if z, ok := logger.(*logging.ZapAdapter); ok {
		defer func() { _ = z.Sync() }()
	}

	model := cfg.Model.Resolved()
	logger.Info("sowreview.start", "version", version, "provider", model.Provider, "model", model.Name, "profile", cfg.AWS.Profile, "region", cfg.AWS.Region)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, cfg.Tracing, func(o *telemetry.Options) { o.Logger = logger })
	if err != nil {
		logger.Error("sowreview.telemetry.failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("sowreview.telemetry.shutdown", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if f.metricsAddr != "" {
		srv := serveMetrics(f.metricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	reviewer, err := reviewswarm.New(cfg, func(o *reviewswarm.Options) {
		o.Logger = logger
		o.Registerer = reg
	})
	if err != nil {
		logger.Error("sowreview.setup.failed", "error", err)
		return 1
	}

	res, err := reviewer.ReviewFile(ctx, sowFile)
	if err != nil {
		logger.Error("sowreview.review.failed", "file", sowFile, "error", err)
		return 1
	}

	out := f.output
	if out == "" {
		out = report.OutputPath(sowFile)
	}
	if err := report.WriteMarkdown(out, res, func(o *report.Options) { o.Trace = f.trace }); err != nil {
		logger.Error("sowreview.report.failed", "path", out, "error", err)
		return 1
	}
	logger.Info("sowreview.report.saved", "path", out, "status", res.Status.String())

	if res.Status != core.StatusCompleted {
		fmt.Printf("Review ended with status %s (%s). Report saved to %s\n", res.Status, res.Reason, out)
		return 2
	}

	fmt.Printf("Review complete. Report saved to %s\n", out)
	return 0
}

func parseFlags(args []string) (flags, string, error) {
	var f flags

	fs := flag.NewFlagSet("sowreview", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to a run configuration file (default: embedded SOW roster)")
	fs.StringVar(&f.provider, "provider", "", "Model provider: ollama, openai, anthropic or bedrock")
	fs.StringVar(&f.model, "model", "", "Model name override")
	fs.BoolVar(&f.bedrock, "bedrock", false, "Use Amazon Bedrock instead of Ollama")
	fs.StringVar(&f.profile, "profile", "", "AWS profile for Bedrock and the pricing server (default: demo)")
	fs.StringVar(&f.region, "region", "", "AWS region (default: us-east-1)")
	fs.StringVar(&f.output, "output", "", "Report path (default: <sow_file base>_review.md)")
	fs.BoolVar(&f.trace, "trace", false, "Append the run trace to the report")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: text or json")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the review runs")
	fs.StringVar(&f.otlp, "otlp-endpoint", "", "Export spans to this OTLP/gRPC endpoint (e.g. localhost:4317)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Bound the whole review (e.g. 30m)")
	fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: sowreview [flags] <sow_file>\n\nReviews a SOW document (PDF or Markdown) with a swarm of specialist agents.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return f, "", err
	}
	if f.showVersion {
		return f, "", nil
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return f, "", errors.New("exactly one SOW file is required")
	}

	return f, fs.Arg(0), nil
}

// applyFlags layers command line choices over the loaded configuration.
func applyFlags(cfg *config.Config, f flags) {
	if f.bedrock {
		cfg.Model.Provider = config.ProviderBedrock
	}
	if f.provider != "" {
		cfg.Model.Provider = f.provider
	}
	if f.bedrock || f.provider != "" {
		// a provider switch invalidates names and endpoints of the old one
		cfg.Model.Name = ""
		cfg.Model.BaseURL = ""
	}
	if f.model != "" {
		cfg.Model.Name = f.model
	}
	if f.profile != "" {
		cfg.AWS.Profile = f.profile
	}
	if f.region != "" {
		cfg.AWS.Region = f.region
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	if f.otlp != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = f.otlp
	}
	if f.timeout > 0 {
		cfg.Run.Timeout = f.timeout
	}
}

func newLogger(cfg config.LoggingConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Backend == "slog" {
		return logging.NewSlogLogger(level, cfg.Format, false), nil
	}
	return logging.NewZapLogger(level, cfg.Format)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("sowreview.metrics.failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("sowreview.metrics.listening", "addr", addr)

	return srv
}
