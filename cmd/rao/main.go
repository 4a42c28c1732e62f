package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/rao-orchestrator/crac"
	"github.com/signalsfoundry/rao-orchestrator/internal/linearnet"
	"github.com/signalsfoundry/rao-orchestrator/internal/logging"
	"github.com/signalsfoundry/rao-orchestrator/internal/observability"
	"github.com/signalsfoundry/rao-orchestrator/internal/orchestrator"
	"github.com/signalsfoundry/rao-orchestrator/internal/params"
)

// Config holds the command line settings of one invocation.
type Config struct {
	ScenarioPath   string
	ParamsPath     string // empty uses params.Default()
	MetricsAddress string // empty disables /metrics
	LogLevel       string
	LogFormat      string
	// Hold keeps the metrics endpoint up after the run until interrupted.
	Hold bool
}

// scenarioFile bundles a catalogue with the network it applies to.
type scenarioFile struct {
	Crac    crac.Document      `yaml:"crac"`
	Network linearnet.Document `yaml:"network"`
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.ScenarioPath, "scenario", "examples/scenario.yaml", "Path to a YAML scenario (crac + network)")
	flag.StringVar(&cfg.ParamsPath, "params", "", "Path to a YAML parameters file")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", "", "HTTP address for Prometheus /metrics")
	flag.StringVar(&cfg.LogLevel, "log-level", os.Getenv("LOG_LEVEL"), "debug, info, warn or error")
	flag.StringVar(&cfg.LogFormat, "log-format", os.Getenv("LOG_FORMAT"), "text or json")
	flag.BoolVar(&cfg.Hold, "hold", false, "keep serving metrics after the run until interrupted")
	flag.Parse()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logging.Err(err))
	}

	err = run(ctx, cfg, log, os.Stdout)
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
	if err != nil {
		log.Error(ctx, "rao failed", logging.Err(err))
		os.Exit(1)
	}
}

// run optimizes the scenario at cfg.ScenarioPath and writes a YAML summary
// to out.
func run(ctx context.Context, cfg Config, log logging.Logger, out io.Writer) error {
	p := params.Default()
	if cfg.ParamsPath != "" {
		loaded, err := params.LoadFile(cfg.ParamsPath)
		if err != nil {
			return err
		}
		p = loaded
	}

	cat, netModel, err := loadScenario(cfg.ScenarioPath)
	if err != nil {
		return err
	}
	log.Info(ctx, "loaded scenario",
		logging.String("path", cfg.ScenarioPath),
		logging.Int("contingencies", len(cat.Contingencies())),
		logging.Int("cnecs", len(cat.Cnecs())),
		logging.Int("network_actions", len(cat.NetworkActions())),
		logging.Int("range_actions", len(cat.RangeActions())),
	)

	collector, err := observability.NewRAOCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics collector: %w", err)
	}
	metricsSrv := serveMetrics(cfg.MetricsAddress, collector, log)
	defer func() {
		if metricsSrv == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	netModel.SeedSetpoints(cat.RangeActions())
	engine := linearnet.NewEngine(netModel)
	orch, err := orchestrator.New(cat, engine, p, log, orchestrator.WithMetricsRecorder(collector))
	if err != nil {
		return err
	}
	res, err := orch.Run(ctx, linearnet.InitialVariant)
	if err != nil {
		return err
	}
	if err := writeSummary(out, cat, res); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if cfg.Hold && metricsSrv != nil {
		log.Info(ctx, "run done, serving metrics until interrupted", logging.String("addr", cfg.MetricsAddress))
		<-ctx.Done()
	}
	return nil
}

func loadScenario(path string) (*crac.Catalogue, *linearnet.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open scenario %q: %w", path, err)
	}
	defer f.Close()

	var doc scenarioFile
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("decode scenario %q: %w", path, err)
	}
	cat := crac.NewCatalogue()
	if _, err := doc.Crac.Apply(cat); err != nil {
		return nil, nil, fmt.Errorf("scenario %q: %w", path, err)
	}
	return cat, doc.Network.Model(), nil
}

func serveMetrics(addr string, collector *observability.RAOCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
