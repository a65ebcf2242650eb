// Command ingestord is the environmental-sensor ingestion and forecast
// training daemon: it periodically pulls OpenSenseMap measurements into
// TimescaleDB, and on a daily cron trains short-horizon forecast models
// against the accumulated series (spec §6).
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/Datata1/umweltmonitoring/internal/clock"
	"github.com/Datata1/umweltmonitoring/internal/config"
	"github.com/Datata1/umweltmonitoring/internal/features"
	"github.com/Datata1/umweltmonitoring/internal/fetch"
	"github.com/Datata1/umweltmonitoring/internal/ingest"
	"github.com/Datata1/umweltmonitoring/internal/obslog"
	"github.com/Datata1/umweltmonitoring/internal/obsmetrics"
	"github.com/Datata1/umweltmonitoring/internal/obstrace"
	"github.com/Datata1/umweltmonitoring/internal/osm"
	"github.com/Datata1/umweltmonitoring/internal/registry"
	"github.com/Datata1/umweltmonitoring/internal/schedule"
	"github.com/Datata1/umweltmonitoring/internal/store"
	"github.com/Datata1/umweltmonitoring/internal/train"
	"github.com/Datata1/umweltmonitoring/internal/watermark"
	"github.com/Datata1/umweltmonitoring/internal/weather"
)

// exit codes per spec §6.
const (
	exitOK            = 0
	exitFatalInit     = 1
	exitScheduleFatal = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("fatal: config load: %v", err)
		return exitFatalInit
	}

	log_ := obslog.New(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	shutdownTracing, err := obstrace.InitProvider("ingestord", envOrDefault("ENVIRONMENT", "development"))
	if err != nil {
		log_.ErrorCtx(ctx, "tracer provider init failed", "error", err)
		return exitFatalInit
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	metrics := obsmetrics.New()
	clk := clock.Real()

	st, err := store.Open(ctx, cfg.DatabaseURL, clk)
	if err != nil {
		log_.ErrorCtx(ctx, "store open failed", "error", err)
		return exitFatalInit
	}
	defer func() { _ = st.Close() }()

	overridesWatcher, err := config.NewWatcher(ctx, envOrDefault("OVERRIDES_PATH", "/etc/ingestord/overrides.yaml"), log_)
	if err != nil {
		log_.WarnCtx(ctx, "overrides watcher init failed, continuing with static config", "error", err)
	}
	if overridesWatcher != nil {
		overridesWatcher.Current().Apply(cfg)
	}

	osmClient := osm.New()
	weatherOpts := []weather.Option{}
	if u := os.Getenv("WEATHER_BASE_URL"); u != "" {
		weatherOpts = append(weatherOpts, weather.WithBaseURL(u))
	}
	weatherClient := weather.New(cfg.SensorLatitude, cfg.SensorLongitude, weatherOpts...)

	fetcher := fetch.New(osmClient, st, log_, metrics)
	wm := watermark.New(clk, time.Duration(cfg.InitialTimeWindowDays)*24*time.Hour)
	ingestOrchestrator := ingest.New(osmClient, st, fetcher, wm, clk, log_, metrics, cfg.FetchTimeWindowDays, cfg.IngestWorkers)

	trainOrchestrator := train.New(st, weatherClient, clk, log_, metrics, train.Config{
		TargetSensorID:    cfg.TargetSensorID,
		Horizon:           cfg.ForecastHorizon,
		HistoryWeeks:      26,
		BaseArtifactDir:   cfg.ModelPath,
		Location:          cfg.Location,
		Geo:               features.Geo{Latitude: cfg.SensorLatitude, Longitude: cfg.SensorLongitude},
		CVFolds:           3,
		Workers:           cfg.TrainingWorkers,
		RetrainOnFullData: true,
	})

	reg := registry.New(st)

	sched := schedule.New(
		ingestRunnerAdapter{ingestOrchestrator},
		trainRunnerAdapter{trainOrchestrator},
		st,
		log_,
		cfg.SensorBoxID,
		cfg.IngestInterval,
		cfg.TrainingCron,
	)

	if err := sched.Start(ctx); err != nil {
		log_.ErrorCtx(ctx, "scheduler start failed", "error", err)
		return exitScheduleFatal
	}
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	// Minimal operator-facing surface over the registry; the full
	// forecast-serving read API is out of scope (spec non-goals).
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		active, err := reg.ListActive(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(active)
	})
	httpSrv := &http.Server{Addr: envOrDefault("METRICS_ADDR", ":9090"), Handler: mux}
	go func() {
		log_.InfoCtx(ctx, "metrics server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log_.ErrorCtx(ctx, "metrics server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh
	log_.InfoCtx(ctx, "signal received, shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	return exitOK
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ingestRunnerAdapter narrows ingest.Orchestrator.Run's richer Outcome down
// to the summary schedule.IngestRunner needs to decide whether to chain
// into a training run.
type ingestRunnerAdapter struct{ o *ingest.Orchestrator }

func (a ingestRunnerAdapter) Run(ctx context.Context, boxID string) (schedule.IngestOutcome, error) {
	outcome, err := a.o.Run(ctx, boxID)
	if err != nil {
		return schedule.IngestOutcome{}, err
	}
	return schedule.IngestOutcome{IsNew: outcome.IsNew, FullySucceeded: outcome.FullySucceeded}, nil
}

// trainRunnerAdapter discards the richer train.RunResult, since the
// scheduler only needs to know whether the run failed.
type trainRunnerAdapter struct{ o *train.Orchestrator }

func (a trainRunnerAdapter) Run(ctx context.Context) error {
	_, err := a.o.Run(ctx)
	return err
}
