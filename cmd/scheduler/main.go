// Command scheduler runs the durable task scheduler service and offers
// a few operator subcommands that exercise the same registry and
// parsing code the service uses at runtime.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaypub/scheduler/config"
	"github.com/relaypub/scheduler/internal/health"
	ctxlog "github.com/relaypub/scheduler/internal/log"
	"github.com/relaypub/scheduler/internal/metrics"
	"github.com/relaypub/scheduler/internal/notify"
	"github.com/relaypub/scheduler/internal/publish"
	"github.com/relaypub/scheduler/internal/registry"
	"github.com/relaypub/scheduler/internal/scheduler"
	"github.com/relaypub/scheduler/internal/store/postgres"
	httptransport "github.com/relaypub/scheduler/internal/transport/http"
	"github.com/relaypub/scheduler/internal/transport/http/handler"
)

func main() {
	cmd := "start"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "start":
		runStart()
	case "schedule":
		runSchedule(os.Args[2:])
	case "parse":
		runParse(os.Args[2:])
	case "openapi":
		runOpenAPI()
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [start|schedule|parse|openapi]\n", os.Args[0])
		os.Exit(1)
	}
}

// runStart wires the Task Store, Task Registry, Polling Loop, Execution
// Pipeline, HTTP ingress, metrics, and health checks, then runs until a
// signal arrives. Grounded on the teacher's cmd/scheduler and
// cmd/server mains: signal-derived context, background goroutines per
// long-running component, bounded shutdown window.
func runStart() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, int32(cfg.MaxThreads+2))
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	st := postgres.NewStore(pool)
	reg := registry.New(st)
	notifier := notify.New(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, cfg.AlertTo, logger)

	pub := publish.Publisher(&publish.LogPublisher{Logger: logger})
	if cfg.PubSubProjectID != "" {
		logger.Warn("pubsub project configured but no broker client is wired into this build; publishing will be log-only")
	}

	schedulerCfg := scheduler.Config{
		PollingInterval:        time.Duration(cfg.PollingIntervalSeconds) * time.Second,
		BatchSize:              cfg.BatchSize,
		MaxThreads:             cfg.MaxThreads,
		LeaseTimeout:           time.Duration(cfg.LeaseTimeoutSeconds) * time.Second,
		LeaseHeartbeatInterval: time.Duration(cfg.LeaseHeartbeatIntervalSeconds) * time.Second,
	}

	pipeline := scheduler.NewPipeline(st, pub, logger, schedulerCfg)
	pipeline.Notifier = notifier

	poller := scheduler.NewPoller(st, pipeline, logger, schedulerCfg, "")
	poller.Notifier = notifier
	go poller.Start(ctx)

	scheduleHandler := handler.NewScheduleHandler(reg, logger)
	healthHandler := handler.NewHealthHandler(checker)
	router := httptransport.NewRouter(logger, scheduleHandler, healthHandler, cfg.APIUsername, cfg.APIPassword, []byte(cfg.JWTSecret))

	apiSrv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		logger.Info("api server started", "port", cfg.Port)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server", "error", err)
		}
	}()

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

// runSchedule reads a request JSON document (canonical or legacy shape)
// from a file argument or stdin and submits it through the same
// Registry.Submit path the HTTP ingress uses.
func runSchedule(args []string) {
	raw, err := readRequestInput(args)
	if err != nil {
		log.Fatalf("schedule: %v", err)
	}

	req, err := registry.ParseRequest(raw)
	if err != nil {
		log.Fatalf("schedule: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("schedule: config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		log.Fatalf("schedule: db: %v", err)
	}
	defer pool.Close()

	reg := registry.New(postgres.NewStore(pool))
	task, err := reg.Submit(ctx, req)
	if err != nil {
		log.Fatalf("schedule: %v", err)
	}

	fmt.Printf("scheduled %s/%s for %s\n", task.TaskName, task.TaskInstance, task.ExecutionTime.Format(time.RFC3339))
}

// runParse checks a request JSON document without touching the
// database: it parses it with registry.ParseRequest (JSON shape, base64
// payload, required schedule fields), then re-emits the canonical shape.
// The Submit checks (topic format, empty payload, future one-time
// executionTime, schedule validity) are not run, so a document that
// parses here can still be rejected by the service.
func runParse(args []string) {
	raw, err := readRequestInput(args)
	if err != nil {
		log.Fatalf("parse: %v", err)
	}

	req, err := registry.ParseRequest(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}

	canonical, err := registry.MarshalCanonical(req)
	if err != nil {
		log.Fatalf("parse: %v", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, canonical, "", "  "); err != nil {
		fmt.Println(string(canonical))
		return
	}
	fmt.Println(pretty.String())
}

func readRequestInput(args []string) ([]byte, error) {
	if len(args) > 0 {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}

// runOpenAPI prints a static OpenAPI 3 document describing the ingress
// JSON shape, so operators and service clients can build requests
// without reading the Go source.
func runOpenAPI() {
	fmt.Println(openAPIDocument)
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
