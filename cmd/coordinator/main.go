package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/absmach/flock/coordinator"
	"github.com/absmach/flock/coordinator/api"
	"github.com/absmach/flock/coordinator/middleware"
	"github.com/absmach/flock/pkg/checkpoint"
	"github.com/absmach/flock/pkg/diag"
	"github.com/absmach/flock/pkg/mqtt"
	"github.com/absmach/flock/pkg/prometheus"
	"github.com/absmach/flock/pkg/server"
	httpserver "github.com/absmach/flock/pkg/server/http"
	"github.com/absmach/flock/pkg/storage"
	"github.com/absmach/flock/strategy"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "coordinator"
	defHTTPPort   = "7070"
	envPrefixHTTP = "COORDINATOR_HTTP_"
)

type envConfig struct {
	LogLevel            string        `env:"COORDINATOR_LOG_LEVEL"             envDefault:"info"`
	InstanceID          string        `env:"COORDINATOR_INSTANCE_ID"`
	MQTTAddress         string        `env:"COORDINATOR_MQTT_ADDRESS"          envDefault:"tcp://localhost:1883"`
	MQTTQoS             uint8         `env:"COORDINATOR_MQTT_QOS"              envDefault:"2"`
	MQTTTimeout         time.Duration `env:"COORDINATOR_MQTT_TIMEOUT"          envDefault:"30s"`
	Rounds              uint64        `env:"COORDINATOR_ROUNDS"                envDefault:"3"`
	CallTimeout         time.Duration `env:"COORDINATOR_CALL_TIMEOUT"          envDefault:"1m"`
	MaxWallClock        time.Duration `env:"COORDINATOR_MAX_WALL_CLOCK"        envDefault:"0"`
	MaxConcurrency      int           `env:"COORDINATOR_MAX_CONCURRENCY"       envDefault:"8"`
	MaxIdleRounds       int           `env:"COORDINATOR_MAX_IDLE_ROUNDS"       envDefault:"3"`
	StartDelay          time.Duration `env:"COORDINATOR_START_DELAY"           envDefault:"10s"`
	FractionFit         float64       `env:"COORDINATOR_FRACTION_FIT"          envDefault:"1.0"`
	FractionEvaluate    float64       `env:"COORDINATOR_FRACTION_EVALUATE"     envDefault:"1.0"`
	MinFitClients       int           `env:"COORDINATOR_MIN_FIT_CLIENTS"       envDefault:"2"`
	MinEvaluateClients  int           `env:"COORDINATOR_MIN_EVALUATE_CLIENTS"  envDefault:"2"`
	MinAvailableClients int           `env:"COORDINATOR_MIN_AVAILABLE_CLIENTS" envDefault:"2"`
	CheckpointDir       string        `env:"COORDINATOR_CHECKPOINT_DIR"        envDefault:""`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	tracer := noop.NewTracerProvider().Tracer(svcName)

	mqttPubSub, err := mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, svcName+"-"+cfg.InstanceID, cfg.MQTTTimeout, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

		return
	}

	registry := coordinator.NewRegistry(storage.NewInMemoryStorage())
	diagSink := diag.NewOnce(logger)

	strat, err := strategy.NewFedAvg(
		strategy.WithFractions(cfg.FractionFit, cfg.FractionEvaluate),
		strategy.WithMinClients(cfg.MinFitClients, cfg.MinEvaluateClients, cfg.MinAvailableClients),
		strategy.WithDiagnostics(diagSink),
	)
	if err != nil {
		logger.Error("failed to initialize strategy", slog.String("error", err.Error()))

		return
	}

	opts := []coordinator.CoordinatorOption{coordinator.WithDiagnostics(diagSink)}
	if cfg.CheckpointDir != "" {
		store, err := checkpoint.NewStore(
			filepath.Join(cfg.CheckpointDir, "rounds"),
			filepath.Join(cfg.CheckpointDir, "models"),
		)
		if err != nil {
			logger.Error("failed to initialize checkpoint store", slog.String("error", err.Error()))

			return
		}
		opts = append(opts, coordinator.WithCheckpoints(store))
	}

	svc, err := coordinator.New(cfg.InstanceID, strat, registry, coordinator.Config{
		Rounds:         cfg.Rounds,
		CallTimeout:    cfg.CallTimeout,
		MaxWallClock:   cfg.MaxWallClock,
		MaxConcurrency: cfg.MaxConcurrency,
		MaxIdleRounds:  cfg.MaxIdleRounds,
	}, logger, opts...)
	if err != nil {
		logger.Error("failed to initialize coordinator", slog.String("error", err.Error()))

		return
	}

	membership := coordinator.NewMembership(mqttPubSub, registry, logger)
	if err := membership.Start(ctx); err != nil {
		logger.Error("failed to subscribe to membership topics", slog.String("error", err.Error()))

		return
	}

	var decorated coordinator.Service = svc
	decorated = middleware.Logging(logger, decorated)
	decorated = middleware.Tracing(tracer, decorated)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	decorated = middleware.Metrics(counter, latency, decorated)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(decorated, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.StartDelay):
		}

		if _, err := decorated.Run(ctx); err != nil {
			return err
		}

		return nil
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}
