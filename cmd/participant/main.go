package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/flock/client"
	"github.com/absmach/flock/participant"
	"github.com/absmach/flock/pkg/codec"
	"github.com/absmach/flock/pkg/mqtt"
	"github.com/caarlos0/env/v11"
	"golang.org/x/sync/errgroup"
)

const svcName = "participant"

var namegen = namegenerator.NewGenerator()

type envConfig struct {
	LogLevel         string        `env:"PARTICIPANT_LOG_LEVEL"         envDefault:"info"`
	ClientID         string        `env:"PARTICIPANT_CLIENT_ID"`
	MQTTAddress      string        `env:"PARTICIPANT_MQTT_ADDRESS"      envDefault:"tcp://localhost:1883"`
	MQTTQoS          uint8         `env:"PARTICIPANT_MQTT_QOS"          envDefault:"2"`
	MQTTTimeout      time.Duration `env:"PARTICIPANT_MQTT_TIMEOUT"      envDefault:"30s"`
	LivenessInterval time.Duration `env:"PARTICIPANT_LIVENESS_INTERVAL" envDefault:"10s"`
	DataSeed         int64         `env:"PARTICIPANT_DATA_SEED"         envDefault:"1"`
	WasmPath         string        `env:"PARTICIPANT_WASM_PATH"         envDefault:""`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.ClientID == "" {
		cfg.ClientID = namegen.Generate()
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

	mqttPubSub, err := mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, cfg.ClientID, cfg.MQTTTimeout, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

		return
	}

	var c client.Client
	switch {
	case cfg.WasmPath != "":
		binary, err := os.ReadFile(cfg.WasmPath)
		if err != nil {
			logger.Error("failed to read wasm module", slog.String("error", err.Error()))

			return
		}
		wc, err := participant.NewWasmClient(ctx, binary)
		if err != nil {
			logger.Error("failed to initialize wasm client", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := wc.Close(context.Background()); err != nil {
				logger.Error("failed to close wasm client", slog.String("error", err.Error()))
			}
		}()
		c = wc
	default:
		dense, err := codec.Lookup(codec.TypeDense)
		if err != nil {
			logger.Error("failed to look up codec", slog.String("error", err.Error()))

			return
		}
		c = client.FromArrayClient(participant.NewLinearClient(cfg.DataSeed), dense)
	}

	svc, err := participant.NewService(ctx, cfg.ClientID, c, cfg.LivenessInterval, mqttPubSub, logger)
	if err != nil {
		logger.Error("failed to initialize participant service", slog.String("error", err.Error()))

		return
	}

	g.Go(func() error {
		return svc.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}
