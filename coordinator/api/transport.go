package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/absmach/flock/coordinator"
	"github.com/absmach/flock/pkg/api"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(loggingErrorEncoder(logger)),
	}

	mux.Get("/status", otelhttp.NewHandler(kithttp.NewServer(
		getStatusEndpoint(svc),
		decodeStatusReq,
		api.EncodeResponse,
		opts...,
	), "get-status").ServeHTTP)

	mux.Get("/history", otelhttp.NewHandler(kithttp.NewServer(
		getHistoryEndpoint(svc),
		decodeHistoryReq,
		api.EncodeResponse,
		opts...,
	), "get-history").ServeHTTP)

	mux.Get("/clients", otelhttp.NewHandler(kithttp.NewServer(
		listClientsEndpoint(svc),
		decodeListEntityReq,
		api.EncodeResponse,
		opts...,
	), "list-clients").ServeHTTP)

	mux.Get("/health", health(instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeStatusReq(_ context.Context, _ *http.Request) (any, error) {
	return statusReq{}, nil
}

func decodeHistoryReq(_ context.Context, _ *http.Request) (any, error) {
	return historyReq{}, nil
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := api.ReadNumQuery(r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, err
	}

	l, err := api.ReadNumQuery(r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, err
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}

func loggingErrorEncoder(logger *slog.Logger) kithttp.ErrorEncoder {
	return func(ctx context.Context, err error, w http.ResponseWriter) {
		logger.Warn("request failed", slog.Any("error", err))
		api.EncodeError(ctx, err, w)
	}
}

func health(instanceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", api.ContentType)
		w.WriteHeader(http.StatusOK)

		res := map[string]string{
			"status":      "pass",
			"service":     "coordinator",
			"instance_id": instanceID,
			"time":        time.Now().UTC().Format(time.RFC3339),
		}
		_ = json.NewEncoder(w).Encode(res)
	}
}
