package coordinator_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/flock/coordinator"
	"github.com/absmach/flock/pkg/codec"
	"github.com/absmach/flock/pkg/diag"
	"github.com/absmach/flock/pkg/storage"
	"github.com/absmach/flock/proxy"
	"github.com/absmach/flock/strategy"
	"github.com/absmach/flock/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trainingProxy answers fit and evaluate calls with fixed local values,
// optionally failing or stalling instead.
type trainingProxy struct {
	id          string
	value       float64
	numExamples uint64
	fail        bool
	stall       bool

	fitCalls int
}

func (p *trainingProxy) ID() string { return p.id }

func (p *trainingProxy) params(t float64) wire.Parameters {
	dense, _ := codec.Lookup(codec.TypeDense)
	params, _ := wire.FromArrays([]codec.NumericArray{
		codec.NewFloat64Array([]int{1}, []float64{t}),
	}, dense)

	return params
}

func (p *trainingProxy) GetParameters(_ context.Context, _ uint64, _ wire.GetParametersIns, _ time.Duration) (wire.GetParametersRes, error) {
	return wire.GetParametersRes{Status: wire.StatusOK(), Parameters: p.params(0)}, nil
}

func (p *trainingProxy) Fit(ctx context.Context, _ uint64, _ wire.FitIns, timeout time.Duration) (wire.FitRes, error) {
	p.fitCalls++
	if p.fail {
		return wire.FitRes{}, errors.Join(proxy.ErrTransport, errors.New("connection lost"))
	}
	if p.stall {
		select {
		case <-ctx.Done():
			return wire.FitRes{}, errors.Join(proxy.ErrTransport, ctx.Err())
		case <-time.After(timeout):
			return wire.FitRes{}, errors.Join(proxy.ErrTransport, context.DeadlineExceeded)
		}
	}

	return wire.FitRes{
		Status:      wire.StatusOK(),
		Parameters:  p.params(p.value),
		NumExamples: p.numExamples,
	}, nil
}

func (p *trainingProxy) Evaluate(_ context.Context, _ uint64, _ wire.EvaluateIns, _ time.Duration) (wire.EvaluateRes, error) {
	if p.fail {
		return wire.EvaluateRes{}, errors.Join(proxy.ErrTransport, errors.New("connection lost"))
	}

	return wire.EvaluateRes{
		Status:      wire.StatusOK(),
		Loss:        p.value,
		NumExamples: p.numExamples,
	}, nil
}

func newTestRegistry(t *testing.T, proxies ...proxy.ClientProxy) *coordinator.Registry {
	t.Helper()
	registry := coordinator.NewRegistry(storage.NewInMemoryStorage())
	for _, p := range proxies {
		require.NoError(t, registry.Register(context.Background(), p))
	}

	return registry
}

func initialParams(t *testing.T) wire.Parameters {
	t.Helper()
	dense, err := codec.Lookup(codec.TypeDense)
	require.NoError(t, err)
	params, err := wire.FromArrays([]codec.NumericArray{
		codec.NewFloat64Array([]int{1}, []float64{0}),
	}, dense)
	require.NoError(t, err)

	return params
}

func TestRunMultipleRounds(t *testing.T) {
	registry := newTestRegistry(t,
		&trainingProxy{id: "a", value: 1, numExamples: 10},
		&trainingProxy{id: "b", value: 3, numExamples: 10},
	)

	strat, err := strategy.NewFedAvg(strategy.WithInitialParameters(initialParams(t)))
	require.NoError(t, err)

	svc, err := coordinator.New("run-1", strat, registry, coordinator.Config{
		Rounds:      3,
		CallTimeout: time.Second,
	}, testLogger)
	require.NoError(t, err)

	history, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, history.Rounds, 3)

	for i, rec := range history.Rounds {
		assert.Equal(t, uint64(i+1), rec.Round)
		assert.True(t, rec.Aggregated)
		assert.Equal(t, 2, rec.FitResults)
		assert.Zero(t, rec.FitFailures)
		require.NotNil(t, rec.LossDistributed)
		assert.InDelta(t, 2.0, *rec.LossDistributed, 1e-12)
	}

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coordinator.StateTerminated, status.State)
}

func TestRunToleratesFailedClient(t *testing.T) {
	registry := newTestRegistry(t,
		&trainingProxy{id: "a", value: 1, numExamples: 10},
		&trainingProxy{id: "b", value: 3, numExamples: 10},
		&trainingProxy{id: "c", fail: true},
	)

	strat, err := strategy.NewFedAvg(strategy.WithInitialParameters(initialParams(t)))
	require.NoError(t, err)

	svc, err := coordinator.New("run-2", strat, registry, coordinator.Config{
		Rounds:      1,
		CallTimeout: time.Second,
	}, testLogger)
	require.NoError(t, err)

	history, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, history.Rounds, 1)

	rec := history.Rounds[0]
	assert.True(t, rec.Aggregated)
	assert.Equal(t, 2, rec.FitResults)
	assert.Equal(t, 1, rec.FitFailures)
}

func TestRunCallTimeoutBecomesFailure(t *testing.T) {
	registry := newTestRegistry(t,
		&trainingProxy{id: "a", value: 1, numExamples: 10},
		&trainingProxy{id: "b", value: 3, numExamples: 10},
		&trainingProxy{id: "slow", stall: true},
	)

	strat, err := strategy.NewFedAvg(strategy.WithInitialParameters(initialParams(t)))
	require.NoError(t, err)

	svc, err := coordinator.New("run-3", strat, registry, coordinator.Config{
		Rounds:      1,
		CallTimeout: 50 * time.Millisecond,
	}, testLogger)
	require.NoError(t, err)

	history, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, history.Rounds, 1)
	assert.Equal(t, 2, history.Rounds[0].FitResults)
	assert.Equal(t, 1, history.Rounds[0].FitFailures)
}

func TestRunInitialParametersFromClient(t *testing.T) {
	registry := newTestRegistry(t,
		&trainingProxy{id: "a", value: 1, numExamples: 10},
		&trainingProxy{id: "b", value: 1, numExamples: 10},
	)

	strat, err := strategy.NewFedAvg()
	require.NoError(t, err)

	svc, err := coordinator.New("run-4", strat, registry, coordinator.Config{
		Rounds:      1,
		CallTimeout: time.Second,
	}, testLogger)
	require.NoError(t, err)

	history, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, history.Rounds, 1)
	assert.True(t, history.Rounds[0].Aggregated)
}

func TestRunNoClientsForInitialParameters(t *testing.T) {
	registry := newTestRegistry(t)

	strat, err := strategy.NewFedAvg()
	require.NoError(t, err)

	svc, err := coordinator.New("run-5", strat, registry, coordinator.Config{
		Rounds: 1,
	}, testLogger)
	require.NoError(t, err)

	_, err = svc.Run(context.Background())
	assert.ErrorIs(t, err, coordinator.ErrNoInitialClients)
}

func TestRunCancelledContext(t *testing.T) {
	registry := newTestRegistry(t,
		&trainingProxy{id: "a", value: 1, numExamples: 10},
		&trainingProxy{id: "b", value: 1, numExamples: 10},
	)

	strat, err := strategy.NewFedAvg(strategy.WithInitialParameters(initialParams(t)))
	require.NoError(t, err)

	svc, err := coordinator.New("run-6", strat, registry, coordinator.Config{
		Rounds:      100,
		CallTimeout: time.Second,
	}, testLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunIdleRoundsTerminate(t *testing.T) {
	// One registered client cannot satisfy the default availability gate,
	// so every round is idle and the run gives up on its own.
	registry := newTestRegistry(t, &trainingProxy{id: "only", value: 1, numExamples: 10})

	strat, err := strategy.NewFedAvg(strategy.WithInitialParameters(initialParams(t)))
	require.NoError(t, err)

	svc, err := coordinator.New("run-7", strat, registry, coordinator.Config{
		Rounds:        100,
		CallTimeout:   time.Second,
		MaxIdleRounds: 2,
	}, testLogger)
	require.NoError(t, err)

	history, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, history.Rounds, 2)
	for _, rec := range history.Rounds {
		assert.False(t, rec.Aggregated)
	}
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	registry := newTestRegistry(t,
		&trainingProxy{id: "a", value: 1, numExamples: 10},
		&trainingProxy{id: "b", stall: true},
	)

	strat, err := strategy.NewFedAvg(strategy.WithInitialParameters(initialParams(t)))
	require.NoError(t, err)

	svc, err := coordinator.New("run-8", strat, registry, coordinator.Config{
		Rounds:      1,
		CallTimeout: time.Second,
	}, testLogger)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Run(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	_, err = svc.Run(context.Background())
	assert.ErrorIs(t, err, coordinator.ErrRunInProgress)
	<-done
}

func TestListClients(t *testing.T) {
	registry := newTestRegistry(t,
		&trainingProxy{id: "a"},
		&trainingProxy{id: "b"},
		&trainingProxy{id: "c"},
	)

	strat, err := strategy.NewFedAvg()
	require.NoError(t, err)

	svc, err := coordinator.New("run-9", strat, registry, coordinator.Config{Rounds: 1}, testLogger)
	require.NoError(t, err)

	page, err := svc.ListClients(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.Total)
	require.Len(t, page.Clients, 2)
	assert.Equal(t, "b", page.Clients[0].ID)

	page, err = svc.ListClients(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Clients)
	assert.Equal(t, uint64(3), page.Total)
}

func TestRunWarnsMissingMetricsAggregatorOncePerRun(t *testing.T) {
	registry := newTestRegistry(t,
		&trainingProxy{id: "a", value: 1, numExamples: 10},
		&trainingProxy{id: "b", value: 3, numExamples: 10},
	)

	var buf bytes.Buffer
	sink := diag.NewOnce(slog.New(slog.NewJSONHandler(&buf, nil)))

	strat, err := strategy.NewFedAvg(
		strategy.WithInitialParameters(initialParams(t)),
		strategy.WithDiagnostics(sink),
	)
	require.NoError(t, err)

	svc, err := coordinator.New("run-diag", strat, registry, coordinator.Config{
		Rounds:      3,
		CallTimeout: time.Second,
	}, testLogger, coordinator.WithDiagnostics(sink))
	require.NoError(t, err)

	_, err = svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(diag.CodeNoFitMetricsFn)))

	_, err = svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte(diag.CodeNoFitMetricsFn)))
}
