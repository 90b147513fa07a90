package strategy_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/absmach/flock/pkg/codec"
	"github.com/absmach/flock/pkg/diag"
	"github.com/absmach/flock/proxy"
	"github.com/absmach/flock/strategy"
	"github.com/absmach/flock/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProxy struct {
	id string
}

func (f *fakeProxy) ID() string { return f.id }

func (f *fakeProxy) GetParameters(_ context.Context, _ uint64, _ wire.GetParametersIns, _ time.Duration) (wire.GetParametersRes, error) {
	return wire.GetParametersRes{Status: wire.StatusOK()}, nil
}

func (f *fakeProxy) Fit(_ context.Context, _ uint64, _ wire.FitIns, _ time.Duration) (wire.FitRes, error) {
	return wire.FitRes{Status: wire.StatusOK()}, nil
}

func (f *fakeProxy) Evaluate(_ context.Context, _ uint64, _ wire.EvaluateIns, _ time.Duration) (wire.EvaluateRes, error) {
	return wire.EvaluateRes{Status: wire.StatusOK()}, nil
}

func proxies(n int) []proxy.ClientProxy {
	out := make([]proxy.ClientProxy, n)
	for i := range out {
		out[i] = &fakeProxy{id: string(rune('a' + i))}
	}

	return out
}

func fitResult(t *testing.T, id string, numExamples uint64, values []float64) strategy.FitResult {
	t.Helper()
	dense, err := codec.Lookup(codec.TypeDense)
	require.NoError(t, err)
	params, err := wire.FromArrays([]codec.NumericArray{
		codec.NewFloat64Array([]int{len(values)}, values),
	}, dense)
	require.NoError(t, err)

	return strategy.FitResult{
		ClientID: id,
		Res: wire.FitRes{
			Status:      wire.StatusOK(),
			Parameters:  params,
			NumExamples: numExamples,
		},
	}
}

func aggregatedValues(t *testing.T, params *wire.Parameters) []float64 {
	t.Helper()
	require.NotNil(t, params)
	arrays, err := wire.ToArrays(*params)
	require.NoError(t, err)
	require.Len(t, arrays, 1)
	values, err := arrays[0].Float64Values()
	require.NoError(t, err)

	return values
}

func TestNewFedAvgValidation(t *testing.T) {
	cases := []struct {
		desc string
		opts []strategy.Option
		err  error
	}{
		{
			desc: "defaults",
			opts: nil,
			err:  nil,
		},
		{
			desc: "fraction fit above one",
			opts: []strategy.Option{strategy.WithFractions(1.5, 1.0)},
			err:  strategy.ErrConfiguration,
		},
		{
			desc: "negative fraction evaluate",
			opts: []strategy.Option{strategy.WithFractions(1.0, -0.1)},
			err:  strategy.ErrConfiguration,
		},
		{
			desc: "negative minimum",
			opts: []strategy.Option{strategy.WithMinClients(-1, 2, 2)},
			err:  strategy.ErrConfiguration,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := strategy.NewFedAvg(tc.opts...)
			if tc.err == nil {
				assert.NoError(t, err)

				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestAggregateFitWeightedMean(t *testing.T) {
	f, err := strategy.NewFedAvg()
	require.NoError(t, err)

	results := []strategy.FitResult{
		fitResult(t, "a", 10, []float64{1}),
		fitResult(t, "b", 30, []float64{2}),
	}

	params, _, err := f.AggregateFit(1, results, nil)
	require.NoError(t, err)

	values := aggregatedValues(t, params)
	assert.InDelta(t, 1.75, values[0], 1e-12)
}

func TestAggregateFitEmptyResults(t *testing.T) {
	f, err := strategy.NewFedAvg()
	require.NoError(t, err)

	params, metrics, err := f.AggregateFit(1, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, params)
	assert.Empty(t, metrics)
}

func TestAggregateFitSkipsZeroExamples(t *testing.T) {
	f, err := strategy.NewFedAvg()
	require.NoError(t, err)

	results := []strategy.FitResult{
		fitResult(t, "a", 0, []float64{100}),
		fitResult(t, "b", 5, []float64{2}),
	}

	params, _, err := f.AggregateFit(1, results, nil)
	require.NoError(t, err)

	values := aggregatedValues(t, params)
	assert.InDelta(t, 2.0, values[0], 1e-12)
}

func TestAggregateFitFailureTolerance(t *testing.T) {
	failures := []strategy.Failure{{ClientID: "c", Err: errors.New("timeout")}}
	results := []strategy.FitResult{
		fitResult(t, "a", 10, []float64{1}),
		fitResult(t, "b", 10, []float64{3}),
	}

	tolerant, err := strategy.NewFedAvg(strategy.WithAcceptFailures(true))
	require.NoError(t, err)
	params, _, err := tolerant.AggregateFit(1, results, failures)
	require.NoError(t, err)
	values := aggregatedValues(t, params)
	assert.InDelta(t, 2.0, values[0], 1e-12)

	strict, err := strategy.NewFedAvg(strategy.WithAcceptFailures(false))
	require.NoError(t, err)
	params, _, err = strict.AggregateFit(1, results, failures)
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestAggregateFitCorruptResultBecomesFailure(t *testing.T) {
	f, err := strategy.NewFedAvg()
	require.NoError(t, err)

	corrupt := strategy.FitResult{
		ClientID: "bad",
		Res: wire.FitRes{
			Status:      wire.StatusOK(),
			Parameters:  wire.Parameters{Tensors: [][]byte{{0xff}}, TensorType: codec.TypeDense},
			NumExamples: 10,
		},
	}
	results := []strategy.FitResult{
		fitResult(t, "a", 10, []float64{4}),
		corrupt,
	}

	params, _, err := f.AggregateFit(1, results, nil)
	require.NoError(t, err)

	values := aggregatedValues(t, params)
	assert.InDelta(t, 4.0, values[0], 1e-12)
}

func TestAggregateFitShapeMismatch(t *testing.T) {
	f, err := strategy.NewFedAvg()
	require.NoError(t, err)

	results := []strategy.FitResult{
		fitResult(t, "a", 10, []float64{1, 2}),
		fitResult(t, "b", 10, []float64{3}),
	}

	_, _, err = f.AggregateFit(1, results, nil)
	assert.ErrorIs(t, err, strategy.ErrAggregation)
}

func TestConfigureFitSelection(t *testing.T) {
	cases := []struct {
		desc      string
		available int
		fraction  float64
		minFit    int
		minAvail  int
		want      int
	}{
		{
			desc:      "half of ten",
			available: 10,
			fraction:  0.5,
			minFit:    2,
			minAvail:  2,
			want:      5,
		},
		{
			desc:      "minimum floor wins",
			available: 3,
			fraction:  0.1,
			minFit:    2,
			minAvail:  2,
			want:      2,
		},
		{
			desc:      "capped at pool size",
			available: 2,
			fraction:  1.0,
			minFit:    5,
			minAvail:  2,
			want:      2,
		},
		{
			desc:      "below availability gate",
			available: 2,
			fraction:  1.0,
			minFit:    2,
			minAvail:  3,
			want:      0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			f, err := strategy.NewFedAvg(
				strategy.WithFractions(tc.fraction, 1.0),
				strategy.WithMinClients(tc.minFit, 2, tc.minAvail),
				strategy.WithRand(rand.New(rand.NewSource(1))),
			)
			require.NoError(t, err)

			assignments := f.ConfigureFit(1, wire.Parameters{}, proxies(tc.available))
			assert.Len(t, assignments, tc.want)
		})
	}
}

func TestConfigureEvaluateFractionZero(t *testing.T) {
	f, err := strategy.NewFedAvg(strategy.WithFractions(1.0, 0))
	require.NoError(t, err)

	assignments := f.ConfigureEvaluate(1, wire.Parameters{}, proxies(5))
	assert.Empty(t, assignments)
}

func TestConfigureFitCarriesConfig(t *testing.T) {
	f, err := strategy.NewFedAvg(
		strategy.WithOnFitConfig(func(round uint64) wire.Config {
			return wire.Config{"round": round, "epochs": 3}
		}),
	)
	require.NoError(t, err)

	assignments := f.ConfigureFit(7, wire.Parameters{}, proxies(4))
	require.NotEmpty(t, assignments)
	for _, a := range assignments {
		round, ok := a.Ins.Config.Int64("round")
		assert.True(t, ok)
		assert.Equal(t, int64(7), round)
	}
}

func TestAggregateEvaluateWeightedLoss(t *testing.T) {
	f, err := strategy.NewFedAvg()
	require.NoError(t, err)

	results := []strategy.EvaluateResult{
		{ClientID: "a", Res: wire.EvaluateRes{Status: wire.StatusOK(), Loss: 1, NumExamples: 10}},
		{ClientID: "b", Res: wire.EvaluateRes{Status: wire.StatusOK(), Loss: 2, NumExamples: 30}},
	}

	loss, _, err := f.AggregateEvaluate(1, results, nil)
	require.NoError(t, err)
	require.NotNil(t, loss)
	assert.InDelta(t, 1.75, *loss, 1e-12)
}

func TestAggregateEvaluateEmpty(t *testing.T) {
	f, err := strategy.NewFedAvg()
	require.NoError(t, err)

	loss, _, err := f.AggregateEvaluate(1, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, loss)
}

func TestCentralEvaluate(t *testing.T) {
	f, err := strategy.NewFedAvg()
	require.NoError(t, err)
	out, err := f.Evaluate(1, wire.Parameters{})
	require.NoError(t, err)
	assert.Nil(t, out)

	f, err = strategy.NewFedAvg(strategy.WithCentralEvaluator(
		func(round uint64, _ wire.Parameters) (float64, wire.Config, error) {
			return 0.125, wire.Config{"round": round}, nil
		},
	))
	require.NoError(t, err)

	out, err = f.Evaluate(3, wire.Parameters{})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 0.125, out.Loss)
}

func TestMetricsAggregatorsApplied(t *testing.T) {
	f, err := strategy.NewFedAvg(
		strategy.WithFitMetricsAggregator(func(pairs []strategy.MetricsPair) wire.Config {
			var total uint64
			for _, p := range pairs {
				total += p.NumExamples
			}

			return wire.Config{"total_examples": total}
		}),
	)
	require.NoError(t, err)

	results := []strategy.FitResult{
		fitResult(t, "a", 10, []float64{1}),
		fitResult(t, "b", 30, []float64{2}),
	}

	_, metrics, err := f.AggregateFit(1, results, nil)
	require.NoError(t, err)
	total, ok := metrics.Int64("total_examples")
	assert.True(t, ok)
	assert.Equal(t, int64(40), total)
}

func TestNewFedAvgWarnsInfeasibleThresholds(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	_, err := strategy.NewFedAvg(strategy.WithMinClients(5, 5, 2))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), diag.CodeInfeasibleThresholds)
}

func TestAggregateFitWarnsMissingAggregatorByDefault(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	f, err := strategy.NewFedAvg()
	require.NoError(t, err)

	results := []strategy.FitResult{fitResult(t, "a", 10, []float64{1})}
	for range 3 {
		_, _, err = f.AggregateFit(1, results, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(diag.CodeNoFitMetricsFn)))
}
