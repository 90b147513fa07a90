package strategy

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/absmach/flock/pkg/codec"
	"github.com/absmach/flock/pkg/diag"
	"github.com/absmach/flock/proxy"
	"github.com/absmach/flock/wire"
)

const (
	defFraction   = 1.0
	defMinClients = 2
)

var _ Strategy = (*FedAvg)(nil)

// FedAvg implements federated averaging: participants are sampled uniformly
// at random and their results combine by example-count-weighted mean.
type FedAvg struct {
	fractionFit         float64
	fractionEvaluate    float64
	minFitClients       int
	minEvaluateClients  int
	minAvailableClients int
	acceptFailures      bool

	initialParameters *wire.Parameters
	onFitConfig       ConfigFn
	onEvaluateConfig  ConfigFn
	fitMetricsAgg     MetricsAggregator
	evalMetricsAgg    MetricsAggregator
	centralEvaluator  CentralEvaluator

	diag diag.Sink
	rng  *rand.Rand
}

type Option func(*FedAvg)

// WithFractions sets the fraction of available clients sampled for the fit
// and evaluate phases.
func WithFractions(fit, evaluate float64) Option {
	return func(f *FedAvg) {
		f.fractionFit = fit
		f.fractionEvaluate = evaluate
	}
}

// WithMinClients sets the selection floors and the availability gate.
func WithMinClients(fit, evaluate, available int) Option {
	return func(f *FedAvg) {
		f.minFitClients = fit
		f.minEvaluateClients = evaluate
		f.minAvailableClients = available
	}
}

// WithAcceptFailures controls whether aggregation proceeds over the
// successful subset when some participants failed.
func WithAcceptFailures(accept bool) Option {
	return func(f *FedAvg) { f.acceptFailures = accept }
}

// WithInitialParameters supplies the starting global parameters.
func WithInitialParameters(p wire.Parameters) Option {
	return func(f *FedAvg) { f.initialParameters = &p }
}

// WithOnFitConfig injects the per-round fit config generator.
func WithOnFitConfig(fn ConfigFn) Option {
	return func(f *FedAvg) { f.onFitConfig = fn }
}

// WithOnEvaluateConfig injects the per-round evaluate config generator.
func WithOnEvaluateConfig(fn ConfigFn) Option {
	return func(f *FedAvg) { f.onEvaluateConfig = fn }
}

// WithFitMetricsAggregator injects the reduction applied to fit metrics.
func WithFitMetricsAggregator(fn MetricsAggregator) Option {
	return func(f *FedAvg) { f.fitMetricsAgg = fn }
}

// WithEvaluateMetricsAggregator injects the reduction applied to evaluate
// metrics.
func WithEvaluateMetricsAggregator(fn MetricsAggregator) Option {
	return func(f *FedAvg) { f.evalMetricsAgg = fn }
}

// WithCentralEvaluator injects the centralized evaluation hook.
func WithCentralEvaluator(fn CentralEvaluator) Option {
	return func(f *FedAvg) { f.centralEvaluator = fn }
}

// WithDiagnostics routes one-time diagnostics to the given sink.
func WithDiagnostics(sink diag.Sink) Option {
	return func(f *FedAvg) { f.diag = sink }
}

// WithRand fixes the sampling source, used by tests.
func WithRand(rng *rand.Rand) Option {
	return func(f *FedAvg) { f.rng = rng }
}

func NewFedAvg(opts ...Option) (*FedAvg, error) {
	f := &FedAvg{
		fractionFit:         defFraction,
		fractionEvaluate:    defFraction,
		minFitClients:       defMinClients,
		minEvaluateClients:  defMinClients,
		minAvailableClients: defMinClients,
		acceptFailures:      true,
		diag:                diag.NewOnce(slog.Default()),
		rng:                 rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.fractionFit < 0 || f.fractionFit > 1 {
		return nil, fmt.Errorf("%w: fraction_fit %f outside [0, 1]", ErrConfiguration, f.fractionFit)
	}
	if f.fractionEvaluate < 0 || f.fractionEvaluate > 1 {
		return nil, fmt.Errorf("%w: fraction_evaluate %f outside [0, 1]", ErrConfiguration, f.fractionEvaluate)
	}
	if f.minFitClients < 0 || f.minEvaluateClients < 0 || f.minAvailableClients < 0 {
		return nil, fmt.Errorf("%w: negative client minimum", ErrConfiguration)
	}

	if m := max(f.minFitClients, f.minEvaluateClients); f.minAvailableClients < m {
		f.diag.Warn(diag.CodeInfeasibleThresholds, fmt.Sprintf(
			"min_available_clients=%d is below max(min_fit_clients, min_evaluate_clients)=%d; steady-state rounds cannot be satisfied",
			f.minAvailableClients, m))
	}

	return f, nil
}

func (f *FedAvg) InitialParameters() *wire.Parameters {
	return f.initialParameters
}

// numSelected returns max(minimum, ceil(fraction*available)), capped at the
// pool size.
func numSelected(available int, fraction float64, minimum int) int {
	n := int(math.Ceil(fraction * float64(available)))
	if n < minimum {
		n = minimum
	}
	if n > available {
		n = available
	}

	return n
}

func (f *FedAvg) sample(clients []proxy.ClientProxy, n int) []proxy.ClientProxy {
	pool := make([]proxy.ClientProxy, len(clients))
	copy(pool, clients)
	f.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	return pool[:n]
}

func (f *FedAvg) ConfigureFit(round uint64, params wire.Parameters, clients []proxy.ClientProxy) []FitAssignment {
	if len(clients) < f.minAvailableClients {
		return nil
	}

	config := wire.Config{}
	if f.onFitConfig != nil {
		config = f.onFitConfig(round)
	}

	n := numSelected(len(clients), f.fractionFit, f.minFitClients)
	assignments := make([]FitAssignment, 0, n)
	for _, p := range f.sample(clients, n) {
		assignments = append(assignments, FitAssignment{
			Proxy: p,
			Ins:   wire.FitIns{Parameters: params, Config: config},
		})
	}

	return assignments
}

func (f *FedAvg) AggregateFit(round uint64, results []FitResult, failures []Failure) (*wire.Parameters, wire.Config, error) {
	if len(results) == 0 {
		return nil, wire.Config{}, nil
	}

	// A result whose tensors do not decode is a failure of that result
	// alone, not of the aggregation step.
	var sets [][]codec.NumericArray
	var weights []uint64
	var pairs []MetricsPair
	tensorType := ""
	for _, r := range results {
		if r.Res.NumExamples == 0 {
			continue
		}
		arrays, err := wire.ToArrays(r.Res.Parameters)
		if err != nil {
			failures = append(failures, Failure{ClientID: r.ClientID, Err: err})

			continue
		}
		if tensorType == "" {
			tensorType = r.Res.Parameters.TensorType
		}
		sets = append(sets, arrays)
		weights = append(weights, r.Res.NumExamples)
		pairs = append(pairs, MetricsPair{NumExamples: r.Res.NumExamples, Metrics: r.Res.Metrics})
	}

	if len(failures) > 0 && !f.acceptFailures {
		return nil, wire.Config{}, nil
	}
	if len(sets) == 0 {
		return nil, wire.Config{}, nil
	}

	arrays, err := weightedArrays(sets, weights)
	if err != nil {
		return nil, wire.Config{}, err
	}
	c, err := codec.Lookup(tensorType)
	if err != nil {
		return nil, wire.Config{}, fmt.Errorf("%w: %s", ErrAggregation, err)
	}
	params, err := wire.FromArrays(arrays, c)
	if err != nil {
		return nil, wire.Config{}, fmt.Errorf("%w: %s", ErrAggregation, err)
	}

	metrics := wire.Config{}
	switch {
	case f.fitMetricsAgg != nil:
		metrics = f.fitMetricsAgg(pairs)
	default:
		f.diag.Warn(diag.CodeNoFitMetricsFn, "no fit metrics aggregation function provided; fit metrics are dropped")
	}

	return &params, metrics, nil
}

func (f *FedAvg) ConfigureEvaluate(round uint64, params wire.Parameters, clients []proxy.ClientProxy) []EvaluateAssignment {
	if f.fractionEvaluate == 0 {
		return nil
	}
	if len(clients) < f.minAvailableClients {
		return nil
	}

	config := wire.Config{}
	if f.onEvaluateConfig != nil {
		config = f.onEvaluateConfig(round)
	}

	n := numSelected(len(clients), f.fractionEvaluate, f.minEvaluateClients)
	assignments := make([]EvaluateAssignment, 0, n)
	for _, p := range f.sample(clients, n) {
		assignments = append(assignments, EvaluateAssignment{
			Proxy: p,
			Ins:   wire.EvaluateIns{Parameters: params, Config: config},
		})
	}

	return assignments
}

func (f *FedAvg) AggregateEvaluate(round uint64, results []EvaluateResult, failures []Failure) (*float64, wire.Config, error) {
	if len(results) == 0 {
		return nil, wire.Config{}, nil
	}
	if len(failures) > 0 && !f.acceptFailures {
		return nil, wire.Config{}, nil
	}

	var losses []float64
	var weights []uint64
	var pairs []MetricsPair
	for _, r := range results {
		if r.Res.NumExamples == 0 {
			continue
		}
		losses = append(losses, r.Res.Loss)
		weights = append(weights, r.Res.NumExamples)
		pairs = append(pairs, MetricsPair{NumExamples: r.Res.NumExamples, Metrics: r.Res.Metrics})
	}
	if len(losses) == 0 {
		return nil, wire.Config{}, nil
	}

	loss, err := weightedLoss(losses, weights)
	if err != nil {
		return nil, wire.Config{}, err
	}

	metrics := wire.Config{}
	switch {
	case f.evalMetricsAgg != nil:
		metrics = f.evalMetricsAgg(pairs)
	default:
		f.diag.Warn(diag.CodeNoEvaluateMetricsFn, "no evaluate metrics aggregation function provided; evaluate metrics are dropped")
	}

	return &loss, metrics, nil
}

func (f *FedAvg) Evaluate(round uint64, params wire.Parameters) (*EvaluateOutput, error) {
	if f.centralEvaluator == nil {
		return nil, nil
	}

	loss, metrics, err := f.centralEvaluator(round, params)
	if err != nil {
		return nil, err
	}

	return &EvaluateOutput{Loss: loss, Metrics: metrics}, nil
}
