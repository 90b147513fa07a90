// Package strategy encapsulates round policy: which participants take part
// in a round and how their results combine into new global parameters and
// aggregate metrics. FedAvg is the default implementation; custom strategies
// compose by embedding it and overriding individual operations.
package strategy

import (
	"errors"

	"github.com/absmach/flock/proxy"
	"github.com/absmach/flock/wire"
)

var (
	// ErrAggregation marks a structural mismatch across the results being
	// combined. It is fatal to the round's aggregation step; the previous
	// global parameters stay authoritative.
	ErrAggregation = errors.New("aggregation error")

	// ErrConfiguration marks an infeasible strategy configuration. It is
	// raised at construction time, never deferred to round time.
	ErrConfiguration = errors.New("invalid strategy configuration")
)

// FitAssignment pairs a selected participant with its fit instruction.
type FitAssignment struct {
	Proxy proxy.ClientProxy
	Ins   wire.FitIns
}

// EvaluateAssignment pairs a selected participant with its evaluate
// instruction.
type EvaluateAssignment struct {
	Proxy proxy.ClientProxy
	Ins   wire.EvaluateIns
}

// FitResult is a successful fit outcome attributed to its participant.
type FitResult struct {
	ClientID string
	Res      wire.FitRes
}

// EvaluateResult is a successful evaluate outcome attributed to its
// participant.
type EvaluateResult struct {
	ClientID string
	Res      wire.EvaluateRes
}

// Failure records either a non-OK client result or a transport-level error.
type Failure struct {
	ClientID string
	Err      error
}

// MetricsPair feeds a caller-supplied metrics reduction: the metrics of one
// result weighted by its example count.
type MetricsPair struct {
	NumExamples uint64
	Metrics     wire.Config
}

// MetricsAggregator reduces per-client metrics into round metrics.
type MetricsAggregator func(pairs []MetricsPair) wire.Config

// CentralEvaluator evaluates the aggregated global parameters directly,
// bypassing clients.
type CentralEvaluator func(round uint64, params wire.Parameters) (loss float64, metrics wire.Config, err error)

// ConfigFn produces the per-round config handed to clients.
type ConfigFn func(round uint64) wire.Config

// EvaluateOutput is the result of a centralized evaluation.
type EvaluateOutput struct {
	Loss    float64
	Metrics wire.Config
}

// Strategy is the pluggable policy component the coordinator drives.
type Strategy interface {
	// InitialParameters returns the starting global parameters, or nil when
	// the coordinator should pull them from an arbitrary client.
	InitialParameters() *wire.Parameters

	// ConfigureFit selects the participants of a fit round and builds their
	// instructions. An empty selection means the round produces no work.
	ConfigureFit(round uint64, params wire.Parameters, clients []proxy.ClientProxy) []FitAssignment

	// AggregateFit combines fit results into new global parameters. It
	// returns nil parameters when nothing can be aggregated: no results, or
	// failures present while failure tolerance is off.
	AggregateFit(round uint64, results []FitResult, failures []Failure) (*wire.Parameters, wire.Config, error)

	// ConfigureEvaluate mirrors ConfigureFit for the evaluation phase.
	ConfigureEvaluate(round uint64, params wire.Parameters, clients []proxy.ClientProxy) []EvaluateAssignment

	// AggregateEvaluate combines evaluation losses by weighted average,
	// under the same empty/failure gates as AggregateFit.
	AggregateEvaluate(round uint64, results []EvaluateResult, failures []Failure) (*float64, wire.Config, error)

	// Evaluate is the optional centralized evaluation hook. It returns nil
	// when no centralized evaluation function is configured.
	Evaluate(round uint64, params wire.Parameters) (*EvaluateOutput, error)
}
