// Package client defines the capability set a training participant exposes
// to the coordinator, together with a convenience variant that works on
// plain numeric arrays instead of wire-level parameter sets.
package client

import (
	"context"

	"github.com/absmach/flock/pkg/codec"
	"github.com/absmach/flock/wire"
)

// Client is the strict, wire-level capability set. Each operation takes a
// single instruction object and returns a single result object so calls can
// pass uniformly through a byte-oriented channel. The coordinator is written
// against this interface only.
type Client interface {
	GetParameters(ctx context.Context, ins wire.GetParametersIns) (wire.GetParametersRes, error)
	Fit(ctx context.Context, ins wire.FitIns) (wire.FitRes, error)
	Evaluate(ctx context.Context, ins wire.EvaluateIns) (wire.EvaluateRes, error)
}

// ArrayClient is the convenience capability set. Implementations work on
// decoded numeric arrays and plain (count, metrics) tuples; FromArrayClient
// translates them into the strict set.
type ArrayClient interface {
	Parameters(ctx context.Context) ([]codec.NumericArray, error)
	Fit(ctx context.Context, arrays []codec.NumericArray, config wire.Config) ([]codec.NumericArray, uint64, wire.Config, error)
	Evaluate(ctx context.Context, arrays []codec.NumericArray, config wire.Config) (float64, uint64, wire.Config, error)
}
