// Package proxy provides local stand-ins for remote training participants.
// A proxy turns abstract client calls into transport traffic and maps every
// transport-level failure into an error the coordinator records, never a
// panic past its boundary.
package proxy

import (
	"errors"
	"time"

	"context"

	"github.com/absmach/flock/wire"
)

// ErrTransport wraps timeouts, disconnects, and any other failure of the
// channel between coordinator and participant.
var ErrTransport = errors.New("transport failure")

// ClientProxy mirrors the client capability set, extended with an identity
// and with per-call bounds. Every call carries the round number it belongs
// to for observability on the remote side.
type ClientProxy interface {
	ID() string
	GetParameters(ctx context.Context, round uint64, ins wire.GetParametersIns, timeout time.Duration) (wire.GetParametersRes, error)
	Fit(ctx context.Context, round uint64, ins wire.FitIns, timeout time.Duration) (wire.FitRes, error)
	Evaluate(ctx context.Context, round uint64, ins wire.EvaluateIns, timeout time.Duration) (wire.EvaluateRes, error)
}
