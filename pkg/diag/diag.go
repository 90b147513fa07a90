// Package diag emits run-scoped diagnostics. A sink deduplicates by code so
// a warning that would otherwise repeat every round is raised at most once
// per run.
package diag

import (
	"log/slog"
	"sync"
)

// Diagnostic codes raised by the built-in strategy and coordinator.
const (
	CodeNoFitMetricsFn       = "no_fit_metrics_aggregation_fn"
	CodeNoEvaluateMetricsFn  = "no_evaluate_metrics_aggregation_fn"
	CodeInfeasibleThresholds = "infeasible_threshold_configuration"
)

// Sink receives diagnostics keyed by a stable code.
type Sink interface {
	Warn(code, msg string)
}

type Once struct {
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewOnce returns a sink that logs each diagnostic code at most once until
// Reset is called. The coordinator resets it at the start of every run.
func NewOnce(logger *slog.Logger) *Once {
	return &Once{
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

func (s *Once) Warn(code, msg string) {
	s.mu.Lock()
	_, dup := s.seen[code]
	if !dup {
		s.seen[code] = struct{}{}
	}
	s.mu.Unlock()

	if dup {
		return
	}

	s.logger.Warn(msg, slog.String("code", code))
}

func (s *Once) Reset() {
	s.mu.Lock()
	s.seen = make(map[string]struct{})
	s.mu.Unlock()
}
