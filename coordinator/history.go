package coordinator

import (
	"time"

	"github.com/absmach/flock/wire"
)

// RoundRecord captures one round's aggregated outcome. Result and failure
// counts cover both phases; losses are present only when the matching
// aggregation produced one.
type RoundRecord struct {
	Round            uint64        `json:"round"`
	FitResults       int           `json:"fit_results"`
	FitFailures      int           `json:"fit_failures"`
	EvaluateResults  int           `json:"evaluate_results"`
	EvaluateFailures int           `json:"evaluate_failures"`
	Aggregated       bool          `json:"aggregated"`
	LossDistributed  *float64      `json:"loss_distributed,omitempty"`
	LossCentralized  *float64      `json:"loss_centralized,omitempty"`
	FitMetrics       wire.Config   `json:"fit_metrics,omitempty"`
	EvaluateMetrics  wire.Config   `json:"evaluate_metrics,omitempty"`
	CentralMetrics   wire.Config   `json:"central_metrics,omitempty"`
	Elapsed          time.Duration `json:"elapsed"`
}

// History accumulates per-round records for the life of one run. It is
// append-only: records are added by the single orchestration goroutine after
// each round completes and never rewritten.
type History struct {
	Rounds  []RoundRecord `json:"rounds"`
	Elapsed time.Duration `json:"elapsed"`
}

func (h History) clone() History {
	out := History{Elapsed: h.Elapsed}
	out.Rounds = make([]RoundRecord, len(h.Rounds))
	copy(out.Rounds, h.Rounds)

	return out
}
