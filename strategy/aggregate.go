package strategy

import (
	"fmt"

	"github.com/absmach/flock/pkg/codec"
)

// weightedArrays computes the federated average of the given array
// collections: a per-tensor-position mean weighted by example counts. Every
// collection must have the same length and matching shapes position by
// position; a mismatch is an ErrAggregation, never silently skipped.
func weightedArrays(sets [][]codec.NumericArray, weights []uint64) ([]codec.NumericArray, error) {
	if len(sets) == 0 || len(sets) != len(weights) {
		return nil, fmt.Errorf("%w: %d parameter sets for %d weights", ErrAggregation, len(sets), len(weights))
	}

	var total float64
	for _, w := range weights {
		total += float64(w)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: zero total example count", ErrAggregation)
	}

	ref := sets[0]
	sums := make([][]float64, len(ref))
	for i, a := range ref {
		vals, err := a.Float64Values()
		if err != nil {
			return nil, fmt.Errorf("%w: result 0 tensor %d: %s", ErrAggregation, i, err)
		}
		w := float64(weights[0]) / total
		sums[i] = make([]float64, len(vals))
		for j, v := range vals {
			sums[i][j] = v * w
		}
	}

	for k := 1; k < len(sets); k++ {
		arrays := sets[k]
		if len(arrays) != len(ref) {
			return nil, fmt.Errorf("%w: result %d has %d tensors, expected %d", ErrAggregation, k, len(arrays), len(ref))
		}

		w := float64(weights[k]) / total
		for i, a := range arrays {
			if !sameShape(a, ref[i]) {
				return nil, fmt.Errorf("%w: result %d tensor %d: shape %v (%s) does not match %v (%s)",
					ErrAggregation, k, i, a.Shape, a.DType, ref[i].Shape, ref[i].DType)
			}
			vals, err := a.Float64Values()
			if err != nil {
				return nil, fmt.Errorf("%w: result %d tensor %d: %s", ErrAggregation, k, i, err)
			}
			for j, v := range vals {
				sums[i][j] += v * w
			}
		}
	}

	out := make([]codec.NumericArray, len(ref))
	for i := range sums {
		a, err := codec.FromFloat64Values(ref[i].DType, ref[i].Shape, sums[i])
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %d: %s", ErrAggregation, i, err)
		}
		out[i] = a
	}

	return out, nil
}

// weightedLoss computes the example-count-weighted mean of losses.
func weightedLoss(losses []float64, weights []uint64) (float64, error) {
	if len(losses) == 0 || len(losses) != len(weights) {
		return 0, fmt.Errorf("%w: %d losses for %d weights", ErrAggregation, len(losses), len(weights))
	}

	var total, sum float64
	for i, w := range weights {
		total += float64(w)
		sum += losses[i] * float64(w)
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: zero total example count", ErrAggregation)
	}

	return sum / total, nil
}

func sameShape(a, b codec.NumericArray) bool {
	if a.DType != b.DType || len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}

	return true
}
