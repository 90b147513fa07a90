package participant

import (
	"context"
	"math/rand"

	"github.com/absmach/flock/client"
	"github.com/absmach/flock/pkg/codec"
	"github.com/absmach/flock/wire"
)

const (
	defFeatures = 4
	defSamples  = 64
	defEpochs   = 5
	defLearnRat = 0.05
)

var _ client.ArrayClient = (*LinearClient)(nil)

// LinearClient trains a linear regression model on a locally generated
// synthetic dataset. It serves as the built-in workload for demos and for
// end-to-end runs without a WASM artifact.
type LinearClient struct {
	weights  []float64
	bias     float64
	features [][]float64
	targets  []float64
}

// NewLinearClient draws a synthetic dataset from a ground-truth linear
// model plus noise. Each seed yields a different client data distribution.
func NewLinearClient(seed int64) *LinearClient {
	rng := rand.New(rand.NewSource(seed))

	truth := make([]float64, defFeatures)
	for i := range truth {
		truth[i] = rng.NormFloat64()
	}
	truthBias := rng.NormFloat64()

	features := make([][]float64, defSamples)
	targets := make([]float64, defSamples)
	for i := range features {
		row := make([]float64, defFeatures)
		y := truthBias
		for j := range row {
			row[j] = rng.NormFloat64()
			y += truth[j] * row[j]
		}
		features[i] = row
		targets[i] = y + 0.1*rng.NormFloat64()
	}

	return &LinearClient{
		weights:  make([]float64, defFeatures),
		features: features,
		targets:  targets,
	}
}

func (c *LinearClient) Parameters(_ context.Context) ([]codec.NumericArray, error) {
	return c.arrays()
}

func (c *LinearClient) Fit(_ context.Context, arrays []codec.NumericArray, config wire.Config) ([]codec.NumericArray, uint64, wire.Config, error) {
	if err := c.setArrays(arrays); err != nil {
		return nil, 0, nil, err
	}

	epochs := defEpochs
	if v, ok := config.Int64("epochs"); ok {
		epochs = int(v)
	}
	lr := defLearnRat
	if v, ok := config.Float64("learning_rate"); ok {
		lr = v
	}

	for range epochs {
		c.gradientStep(lr)
	}

	out, err := c.arrays()
	if err != nil {
		return nil, 0, nil, err
	}

	return out, uint64(len(c.targets)), wire.Config{"train_loss": c.loss()}, nil
}

func (c *LinearClient) Evaluate(_ context.Context, arrays []codec.NumericArray, _ wire.Config) (float64, uint64, wire.Config, error) {
	if err := c.setArrays(arrays); err != nil {
		return 0, 0, nil, err
	}

	loss := c.loss()

	return loss, uint64(len(c.targets)), wire.Config{"mse": loss}, nil
}

// gradientStep runs one full-batch gradient descent update on the mean
// squared error.
func (c *LinearClient) gradientStep(lr float64) {
	n := float64(len(c.targets))
	gradW := make([]float64, len(c.weights))
	gradB := 0.0

	for i, row := range c.features {
		diff := c.predict(row) - c.targets[i]
		for j := range gradW {
			gradW[j] += 2 * diff * row[j] / n
		}
		gradB += 2 * diff / n
	}

	for j := range c.weights {
		c.weights[j] -= lr * gradW[j]
	}
	c.bias -= lr * gradB
}

func (c *LinearClient) predict(row []float64) float64 {
	y := c.bias
	for j, w := range c.weights {
		y += w * row[j]
	}

	return y
}

func (c *LinearClient) loss() float64 {
	var sum float64
	for i, row := range c.features {
		diff := c.predict(row) - c.targets[i]
		sum += diff * diff
	}

	return sum / float64(len(c.targets))
}

func (c *LinearClient) arrays() ([]codec.NumericArray, error) {
	weights, err := codec.FromFloat64Values(codec.Float64, []int{len(c.weights)}, c.weights)
	if err != nil {
		return nil, err
	}
	bias, err := codec.FromFloat64Values(codec.Float64, []int{1}, []float64{c.bias})
	if err != nil {
		return nil, err
	}

	return []codec.NumericArray{weights, bias}, nil
}

func (c *LinearClient) setArrays(arrays []codec.NumericArray) error {
	if len(arrays) == 0 {
		return nil
	}
	if len(arrays) != 2 {
		return codec.ErrShapeMismatch
	}

	weights, err := arrays[0].Float64Values()
	if err != nil {
		return err
	}
	if len(weights) != len(c.weights) {
		return codec.ErrShapeMismatch
	}
	bias, err := arrays[1].Float64Values()
	if err != nil {
		return err
	}
	if len(bias) != 1 {
		return codec.ErrShapeMismatch
	}

	copy(c.weights, weights)
	c.bias = bias[0]

	return nil
}
