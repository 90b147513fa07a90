package wire

import (
	"errors"
	"fmt"
)

// ErrNonScalarValue rejects config and metric values that are not plain
// scalars. Restricting the payload to scalars keeps deserialization a pure
// data parse on both ends of the channel.
var ErrNonScalarValue = errors.New("config value is not a scalar")

// Config is an unordered mapping from string keys to scalar values
// (numeric, boolean, or string). It travels opaquely from strategy to
// client and back as result metrics; the coordinator never interprets it.
type Config map[string]any

// Validate rejects any value that is not a scalar.
func (c Config) Validate() error {
	for k, v := range c {
		switch v.(type) {
		case bool, string,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return fmt.Errorf("%w: key %q holds %T", ErrNonScalarValue, k, v)
		}
	}

	return nil
}

// Float64 reads a numeric value, widening any scalar numeric type.
func (c Config) Float64(key string) (float64, bool) {
	v, ok := c[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Int64 reads an integer value, narrowing any scalar integer type.
func (c Config) Int64(key string) (int64, bool) {
	v, ok := c[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func (c Config) String(key string) (string, bool) {
	s, ok := c[key].(string)

	return s, ok
}

func (c Config) Bool(key string) (bool, bool) {
	b, ok := c[key].(bool)

	return b, ok
}
