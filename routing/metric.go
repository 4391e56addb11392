package routing

import "fmt"

// Metric selects how candidate paths are ranked against each other.
type Metric uint8

const (
	// MetricMinFee ranks paths by the total routing fee, with a small
	// penalty for long time locks.
	MetricMinFee Metric = iota

	// MetricMaxProb ranks paths by their estimated success probability
	// under the sender's current belief intervals.
	MetricMaxProb
)

// String returns the command line token of the metric.
func (m Metric) String() string {
	switch m {
	case MetricMinFee:
		return "minfee"
	case MetricMaxProb:
		return "maxprob"
	default:
		return "unknown"
	}
}

// MetricFromString maps a command line token to a Metric.
func MetricFromString(s string) (Metric, error) {
	switch s {
	case "minfee":
		return MetricMinFee, nil
	case "maxprob":
		return MetricMaxProb, nil
	default:
		return 0, fmt.Errorf("unknown path metric %q, must be one "+
			"of minfee or maxprob", s)
	}
}

// UnmarshalFlag implements the go-flags unmarshaler so a Metric can be used
// directly in option structs.
func (m *Metric) UnmarshalFlag(value string) error {
	parsed, err := MetricFromString(value)
	if err != nil {
		return err
	}
	*m = parsed

	return nil
}
