package offerfeed

import "github.com/uber-go/tally"

// Metrics tracks feed-level offer churn, mirroring the Added/Rescinded/
// AvailableHosts gauges pool.go maintains for the Mesos offer pool.
type Metrics struct {
	Added     tally.Counter
	Rescinded tally.Counter
	Expired   tally.Counter
	Held      tally.Gauge
}

// NewMetrics builds a Metrics rooted at scope.
func NewMetrics(scope tally.Scope) *Metrics {
	s := scope.SubScope("feed")
	return &Metrics{
		Added:     s.Counter("added"),
		Rescinded: s.Counter("rescinded"),
		Expired:   s.Counter("expired"),
		Held:      s.Gauge("held"),
	}
}
