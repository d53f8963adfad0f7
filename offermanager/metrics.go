package offermanager

import "github.com/uber-go/tally"

// Metrics holds the tally instruments the Manager updates as it processes
// offers. Constructed via NewMetrics(scope), matching the
// offerpool.NewMetrics(scope) pattern pool_test.go exercises with
// tally.NewTestScope.
type Metrics struct {
	OffersAccepted     tally.Counter
	OffersTimedOut     tally.Counter
	OffersExhausted    tally.Counter
	PlacementsAccepted tally.Counter
	PlacementsRejected tally.Counter
	DispatchErrors     tally.Counter
	LateReplies        tally.Counter

	LaunchTokens  tally.Gauge
	MatchersCount tally.Gauge
	WantedOffers  tally.Gauge
}

// NewMetrics builds a Metrics rooted at scope.
func NewMetrics(scope tally.Scope) *Metrics {
	offers := scope.SubScope("offers")
	placements := scope.SubScope("placements")
	return &Metrics{
		OffersAccepted:     offers.Counter("accepted"),
		OffersTimedOut:     offers.Counter("timed_out"),
		OffersExhausted:    offers.Counter("exhausted"),
		PlacementsAccepted: placements.Counter("accepted"),
		PlacementsRejected: placements.Counter("rejected"),
		DispatchErrors:     scope.Counter("dispatch_errors"),
		LateReplies:        scope.Counter("late_replies"),
		LaunchTokens:       scope.Gauge("launch_tokens"),
		MatchersCount:      scope.Gauge("matchers"),
		WantedOffers:       scope.Gauge("wanted_offers"),
	}
}
