package offermanager

import (
	"context"
	"time"

	"github.com/ranxxerox/marathon/offer"
)

// MatcherID is a stable identifier for a Matcher, supplied by the caller
// that registers it. Per design note §9 of SPEC_FULL.md, matchers are
// tracked by this logical identifier rather than by Go pointer identity,
// since a matcher handle may cross process boundaries in a real
// deployment (a logical name plus address, in the spec's words).
type MatcherID string

// Matcher is a per-application decision module: given a deadline and an
// offer, it asynchronously proposes task placements against the offer's
// remaining resources.
//
// Implementations must eventually return or hand back an error; the
// Manager applies no per-matcher timeout beyond the offer-wide deadline,
// so a Matcher that never returns ties up one dispatch slot in that
// offer's round until the deadline fires.
type Matcher interface {
	// ID returns this matcher's stable identifier.
	ID() MatcherID

	// ProcessOffer proposes placements against offer's current resources,
	// due by deadline. Returning an error is equivalent to returning an
	// empty MatchedTasks: the Manager never fails because a matcher
	// failed. A reply that arrives after the offer has finished is dropped
	// without Reject being called on its placements; implementations
	// self-reject such placements when no commit is observed within a
	// grace period of their choosing after the offer's deadline.
	ProcessOffer(ctx context.Context, deadline time.Time, current offer.Offer) (offer.MatchedTasks, error)
}

// matcherFunc adapts a plain function into a Matcher, useful for tests and
// for simple in-process matchers that don't need their own type.
type matcherFunc struct {
	id MatcherID
	fn func(ctx context.Context, deadline time.Time, current offer.Offer) (offer.MatchedTasks, error)
}

// MatcherFunc returns a Matcher backed by fn, identified by id.
func MatcherFunc(id MatcherID, fn func(ctx context.Context, deadline time.Time, current offer.Offer) (offer.MatchedTasks, error)) Matcher {
	return matcherFunc{id: id, fn: fn}
}

func (m matcherFunc) ID() MatcherID { return m.id }

func (m matcherFunc) ProcessOffer(ctx context.Context, deadline time.Time, current offer.Offer) (offer.MatchedTasks, error) {
	return m.fn(ctx, deadline, current)
}
