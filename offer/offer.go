package offer

import "time"

// ID identifies an Offer, opaque to the core.
type ID string

// Offer is a bundle of resources published by the cluster manager for
// potential task placement, valid until a deadline supplied by the caller
// of MatchOffer (the deadline itself is not carried on the Offer; it is
// carried alongside it through the Manager's OfferData).
type Offer struct {
	ID        ID
	Resources Bundle
}

// Clone returns a copy of the offer with an independently-mutable Bundle.
func (o Offer) Clone() Offer {
	return Offer{ID: o.ID, Resources: o.Resources.Clone()}
}

// TaskSource is the one-shot commit/reject capability attached to a
// prospective task placement. Commit is invoked by the Manager implicitly
// (by including the placement in the final MatchedTasks reply); Reject is
// invoked explicitly, exactly once, when the Manager declines to commit.
type TaskSource interface {
	// Reject is called at most once, when the Manager declines to commit
	// this placement (token/cap exhaustion). Implementations must be safe
	// to call from the Manager's mailbox goroutine and must not block.
	Reject()
}

// TaskSourceFunc adapts a plain function to TaskSource.
type TaskSourceFunc func()

// Reject implements TaskSource.
func (f TaskSourceFunc) Reject() { f() }

// Placement is a prospective task description: its resource request,
// paired with the source capability used to commit or reject it.
type Placement struct {
	TaskID    string
	Resources Bundle
	Source    TaskSource
}

// Consumed returns the resources this placement would consume from an
// offer if accepted.
func (p Placement) Consumed() Bundle {
	return p.Resources
}

// MatchedTasks is a matcher's reply to a single processOffer call: the
// offer it was asked about, and zero or more candidate placements.
type MatchedTasks struct {
	OfferID    ID
	Placements []Placement
}

// Deadline is a convenience alias documenting that timestamps crossing the
// Manager/Matcher boundary are absolute, not relative durations.
type Deadline = time.Time
