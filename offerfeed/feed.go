// Package offerfeed adapts the resource-provider side of offer matching:
// it caches offers pushed in by an external collaborator, holds each for a
// bounded amount of time, and drains the ones still unclaimed into an
// offermanager.Manager for matching. It plays the role pool.go's offerPool
// plays for Mesos host offers, simplified to a single matching sink instead
// of a host-indexed claim/launch index, since bin-packing across hosts is
// the Manager's job here rather than the feed's.
package offerfeed

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ranxxerox/marathon/common/clock"
	"github.com/ranxxerox/marathon/offer"
	"github.com/ranxxerox/marathon/offermanager"
)

// entry is the pool's bookkeeping for one held offer, mirroring pool.go's
// TimedOffer.
type entry struct {
	offer      offer.Offer
	expiration time.Time
}

// Feed caches externally-supplied offers until they are drained into a
// Manager or expire unclaimed.
type Feed struct {
	mu       sync.RWMutex
	offers   map[offer.ID]*entry
	holdTime time.Duration
	clk      clock.Clock
	metrics  *Metrics
}

// New returns a Feed that holds each added offer for holdTime before it is
// eligible for RemoveExpired.
func New(holdTime time.Duration, clk clock.Clock, metrics *Metrics) *Feed {
	f := &Feed{
		offers:   make(map[offer.ID]*entry),
		holdTime: holdTime,
		clk:      clk,
		metrics:  metrics,
	}
	f.metrics.Held.Update(0)
	return f
}

// Add caches offers for later draining. An offer already present under the
// same ID is replaced and its hold timer restarted.
func (f *Feed) Add(offers ...offer.Offer) {
	if len(offers) == 0 {
		return
	}
	expiration := f.clk.Now().Add(f.holdTime)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range offers {
		f.offers[o.ID] = &entry{offer: o, expiration: expiration}
	}
	f.metrics.Added.Inc(int64(len(offers)))
	f.metrics.Held.Update(float64(len(f.offers)))
}

// Rescind removes an offer from the feed before it is drained. Returns
// whether the offer was found.
func (f *Feed) Rescind(id offer.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.offers[id]; !ok {
		log.WithField("offer_id", id).Warn("rescind of unknown offer")
		return false
	}
	delete(f.offers, id)
	f.metrics.Rescinded.Inc(1)
	f.metrics.Held.Update(float64(len(f.offers)))
	return true
}

// RemoveExpired evicts and returns offers whose hold time has elapsed
// without being drained.
func (f *Feed) RemoveExpired() []offer.Offer {
	now := f.clk.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	var expired []offer.Offer
	for id, e := range f.offers {
		if !now.Before(e.expiration) {
			expired = append(expired, e.offer)
			delete(f.offers, id)
		}
	}
	if len(expired) > 0 {
		log.WithField("count", len(expired)).Debug("removing expired offers from feed")
		f.metrics.Expired.Inc(int64(len(expired)))
		f.metrics.Held.Update(float64(len(f.offers)))
	}
	return expired
}

// Clear empties the feed.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = make(map[offer.ID]*entry)
	f.metrics.Held.Update(0)
}

// Len reports the number of offers currently held.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.offers)
}

// Drain submits every currently-held offer to m.MatchOffer, each with its
// own deadline at its remaining hold time, and removes it from the feed
// regardless of outcome: an offer is considered spent once it has gone
// through a matching round, mirroring pool.go's ClaimForLaunch treating a
// claimed offer as used rather than returned to Ready.
func (f *Feed) Drain(ctx context.Context, m *offermanager.Manager) []offer.MatchedTasks {
	f.mu.Lock()
	batch := make([]*entry, 0, len(f.offers))
	for id, e := range f.offers {
		batch = append(batch, e)
		delete(f.offers, id)
	}
	f.metrics.Held.Update(float64(len(f.offers)))
	f.mu.Unlock()

	results := make([]offer.MatchedTasks, 0, len(batch))
	for _, e := range batch {
		deadline := e.expiration
		if deadline.Before(f.clk.Now()) {
			deadline = f.clk.Now()
		}
		matched, err := m.MatchOffer(ctx, deadline, e.offer)
		if err != nil {
			err = errors.Wrap(err, "match offer")
			log.WithError(err).WithField("offer_id", e.offer.ID).Warn("MatchOffer failed, offer dropped")
			continue
		}
		results = append(results, matched)
	}
	return results
}
