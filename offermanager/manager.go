// Package offermanager implements the Offer Matcher Manager: a dispatcher
// that, for each incoming offer, runs a rotating fan-out over a dynamic set
// of per-application matchers, accumulates task placements until resource,
// deadline, or token budgets are exhausted, and returns the result to the
// offer source.
//
// The Manager is a single-threaded cooperative actor: it processes one
// message at a time from a mailbox channel, and its mutable fields
// (launchTokens, matchers, offers) are touched only from within that
// goroutine. This is the idiomatic Go rendition of design note §9's "any
// single-consumer queue plus a dedicated worker; no actor framework
// required" — it replaces the sync.RWMutex-guarded struct style Peloton's
// hostmgr/offer/offerpool.Pool uses, because the Manager's per-message work
// spans an asynchronous matcher round-trip that a held lock cannot cross.
package offermanager

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ranxxerox/marathon/common/clock"
	"github.com/ranxxerox/marathon/offer"
)

// matcherIDTimeout is the sentinel matcher identity attached to the
// deferred self-message scheduled at an offer's deadline. It is
// indistinguishable, in shape, from a real matcher reply per spec.md
// §4.1 — it is handled by the exact same code path as a MatchedTasks
// reply — but it carries no placements, so nothing is accepted and the
// requeue-on-success step in handleMatchedTasks is always a no-op for it.
const matcherIDTimeout MatcherID = ""

// Config is the Manager's external configuration.
type Config struct {
	// MaxTasksPerOffer is the hard cap on placements accepted per offer.
	MaxTasksPerOffer int `yaml:"maxTasksPerOffer"`

	// MailboxSize bounds the Manager's mailbox channel. The spec describes
	// an unbounded mailbox; Go channels are necessarily bounded, so this
	// is sized generously (see DefaultMailboxSize) and callers that send
	// faster than the Manager drains will simply block on a full mailbox
	// rather than lose messages.
	MailboxSize int `yaml:"mailboxSize"`
}

// DefaultMailboxSize is used when Config.MailboxSize is left at zero.
const DefaultMailboxSize = 4096

// Manager is the Offer Matcher Manager described in spec.md §4.1.
type Manager struct {
	cfg     Config
	mailbox chan message
	done    chan struct{}

	clk     clock.Clock
	rng     *rand.Rand
	metrics *Metrics

	wantedObserver func(bool)

	// Mutated only inside run().
	matchers     map[MatcherID]Matcher
	offers       map[offer.ID]*offerData
	launchTokens int
}

// offerData is the Manager's per-in-flight-offer state, per spec.md §3.
type offerData struct {
	current  offer.Offer
	deadline time.Time
	reply    chan offer.MatchedTasks
	queue    []Matcher
	tasks    []offer.Placement
}

// New constructs a Manager and starts its mailbox-draining goroutine.
// wantedObserver is invoked with the wanted-offers signal every time it is
// re-evaluated; duplicate values may be delivered and must be treated as
// idempotent by the observer, per spec.md §6.
func New(cfg Config, metrics *Metrics, clk clock.Clock, wantedObserver func(bool)) *Manager {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = DefaultMailboxSize
	}
	if wantedObserver == nil {
		wantedObserver = func(bool) {}
	}
	m := &Manager{
		cfg:            cfg,
		mailbox:        make(chan message, cfg.MailboxSize),
		done:           make(chan struct{}),
		clk:            clk,
		rng:            rand.New(rand.NewSource(clk.Now().UnixNano())),
		metrics:        metrics,
		wantedObserver: wantedObserver,
		matchers:       make(map[MatcherID]Matcher),
		offers:         make(map[offer.ID]*offerData),
	}
	go m.run()
	return m
}

// Stop drains no further messages and releases the mailbox goroutine. It
// does not flush in-flight offers; their deadlines will still fire but
// their self-messages will be dropped since the mailbox goroutine is gone.
func (m *Manager) Stop() {
	close(m.done)
}

// ---- message types -------------------------------------------------------

type message interface{ isMessage() }

type setTokensMsg struct{ n int }
type addTokensMsg struct{ delta int }

type addMatcherMsg struct {
	matcher Matcher
	ack     chan MatcherID
}

type removeMatcherMsg struct {
	id  MatcherID
	ack chan MatcherID
}

type matchOfferMsg struct {
	deadline time.Time
	offer    offer.Offer
	reply    chan offer.MatchedTasks
}

type matchedTasksMsg struct {
	offerID   offer.ID
	matcherID MatcherID
	added     []offer.Placement
}

func (setTokensMsg) isMessage()     {}
func (addTokensMsg) isMessage()     {}
func (addMatcherMsg) isMessage()    {}
func (removeMatcherMsg) isMessage() {}
func (matchOfferMsg) isMessage()    {}
func (matchedTasksMsg) isMessage()  {}

// ---- public API -----------------------------------------------------------

// SetLaunchTokens replaces the token counter with n, clamped to
// non-negative per the resolution of design note §9's open question.
func (m *Manager) SetLaunchTokens(n int) {
	m.send(setTokensMsg{n: n})
}

// AddLaunchTokens adds delta to the token counter, clamping the result at
// zero (externally delta should be >= 0; placement acceptance decrements
// the counter directly in handleMatchedTasks, not through this method).
func (m *Manager) AddLaunchTokens(delta int) {
	m.send(addTokensMsg{delta: delta})
}

// AddOrUpdateMatcher registers matcher (or replaces the existing
// registration with the same ID), appending it to every in-flight offer's
// remaining queue so it participates in ongoing rounds, and returns its ID
// as an acknowledgement.
func (m *Manager) AddOrUpdateMatcher(matcher Matcher) MatcherID {
	ack := make(chan MatcherID, 1)
	m.send(addMatcherMsg{matcher: matcher, ack: ack})
	return <-ack
}

// RemoveMatcher deregisters the matcher with the given ID. In-flight
// queries already dispatched to it are not cancelled; it is simply dropped
// from future rotations and from in-flight offers' remaining queues.
func (m *Manager) RemoveMatcher(id MatcherID) MatcherID {
	ack := make(chan MatcherID, 1)
	m.send(removeMatcherMsg{id: id, ack: ack})
	return <-ack
}

// MatchOffer requests matching of offer o, due by deadline, blocking until
// the Manager produces its one reply or ctx is cancelled. If ctx is
// cancelled first, the zero MatchedTasks and ctx.Err() are returned, but
// the Manager's own processing of the offer (and any placements it later
// accepts) continues unaffected — per spec.md, cancellation is implicit
// via the deadline, not via this call.
func (m *Manager) MatchOffer(ctx context.Context, deadline time.Time, o offer.Offer) (offer.MatchedTasks, error) {
	reply := make(chan offer.MatchedTasks, 1)
	m.send(matchOfferMsg{deadline: deadline, offer: o.Clone(), reply: reply})
	select {
	case result := <-reply:
		return result, nil
	case <-ctx.Done():
		return offer.MatchedTasks{}, ctx.Err()
	}
}

func (m *Manager) send(msg message) {
	select {
	case m.mailbox <- msg:
	case <-m.done:
	}
}

// ---- mailbox loop -----------------------------------------------------

func (m *Manager) run() {
	for {
		select {
		case msg := <-m.mailbox:
			m.handle(msg)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handle(msg message) {
	switch v := msg.(type) {
	case setTokensMsg:
		m.handleSetTokens(v)
	case addTokensMsg:
		m.handleAddTokens(v)
	case addMatcherMsg:
		m.handleAddMatcher(v)
	case removeMatcherMsg:
		m.handleRemoveMatcher(v)
	case matchOfferMsg:
		m.handleMatchOffer(v)
	case matchedTasksMsg:
		m.handleMatchedTasksSafely(v)
	}
}

func (m *Manager) handleSetTokens(v setTokensMsg) {
	n := v.n
	if n < 0 {
		n = 0
	}
	m.launchTokens = n
	m.afterTokenOrMatcherChange()
}

func (m *Manager) handleAddTokens(v addTokensMsg) {
	m.launchTokens += v.delta
	if m.launchTokens < 0 {
		m.launchTokens = 0
	}
	m.afterTokenOrMatcherChange()
}

func (m *Manager) handleAddMatcher(v addMatcherMsg) {
	m.matchers[v.matcher.ID()] = v.matcher
	for _, data := range m.offers {
		data.queue = append(data.queue, v.matcher)
	}
	m.afterTokenOrMatcherChange()
	v.ack <- v.matcher.ID()
}

func (m *Manager) handleRemoveMatcher(v removeMatcherMsg) {
	delete(m.matchers, v.id)
	for _, data := range m.offers {
		data.queue = removeMatcherFromQueue(data.queue, v.id)
	}
	m.afterTokenOrMatcherChange()
	v.ack <- v.id
}

func removeMatcherFromQueue(queue []Matcher, id MatcherID) []Matcher {
	out := queue[:0]
	for _, mm := range queue {
		if mm.ID() != id {
			out = append(out, mm)
		}
	}
	return out
}

func (m *Manager) afterTokenOrMatcherChange() {
	m.metrics.LaunchTokens.Update(float64(m.launchTokens))
	m.metrics.MatchersCount.Update(float64(len(m.matchers)))
	wanted := m.offersWanted()
	if wanted {
		m.metrics.WantedOffers.Update(1)
	} else {
		m.metrics.WantedOffers.Update(0)
	}
	m.wantedObserver(wanted)
}

func (m *Manager) offersWanted() bool {
	return len(m.matchers) > 0 && m.launchTokens > 0
}

func (m *Manager) handleMatchOffer(v matchOfferMsg) {
	if !m.offersWanted() {
		v.reply <- offer.MatchedTasks{OfferID: v.offer.ID}
		return
	}

	data := &offerData{
		current:  v.offer,
		deadline: v.deadline,
		reply:    v.reply,
		queue:    m.shuffledMatchers(),
	}
	m.offers[v.offer.ID] = data
	m.metrics.OffersAccepted.Inc(1)

	m.scheduleDeadline(v.offer.ID, v.deadline)
	m.scheduleNextMatcherOrFinish(v.offer.ID)
}

func (m *Manager) shuffledMatchers() []Matcher {
	out := make([]Matcher, 0, len(m.matchers))
	for _, mm := range m.matchers {
		out = append(out, mm)
	}
	m.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// scheduleDeadline arms the deferred self-message described in spec.md
// §4.1 point 3: a MatchedTasks(offerId, empty) message that fires at the
// deadline and is indistinguishable from a real matcher reply.
func (m *Manager) scheduleDeadline(offerID offer.ID, deadline time.Time) {
	delay := deadline.Sub(m.clk.Now())
	if delay < 0 {
		delay = 0
	}
	timer := m.clk.After(delay)
	go func() {
		select {
		case <-timer:
			m.send(matchedTasksMsg{offerID: offerID, matcherID: matcherIDTimeout})
		case <-m.done:
		}
	}()
}

// scheduleNextMatcherOrFinish is the dispatch step of spec.md §4.1.
func (m *Manager) scheduleNextMatcherOrFinish(offerID offer.ID) {
	data, ok := m.offers[offerID]
	if !ok {
		return
	}

	if !m.clk.Now().Before(data.deadline) {
		log.WithField("offer_id", offerID).Warn("offer deadline elapsed, finishing with accumulated placements")
		m.metrics.OffersTimedOut.Inc(1)
		m.finish(offerID, data)
		return
	}
	if len(data.tasks) >= m.cfg.MaxTasksPerOffer {
		m.metrics.OffersExhausted.Inc(1)
		m.finish(offerID, data)
		return
	}
	if m.launchTokens <= 0 {
		m.metrics.OffersExhausted.Inc(1)
		m.finish(offerID, data)
		return
	}
	if len(data.queue) == 0 {
		m.metrics.OffersExhausted.Inc(1)
		m.finish(offerID, data)
		return
	}

	next := data.queue[0]
	data.queue = data.queue[1:]
	go m.dispatchMatcher(offerID, next, data.deadline, data.current.Clone())
}

func (m *Manager) dispatchMatcher(offerID offer.ID, matcher Matcher, deadline time.Time, current offer.Offer) {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	result, err := matcher.ProcessOffer(ctx, deadline, current)
	added := result.Placements
	if err != nil {
		err = errors.Wrap(err, "process offer")
		log.WithError(err).WithFields(log.Fields{
			"offer_id":   offerID,
			"matcher_id": matcher.ID(),
		}).Warn("matcher failed, treating as empty reply")
		added = nil
	}
	m.send(matchedTasksMsg{offerID: offerID, matcherID: matcher.ID(), added: added})
}

func (m *Manager) finish(offerID offer.ID, data *offerData) {
	delete(m.offers, offerID)
	data.reply <- offer.MatchedTasks{OfferID: offerID, Placements: data.tasks}
}

// handleMatchedTasksSafely recovers from any panic raised while processing
// a reply, logging it as a placement processing error and still driving
// the offer's dispatch forward — per spec.md §7, "Rejected placements from
// this reply are not guaranteed to have had reject called", a documented
// limitation, but a single malformed reply must not strand the offer.
func (m *Manager) handleMatchedTasksSafely(v matchedTasksMsg) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Wrap(errors.Errorf("%v", r), "handle matched tasks")
			log.WithField("offer_id", v.offerID).WithError(err).
				Error("recovered from panic while processing matched tasks; continuing dispatch")
			m.metrics.DispatchErrors.Inc(1)
			m.scheduleNextMatcherOrFinish(v.offerID)
		}
	}()
	m.handleMatchedTasks(v)
}

func (m *Manager) handleMatchedTasks(v matchedTasksMsg) {
	data, ok := m.offers[v.offerID]
	if !ok {
		if len(v.added) > 0 {
			m.metrics.LateReplies.Inc(1)
			log.WithFields(log.Fields{
				"offer_id":   v.offerID,
				"matcher_id": v.matcherID,
			}).Warn("late reply for unknown offer, dropping")
		}
		return
	}

	capacity := m.cfg.MaxTasksPerOffer - len(data.tasks)
	k := m.launchTokens
	if len(v.added) < k {
		k = len(v.added)
	}
	if capacity < k {
		k = capacity
	}
	if k < 0 {
		k = 0
	}

	accepted := v.added[:k]
	rejected := v.added[k:]

	for _, p := range rejected {
		if p.Source != nil {
			p.Source.Reject()
		}
		m.metrics.PlacementsRejected.Inc(1)
	}

	if k > 0 {
		consumed := offer.NewBundle()
		for _, p := range accepted {
			consumed = consumed.Add(p.Consumed())
		}
		data.current.Resources = data.current.Resources.Subtract(consumed)
		data.tasks = append(data.tasks, accepted...)
		m.launchTokens -= k
		if m.launchTokens < 0 {
			m.launchTokens = 0
		}
		m.metrics.PlacementsAccepted.Inc(int64(k))
		m.metrics.LaunchTokens.Update(float64(m.launchTokens))

		if matcher, ok := m.matchers[v.matcherID]; ok {
			data.queue = append(data.queue, matcher)
		}
	}

	wanted := m.offersWanted()
	m.metrics.WantedOffers.Update(boolToFloat(wanted))
	m.wantedObserver(wanted)

	m.scheduleNextMatcherOrFinish(v.offerID)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
