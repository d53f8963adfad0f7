// Package ratelimiter tracks per-application launch backoff delays,
// postponing re-launch attempts after failures with exponential growth up
// to a ceiling. It mirrors the resource-accounting style of Peloton's
// hostmgr offer pool (simple map-backed state, logged at Debug via
// logrus.WithFields) but keeps it synchronous and non-blocking, since the
// spec requires it to be callable from within a single-writer context
// without its own locking.
package ratelimiter

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ranxxerox/marathon/common/clock"
)

// AppID identifies an application whose launches are being throttled.
type AppID string

// AppKey is the (id, version) pair a Delay is keyed by. Two versions of the
// same application accrue independent backoff.
type AppKey struct {
	ID      AppID
	Version string
}

// App carries the per-application backoff configuration consulted by
// AddDelay.
type App struct {
	Key AppKey

	// Backoff is the duration of the first delay created for this app.
	Backoff time.Duration

	// BackoffFactor multiplies the current delay's duration on each
	// subsequent AddDelay call. Assumed >= 1.0 per spec; values < 1
	// monotonically shrink the delay toward zero and eventually reset.
	BackoffFactor float64

	// MaxLaunchDelay caps the duration a delay can grow to.
	MaxLaunchDelay time.Duration
}

// delay is the stored state for one AppKey: an absolute deadline and the
// duration that produced it (needed to compute the next backoff step).
type delay struct {
	deadline time.Time
	duration time.Duration
}

// Limiter answers "earliest next attempt" queries per (app id, version) and
// grows/resets those delays. It is not safe for unsynchronized concurrent
// use from multiple goroutines; callers own a single Limiter from within a
// single-writer context (e.g. the Offer Matcher Manager's mailbox) or guard
// it with an external lock, per spec.md §5.
type Limiter struct {
	clock  clock.Clock
	delays map[AppKey]delay
}

// New returns an empty Limiter using clk as its time source.
func New(clk clock.Clock) *Limiter {
	return &Limiter{
		clock:  clk,
		delays: make(map[AppKey]delay),
	}
}

// GetDelay returns the stored deadline for app, or now if no entry exists.
func (l *Limiter) GetDelay(app App) time.Time {
	d, ok := l.delays[app.Key]
	if !ok {
		return l.clock.Now()
	}
	return d.deadline
}

// AddDelay extends the delay for app: if no entry exists, it creates one of
// duration app.Backoff; otherwise it replaces the entry with
// min(app.MaxLaunchDelay, current_duration * app.BackoffFactor). The new
// deadline is now + new_duration. If the recomputed duration places the
// deadline at or before now, the entry is removed instead (functionally a
// reset) and now is returned.
//
// AddDelay always returns the effective deadline, matching spec.md §4.2's
// post-condition: after any AddDelay, either an entry exists with
// deadline > now, or no entry exists.
func (l *Limiter) AddDelay(app App) time.Time {
	now := l.clock.Now()

	next := app.Backoff
	if existing, ok := l.delays[app.Key]; ok {
		next = growDuration(existing.duration, app.BackoffFactor, app.MaxLaunchDelay)
	}

	deadline := now.Add(next)
	if !deadline.After(now) {
		delete(l.delays, app.Key)
		log.WithFields(log.Fields{
			"app_id":      app.Key.ID,
			"app_version": app.Key.Version,
		}).Debug("computed delay does not exceed now, resetting")
		return now
	}

	l.delays[app.Key] = delay{deadline: deadline, duration: next}
	log.WithFields(log.Fields{
		"app_id":      app.Key.ID,
		"app_version": app.Key.Version,
		"deadline":    deadline,
		"duration":    next,
	}).Debug("extended launch delay")
	return deadline
}

// ResetDelay removes any stored delay for app's key.
func (l *Limiter) ResetDelay(app App) {
	delete(l.delays, app.Key)
}

// growDuration computes min(max, current*factor) using nanosecond
// precision, saturating instead of overflowing when current*factor would
// exceed the range of time.Duration.
func growDuration(current time.Duration, factor float64, max time.Duration) time.Duration {
	if current <= 0 {
		return 0
	}
	grown := float64(current) * factor
	// float64 has 53 bits of mantissa; time.Duration is an int64 of
	// nanoseconds, so guard against overflow before converting back.
	const maxNanos = float64(1<<63 - 1)
	if grown >= maxNanos || grown > float64(max) {
		return max
	}
	if grown < 0 {
		return 0
	}
	return time.Duration(grown)
}
