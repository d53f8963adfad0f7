// Package admission gates the control-plane HTTP API behind a bounded pool
// of concurrent-request permits, shedding load with a 503 once the pool and
// its wait queue are both exhausted. The token-bucket-over-buffered-channel
// shape mirrors agent-stack-k8s's internal/controller/limiter.MaxInFlight;
// the surrounding HTTP plumbing matches the teacher's procedure-wiring
// idiom (Peloton's InitServiceHandler-style constructors that take their
// collaborators and return a ready-to-register handler).
package admission

import (
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/yarpc/api/transport"
)

// rejectedBodyFormat formats the response body written on rejection, matching
// spec.md §6's exact wire format.
const rejectedBodyFormat = "Too many concurrent requests! Allowed: %d."

// Config is the Admission Filter's external configuration.
type Config struct {
	// ConcurrentRequests is the size of the permit pool. Must be >= 1.
	ConcurrentRequests int `yaml:"concurrentRequests"`

	// WaitTime bounds how long a request waits for a free permit before
	// being rejected. May be zero (fail fast, no waiting).
	WaitTime time.Duration `yaml:"waitTime"`
}

// Filter is a counting semaphore guarding a wrapped http.Handler. Acquire
// is attempted by every request; on success the permit is released on
// every exit path of the downstream handler (the defer in Wrap covers
// normal return, error response, and panic).
type Filter struct {
	cfg     Config
	permits chan struct{}
}

// New constructs a Filter. It panics if cfg.ConcurrentRequests < 1,
// matching spec.md §6's "concurrentRequests: int >= 1" and the teacher's
// convention (agent-stack-k8s's limiter.New) of treating a misconfigured
// limit as a startup-time programmer error rather than a runtime one.
func New(cfg Config) *Filter {
	if cfg.ConcurrentRequests < 1 {
		panic(fmt.Sprintf("admission: ConcurrentRequests must be >= 1, got %d", cfg.ConcurrentRequests))
	}
	return &Filter{
		cfg:     cfg,
		permits: make(chan struct{}, cfg.ConcurrentRequests),
	}
}

// Wrap returns an http.Handler that admits at most cfg.ConcurrentRequests
// concurrent calls into next, queuing newcomers for up to cfg.WaitTime
// before responding 503.
func (f *Filter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.acquire(r) {
			f.reject(w)
			return
		}
		defer f.release()
		next.ServeHTTP(w, r)
	})
}

// acquire attempts to take a permit, waiting up to cfg.WaitTime or until
// the request's context is cancelled, whichever comes first.
func (f *Filter) acquire(r *http.Request) bool {
	select {
	case f.permits <- struct{}{}:
		return true
	default:
	}

	if f.cfg.WaitTime <= 0 {
		return false
	}

	timer := time.NewTimer(f.cfg.WaitTime)
	defer timer.Stop()

	select {
	case f.permits <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-r.Context().Done():
		return false
	}
}

func (f *Filter) release() {
	<-f.permits
}

func (f *Filter) reject(w http.ResponseWriter) {
	log.WithField("allowed", f.cfg.ConcurrentRequests).Warn("rejecting request: admission pool exhausted")
	w.WriteHeader(http.StatusServiceUnavailable)
	fmt.Fprintf(w, rejectedBodyFormat, f.cfg.ConcurrentRequests)
}

// rejectRPC logs a rejection on the yarpc unary-inbound path, the non-HTTP
// analogue of reject.
func (f *Filter) rejectRPC(req *transport.Request) {
	log.WithFields(log.Fields{
		"allowed":   f.cfg.ConcurrentRequests,
		"procedure": req.Procedure,
	}).Warn("rejecting RPC: admission pool exhausted")
}

// Acquire and Release expose the permit pool directly for non-HTTP callers
// (e.g. the yarpc control-plane procedures this filter also fronts).
// Calling Release while no permit is held is a programmer
// error — the non-HTTP analogue of spec.md §4.3's "non-HTTP responses map
// to a programming-error signal" — and panics rather than silently
// corrupting the permit count.
func (f *Filter) Acquire(waitTime time.Duration) bool {
	select {
	case f.permits <- struct{}{}:
		return true
	default:
	}
	if waitTime <= 0 {
		return false
	}
	timer := time.NewTimer(waitTime)
	defer timer.Stop()
	select {
	case f.permits <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// Release hands a permit back. It panics if called with no permits
// outstanding.
func (f *Filter) Release() {
	select {
	case <-f.permits:
	default:
		panic("admission: Release called with no permit held")
	}
}

// InUse reports how many permits are currently held, for metrics/tests.
func (f *Filter) InUse() int {
	return len(f.permits)
}
