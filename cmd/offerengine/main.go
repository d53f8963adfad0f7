// Command offerengine wires the Offer Matcher Manager, Launch Rate
// Limiter, and Concurrent Request Admission Filter into a runnable
// process: it exposes token accounting over yarpc JSON procedures gated by
// the admission filter's unary-inbound middleware, fronts a debug HTTP
// surface behind the same filter, and periodically drains the offer
// feed's held offers into the Manager. It is a reference wiring, not a
// complete scheduler: offer ingestion and matcher content are external
// collaborators the spec deliberately leaves out of scope.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	"go.uber.org/yarpc"
	ytransport "go.uber.org/yarpc/transport/http"

	"github.com/ranxxerox/marathon/admission"
	"github.com/ranxxerox/marathon/common/clock"
	"github.com/ranxxerox/marathon/config"
	"github.com/ranxxerox/marathon/offerfeed"
	"github.com/ranxxerox/marathon/offermanager"
	"github.com/ranxxerox/marathon/ratelimiter"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the offerengine YAML config")
	rpcAddr := flag.String("rpc-addr", ":9091", "address the control-plane yarpc inbound listens on")
	debugAddr := flag.String("debug-addr", ":9092", "address the admission-filtered debug HTTP surface listens on")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if lvl, lerr := log.ParseLevel(cfg.Logging.Level); lerr == nil {
		log.SetLevel(lvl)
	}

	clk := clock.Real{}
	// A production deployment plugs a real tally.StatsReporter (e.g.
	// statsd) in here; the demo wiring reports nowhere.
	scope := tally.NoopScope

	limiter := ratelimiter.New(clk)
	filter := admission.New(cfg.Filter)
	feedMetrics := offerfeed.NewMetrics(scope)
	feed := offerfeed.New(cfg.Feed.HoldTime, clk, feedMetrics)

	mgr := offermanager.New(
		cfg.Manager.ToOfferManagerConfig(),
		offermanager.NewMetrics(scope),
		clk,
		func(wanted bool) {
			log.WithField("wanted", wanted).Debug("offers-wanted signal changed")
		},
	)
	defer mgr.Stop()

	dispatcher := yarpc.NewDispatcher(yarpc.Config{
		Name: "offerengine",
		Inbounds: yarpc.Inbounds{
			ytransport.NewTransport().NewInbound(*rpcAddr),
		},
		InboundMiddleware: yarpc.InboundMiddleware{
			Unary: filter.UnaryInboundMiddleware(),
		},
	})
	offermanager.RegisterProcedures(dispatcher, mgr)
	if err := dispatcher.Start(); err != nil {
		log.WithError(err).Fatal("failed to start yarpc dispatcher")
	}
	defer dispatcher.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "offers held: %d\nadmission in-use: %d\n", feed.Len(), filter.InUse())
	})
	debugServer := &http.Server{Addr: *debugAddr, Handler: filter.Wrap(mux)}
	go func() {
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("debug HTTP server stopped")
		}
	}()

	applyLimiter(limiter, clk)
	runFeedLoop(feed, mgr)
}

// applyLimiter is a placeholder demonstrating the Limiter's call shape: a
// real launcher consults GetDelay before attempting a launch and calls
// AddDelay when that attempt fails, per spec.md §4.2.
func applyLimiter(l *ratelimiter.Limiter, clk clock.Clock) {
	log.WithField("now", clk.Now()).Debug("rate limiter initialized")
	_ = l
}

// runFeedLoop periodically evicts offers that expired unclaimed and drains
// the rest into the Manager, logging the outcome of each round. It blocks
// forever; a real process would instead drive this from an offer-source
// callback rather than a fixed-interval tick.
func runFeedLoop(feed *offerfeed.Feed, mgr *offermanager.Manager) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		expired := feed.RemoveExpired()
		if len(expired) > 0 {
			log.WithField("count", len(expired)).Warn("offers expired unclaimed in feed")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		results := feed.Drain(ctx, mgr)
		cancel()
		if len(results) > 0 {
			log.WithField("count", len(results)).Debug("drained offers through manager")
		}
	}
}
