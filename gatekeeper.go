/*
Package gatekeeper implements an abuse prevention gatekeeper for
multi-tenant HTTP APIs: a reverse proxy that rate limits every inbound
request by trust tier and temporarily blocks client addresses after
repeated authentication failures.

The Run function starts the daemon: it wires the request classifier,
the sliding window counters, the blocklist tracker and the gate around
a reverse proxy to the configured upstream, and exposes the collected
metrics on a separate support listener. All state is process memory, a
restart clears all counters and blocks.

For the embedded use case, the gate, ratelimit and blocklist packages
can be composed directly into an existing handler chain.
*/
package gatekeeper

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mtc-jordan/gatekeeper/blocklist"
	"github.com/mtc-jordan/gatekeeper/gate"
	"github.com/mtc-jordan/gatekeeper/logging"
	"github.com/mtc-jordan/gatekeeper/metrics"
	"github.com/mtc-jordan/gatekeeper/ratelimit"
)

// Options to start the gatekeeper daemon.
type Options struct {

	// Address is the network address the gatekeeper listens on.
	Address string

	// UpstreamURL is the URL of the service admitted requests are
	// forwarded to.
	UpstreamURL string

	// SupportListener is the network address of the /metrics
	// endpoint, empty disables it.
	SupportListener string

	// AuthenticatedLimit is the per window ceiling for requests
	// carrying a bearer token.
	AuthenticatedLimit int

	// UnauthenticatedLimit is the per window ceiling for requests
	// without credentials.
	UnauthenticatedLimit int

	// LoginLimit is the per window ceiling for login endpoints.
	LoginLimit int

	// TimeWindow is the length of the sliding window, shared by
	// all tiers.
	TimeWindow time.Duration

	// CleanInterval is the interval of recycling idle counters,
	// zero means ten windows.
	CleanInterval time.Duration

	// LoginPaths are the path substrings classified as login
	// endpoints.
	LoginPaths []string

	// MaxFailedAttempts is the failure count at which a client
	// address gets blocked.
	MaxFailedAttempts int

	// FailureReset is the rolling window of failure accumulation.
	FailureReset time.Duration

	// BlockDuration is how long a client address stays blocked.
	BlockDuration time.Duration

	// AuthFailureHeader is the upstream response header signaling
	// a failed credential check.
	AuthFailureHeader string

	// MetricsFlavour selects the metrics backend format, codahale
	// or prometheus.
	MetricsFlavour string

	// MetricsPrefix is the common prefix of the collected metrics
	// keys.
	MetricsPrefix string

	// EnableDebugGcMetrics enables reporting of the Go garbage
	// collector statistics.
	EnableDebugGcMetrics bool

	// EnableRuntimeMetrics enables reporting of the Go runtime
	// statistics.
	EnableRuntimeMetrics bool

	// ApplicationLogPrefix is the prefix of the application log
	// entries.
	ApplicationLogPrefix string

	// ApplicationLogLevel is the level of the application log.
	ApplicationLogLevel log.Level
}

// interval of refreshing the tracked state gauges
const stateGaugeInterval = 10 * time.Second

// Run starts the gatekeeper daemon and blocks serving requests until
// the listener fails.
func Run(o Options) error {
	logging.Init(logging.Options{
		ApplicationLogPrefix: o.ApplicationLogPrefix,
		ApplicationLogLevel:  o.ApplicationLogLevel,
	})

	u, err := url.Parse(o.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid upstream url: %w", err)
	}

	m := metrics.NewMetrics(metrics.Options{
		Format:               metrics.ParseKind(o.MetricsFlavour),
		Prefix:               o.MetricsPrefix,
		EnableDebugGcMetrics: o.EnableDebugGcMetrics,
		EnableRuntimeMetrics: o.EnableRuntimeMetrics,
	})
	metrics.Default = m

	settings := ratelimit.Settings{
		LoginLimit:           o.LoginLimit,
		AuthenticatedLimit:   o.AuthenticatedLimit,
		UnauthenticatedLimit: o.UnauthenticatedLimit,
		TimeWindow:           o.TimeWindow,
		CleanInterval:        o.CleanInterval,
		LoginPaths:           o.LoginPaths,
	}

	registry := ratelimit.NewRegistry(settings)
	defer registry.Close()

	tracker := blocklist.NewTracker(blocklist.Settings{
		MaxFailedAttempts: o.MaxFailedAttempts,
		FailureReset:      o.FailureReset,
		BlockDuration:     o.BlockDuration,
	})

	g := gate.New(gate.Options{
		Classifier:        ratelimit.NewClassifier(settings),
		Limits:            registry,
		Blocklist:         tracker,
		Metrics:           m,
		AuthFailureHeader: o.AuthFailureHeader,
	}, httputil.NewSingleHostReverseProxy(u))

	log.Infof("gatekeeper settings: %s", settings)

	var group errgroup.Group

	if o.SupportListener != "" {
		log.Infof("support listener on %s/metrics", o.SupportListener)
		group.Go(func() error {
			return http.ListenAndServe(o.SupportListener, metrics.NewDefaultHandler(m))
		})
	}

	go trackState(m, registry, tracker)

	log.Infof("listening on %s, forwarding to %s", o.Address, u)
	group.Go(func() error {
		return http.ListenAndServe(o.Address, g)
	})

	return group.Wait()
}

// trackState periodically reports the size of the tracked counter and
// block state.
func trackState(m metrics.Metrics, registry *ratelimit.Registry, tracker *blocklist.Tracker) {
	for range time.Tick(stateGaugeInterval) {
		m.UpdateGauge("ratelimit.keys", float64(registry.Size()))

		failures, blocks := tracker.Size()
		m.UpdateGauge("blocklist.accumulating", float64(failures))
		m.UpdateGauge("blocklist.active", float64(blocks))
	}
}
