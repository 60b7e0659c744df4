// Package gate implements the abuse prevention gatekeeper sitting in
// front of every inbound request: the block check first, then the rate
// limit check, then the wrapped handler. Every outcome is a response,
// the decision path returns no errors and performs no I/O.
package gate

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mtc-jordan/gatekeeper/blocklist"
	"github.com/mtc-jordan/gatekeeper/logging"
	"github.com/mtc-jordan/gatekeeper/metrics"
	"github.com/mtc-jordan/gatekeeper/net"
	"github.com/mtc-jordan/gatekeeper/ratelimit"
)

// DefaultAuthFailureHeader is the response header upstream auth
// handlers use to signal a failed credential check.
const DefaultAuthFailureHeader = "X-Auth-Failure"

// Options to initialize a gate.
type Options struct {

	// Classifier assigns key, tier and limit to every request.
	Classifier *ratelimit.Classifier

	// Limits is the sliding window counter registry consulted for
	// every non-blocked request.
	Limits *ratelimit.Registry

	// Blocklist is consulted first for every request and receives
	// the reported authentication failures.
	Blocklist *blocklist.Tracker

	// Metrics collects the decision counters and the check
	// latency. Defaults to the global metrics instance.
	Metrics metrics.Metrics

	// AuthFailureHeader is the response header that signals an
	// authentication failure from the wrapped handler. When found,
	// the gate records the failure and strips the header before the
	// response reaches the client. Empty disables the response
	// interception, in-process callers can use ReportAuthFailure
	// instead.
	AuthFailureHeader string

	// Log is used for decision logging. Defaults to the
	// application log.
	Log logging.Logger
}

// Gate is an http.Handler wrapping the downstream handler with the
// block and rate limit checks.
type Gate struct {
	classifier        *ratelimit.Classifier
	limits            *ratelimit.Registry
	blocklist         *blocklist.Tracker
	metrics           metrics.Metrics
	authFailureHeader string
	window            time.Duration
	log               logging.Logger
	next              http.Handler
}

type blockedResponse struct {
	Error      string `json:"error"`
	Reason     string `json:"reason"`
	RetryAfter int    `json:"retry_after"`
}

type ratelimitedResponse struct {
	Error         string `json:"error"`
	Limit         int    `json:"limit"`
	WindowSeconds int    `json:"window_seconds"`
	RetryAfter    int    `json:"retry_after"`
}

// New creates a gate around the next handler.
func New(o Options, next http.Handler) *Gate {
	if o.Metrics == nil {
		o.Metrics = metrics.Default
	}

	if o.Log == nil {
		o.Log = &logging.DefaultLog{}
	}

	return &Gate{
		classifier:        o.Classifier,
		limits:            o.Limits,
		blocklist:         o.Blocklist,
		metrics:           o.Metrics,
		authFailureHeader: o.AuthFailureHeader,
		window:            o.Limits.Window(),
		log:               o.Log,
		next:              next,
	}
}

func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	addr := net.ClientAddr(r)

	if blocked, remaining := g.blocklist.Blocked(addr); blocked {
		g.metrics.IncCounter("gate.blocked")
		g.metrics.MeasureSince("gate.check", start)
		g.log.Debugf("rejected blocked client %s", addr)
		g.serveBlocked(w, remaining)
		return
	}

	claim := g.classifier.Classify(r)
	d := g.limits.Allow(claim.Key, claim.Limit)

	if !d.Allowed {
		g.metrics.IncCounter("gate.ratelimited." + claim.Tier.String())
		g.metrics.MeasureSince("gate.check", start)
		g.log.Debugf("rate limited %s, retry after %v", claim.Key, d.RetryAfter)
		g.serveRatelimited(w, d)
		return
	}

	g.metrics.IncCounter("gate.allowed." + claim.Tier.String())
	g.metrics.MeasureSince("gate.check", start)

	h := w.Header()
	h.Set(ratelimit.Header, strconv.Itoa(d.Limit))
	h.Set(ratelimit.RemainingHeader, strconv.Itoa(d.Remaining))
	h.Set(ratelimit.ResetHeader, strconv.FormatInt(d.ResetAt.Unix(), 10))

	if g.authFailureHeader != "" {
		w = &authFailureWriter{
			ResponseWriter: w,
			header:         g.authFailureHeader,
			addr:           addr,
			blocklist:      g.blocklist,
		}
	}

	g.next.ServeHTTP(w, r)
}

// ReportAuthFailure records an authentication failure for the
// request's client address. It is the explicit signal from the code
// performing the credential check, the gate never infers failures from
// status codes.
func (g *Gate) ReportAuthFailure(r *http.Request) {
	g.blocklist.RecordFailure(net.ClientAddr(r))
}

func (g *Gate) serveBlocked(w http.ResponseWriter, remaining time.Duration) {
	retryAfter := int((remaining + time.Second - 1) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set(ratelimit.RetryAfterHeader, strconv.Itoa(retryAfter))
	serveJSON(w, http.StatusForbidden, &blockedResponse{
		Error:      "IP temporarily blocked",
		Reason:     "Too many failed attempts",
		RetryAfter: retryAfter,
	})
}

func (g *Gate) serveRatelimited(w http.ResponseWriter, d ratelimit.Decision) {
	retryAfter := d.RetryAfterSeconds()
	w.Header().Set(ratelimit.RetryAfterHeader, strconv.Itoa(retryAfter))
	serveJSON(w, http.StatusTooManyRequests, &ratelimitedResponse{
		Error:         "Rate limit exceeded",
		Limit:         d.Limit,
		WindowSeconds: int(g.window / time.Second),
		RetryAfter:    retryAfter,
	})
}

func serveJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// authFailureWriter intercepts the wrapped handler's response: when
// the auth failure header is set, it records the failure and strips
// the header before anything is written to the client.
type authFailureWriter struct {
	http.ResponseWriter
	header      string
	addr        string
	blocklist   *blocklist.Tracker
	intercepted bool
}

func (w *authFailureWriter) intercept() {
	if w.intercepted {
		return
	}
	w.intercepted = true

	if w.Header().Get(w.header) == "" {
		return
	}

	w.Header().Del(w.header)
	w.blocklist.RecordFailure(w.addr)
}

func (w *authFailureWriter) WriteHeader(code int) {
	w.intercept()
	w.ResponseWriter.WriteHeader(code)
}

func (w *authFailureWriter) Write(b []byte) (int, error) {
	w.intercept()
	return w.ResponseWriter.Write(b)
}

func (w *authFailureWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
