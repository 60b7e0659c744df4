// Package ratelimit implements request rate limiting by trust tier,
// backed by per-key sliding window counters.
//
// Every request is classified into one of three tiers: login,
// authenticated or unauthenticated. Each tier has its own ceiling of
// requests per time window, counted separately per client address. The
// sliding window counts events in the trailing window from now, as
// opposed to a fixed-boundary bucket, so a client cannot burst twice
// the limit by straddling a bucket edge.
package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Header is the name of the response header holding the tier's
	// request ceiling.
	Header = "X-RateLimit-Limit"

	// RemainingHeader is the name of the response header holding
	// the number of requests left in the current window.
	RemainingHeader = "X-RateLimit-Remaining"

	// ResetHeader is the name of the response header holding the
	// epoch seconds when the window resets.
	ResetHeader = "X-RateLimit-Reset"

	// RetryAfterHeader is the name of the header which will be used
	// to indicate how long a client should wait before making a new
	// request.
	RetryAfterHeader = "Retry-After"
)

const (
	DefaultLoginLimit           = 5
	DefaultAuthenticatedLimit   = 100
	DefaultUnauthenticatedLimit = 20
	DefaultTimeWindow           = time.Minute

	// DefaultCleanIntervalFactor is applied to the time window to
	// get the interval of recycling idle counters when no explicit
	// clean interval is set.
	DefaultCleanIntervalFactor = 10
)

var defaultLoginPaths = []string{"/auth/token", "/auth/login"}

// Tier is the rate limit class a request belongs to. Each tier has its
// own request ceiling.
type Tier int

const (
	// TierUnauthenticated is applied to requests carrying no
	// credentials.
	TierUnauthenticated Tier = iota

	// TierAuthenticated is applied to requests carrying a bearer
	// token.
	TierAuthenticated

	// TierLogin is applied to requests targeting a login or token
	// endpoint, regardless of credentials.
	TierLogin
)

func (t Tier) String() string {
	switch t {
	case TierLogin:
		return "login"
	case TierAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Settings configures the classifier and the sliding window counters.
type Settings struct {

	// LoginLimit is the request ceiling per window for the login
	// tier.
	LoginLimit int

	// AuthenticatedLimit is the request ceiling per window for the
	// authenticated tier.
	AuthenticatedLimit int

	// UnauthenticatedLimit is the request ceiling per window for
	// the unauthenticated tier.
	UnauthenticatedLimit int

	// TimeWindow is the length of the sliding window, shared by all
	// tiers.
	TimeWindow time.Duration

	// CleanInterval is the interval of recycling counters that have
	// been idle for longer than the time window. When zero, ten
	// times the time window is used.
	CleanInterval time.Duration

	// LoginPaths are the path substrings selecting the login tier.
	LoginPaths []string
}

// DefaultSettings returns the settings with the default tier ceilings
// and window.
func DefaultSettings() Settings {
	return Settings{
		LoginLimit:           DefaultLoginLimit,
		AuthenticatedLimit:   DefaultAuthenticatedLimit,
		UnauthenticatedLimit: DefaultUnauthenticatedLimit,
		TimeWindow:           DefaultTimeWindow,
	}
}

func (s Settings) withDefaults() Settings {
	if s.TimeWindow <= 0 {
		s.TimeWindow = DefaultTimeWindow
	}

	if s.CleanInterval <= 0 {
		s.CleanInterval = s.TimeWindow * DefaultCleanIntervalFactor
	}

	if len(s.LoginPaths) == 0 {
		s.LoginPaths = defaultLoginPaths
	}

	return s
}

// Limit returns the configured ceiling of the given tier.
func (s Settings) Limit(t Tier) int {
	switch t {
	case TierLogin:
		return s.LoginLimit
	case TierAuthenticated:
		return s.AuthenticatedLimit
	default:
		return s.UnauthenticatedLimit
	}
}

func (s Settings) String() string {
	return fmt.Sprintf(
		"ratelimit(login=%d,authenticated=%d,unauthenticated=%d,time-window=%s)",
		s.LoginLimit, s.AuthenticatedLimit, s.UnauthenticatedLimit, s.TimeWindow,
	)
}

// Decision is the outcome of a counter check for one request.
type Decision struct {

	// Allowed is true when the request fits in the current window.
	Allowed bool

	// Limit is the ceiling that was applied.
	Limit int

	// Remaining is the number of requests left in the current
	// window after this one, zero when rejected.
	Remaining int

	// RetryAfter is the duration after which a retry may pass, set
	// only when rejected, and never below one second.
	RetryAfter time.Duration

	// ResetAt is when a full window's worth of requests becomes
	// available again, approximated as one window from now.
	ResetAt time.Time
}

// RetryAfterSeconds returns the retry hint in seconds, rounded up, as
// used in the Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}

func containsAny(path string, substrings []string) bool {
	for _, s := range substrings {
		if s != "" && strings.Contains(path, s) {
			return true
		}
	}

	return false
}
