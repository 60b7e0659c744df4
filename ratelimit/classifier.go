package ratelimit

import (
	"net/http"
	"strings"

	"github.com/mtc-jordan/gatekeeper/net"
)

const bearerPrefix = "Bearer "

// Claim is the result of classifying a request: the counter key, the
// trust tier and the ceiling to apply.
type Claim struct {
	Key   string
	Tier  Tier
	Limit int
}

// Classifier derives the rate limit key and tier of a request from the
// client address, the request path and the Authorization header.
type Classifier struct {
	settings Settings
}

// NewClassifier creates a classifier with the given settings. Zero
// window and empty login paths are replaced by the defaults, the tier
// ceilings are taken as configured: a non-positive ceiling means that
// every request of that tier is rejected.
func NewClassifier(s Settings) *Classifier {
	return &Classifier{settings: s.withDefaults()}
}

// Classify returns the claim of a request. It is total: requests
// without an identifiable client address are pooled under a shared
// "unknown" identity.
//
// Tier precedence: login endpoints are classified as login tier even
// when the request carries a bearer token, so that credential guessing
// cannot ride on the wider authenticated ceiling.
func (c *Classifier) Classify(r *http.Request) Claim {
	addr := net.ClientAddr(r)

	tier := TierUnauthenticated
	switch {
	case containsAny(r.URL.Path, c.settings.LoginPaths):
		tier = TierLogin
	case strings.HasPrefix(r.Header.Get("Authorization"), bearerPrefix):
		tier = TierAuthenticated
	}

	return Claim{
		Key:   tier.String() + ":" + addr,
		Tier:  tier,
		Limit: c.settings.Limit(tier),
	}
}
