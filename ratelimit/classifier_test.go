package ratelimit

import (
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultSettings())

	for _, tt := range []struct {
		name          string
		path          string
		authorization string
		xff           string
		expectedTier  Tier
		expectedKey   string
		expectedLimit int
	}{{
		name:          "plain request",
		path:          "/orders",
		expectedTier:  TierUnauthenticated,
		expectedKey:   "unauthenticated:203.0.113.7",
		expectedLimit: DefaultUnauthenticatedLimit,
	}, {
		name:          "bearer token",
		path:          "/orders",
		authorization: "Bearer some.token",
		expectedTier:  TierAuthenticated,
		expectedKey:   "authenticated:203.0.113.7",
		expectedLimit: DefaultAuthenticatedLimit,
	}, {
		name:          "basic auth stays unauthenticated",
		path:          "/orders",
		authorization: "Basic dXNlcjpwYXNz",
		expectedTier:  TierUnauthenticated,
		expectedKey:   "unauthenticated:203.0.113.7",
		expectedLimit: DefaultUnauthenticatedLimit,
	}, {
		name:          "login path",
		path:          "/auth/token",
		expectedTier:  TierLogin,
		expectedKey:   "login:203.0.113.7",
		expectedLimit: DefaultLoginLimit,
	}, {
		name:          "login path with version prefix",
		path:          "/v1/auth/login",
		expectedTier:  TierLogin,
		expectedKey:   "login:203.0.113.7",
		expectedLimit: DefaultLoginLimit,
	}, {
		name:          "login wins over bearer token",
		path:          "/auth/token",
		authorization: "Bearer some.token",
		expectedTier:  TierLogin,
		expectedKey:   "login:203.0.113.7",
		expectedLimit: DefaultLoginLimit,
	}, {
		name:          "forwarded client",
		path:          "/orders",
		xff:           "198.51.100.23, 10.0.0.2",
		expectedTier:  TierUnauthenticated,
		expectedKey:   "unauthenticated:198.51.100.23",
		expectedLimit: DefaultUnauthenticatedLimit,
	}} {
		t.Run(tt.name, func(t *testing.T) {
			r, err := http.NewRequest("GET", tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}

			r.RemoteAddr = "203.0.113.7:51334"
			if tt.authorization != "" {
				r.Header.Set("Authorization", tt.authorization)
			}

			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}

			claim := c.Classify(r)
			if claim.Tier != tt.expectedTier {
				t.Errorf("got tier %v, expected %v", claim.Tier, tt.expectedTier)
			}

			if claim.Key != tt.expectedKey {
				t.Errorf("got key %q, expected %q", claim.Key, tt.expectedKey)
			}

			if claim.Limit != tt.expectedLimit {
				t.Errorf("got limit %d, expected %d", claim.Limit, tt.expectedLimit)
			}
		})
	}
}

func TestClassifyUnknownClient(t *testing.T) {
	c := NewClassifier(DefaultSettings())

	r, err := http.NewRequest("GET", "/orders", nil)
	if err != nil {
		t.Fatal(err)
	}

	claim := c.Classify(r)
	if claim.Key != "unauthenticated:unknown" {
		t.Errorf("got key %q, expected the pooled unknown identity", claim.Key)
	}
}

func TestClassifyCustomLoginPaths(t *testing.T) {
	s := DefaultSettings()
	s.LoginPaths = []string{"/sessions"}
	c := NewClassifier(s)

	r, err := http.NewRequest("POST", "/sessions", nil)
	if err != nil {
		t.Fatal(err)
	}
	r.RemoteAddr = "203.0.113.7:51334"

	if claim := c.Classify(r); claim.Tier != TierLogin {
		t.Errorf("got tier %v, expected the configured login path to match", claim.Tier)
	}

	r, err = http.NewRequest("POST", "/auth/token", nil)
	if err != nil {
		t.Fatal(err)
	}
	r.RemoteAddr = "203.0.113.7:51334"

	if claim := c.Classify(r); claim.Tier != TierUnauthenticated {
		t.Errorf("got tier %v, expected the default login paths to be replaced", claim.Tier)
	}
}
