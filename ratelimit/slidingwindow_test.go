package ratelimit

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func checkAllowed(t *testing.T, d Decision, remaining int) {
	t.Helper()
	if !d.Allowed {
		t.Error("request is rate limited, but expected to be allowed")
	}

	if d.Remaining != remaining {
		t.Errorf("got %d remaining, expected %d", d.Remaining, remaining)
	}
}

func checkRatelimited(t *testing.T, d Decision) {
	t.Helper()
	if d.Allowed {
		t.Error("request is allowed, but expected to be rate limited")
	}

	if d.Remaining != 0 {
		t.Errorf("got %d remaining on a rejected request", d.Remaining)
	}

	if d.RetryAfter < time.Second {
		t.Errorf("got retry-after %v, expected at least one second", d.RetryAfter)
	}
}

func TestAllowCountsDownRemaining(t *testing.T) {
	now := time.Now()
	r := newRegistry(Settings{LoginLimit: 5, TimeWindow: time.Minute}, func() time.Time { return now })
	defer r.Close()

	for i, remaining := range []int{4, 3, 2, 1, 0} {
		d := r.Allow("login:1.2.3.4", 5)
		checkAllowed(t, d, remaining)

		if d.Limit != 5 {
			t.Errorf("got limit %d on request %d, expected 5", d.Limit, i)
		}

		if d.ResetAt != now.Add(time.Minute) {
			t.Errorf("got reset at %v, expected one window from now", d.ResetAt)
		}

		now = now.Add(2 * time.Second)
	}

	d := r.Allow("login:1.2.3.4", 5)
	checkRatelimited(t, d)

	// the oldest surviving entry is 10s old
	if d.RetryAfter != 50*time.Second {
		t.Errorf("got retry-after %v, expected 50s", d.RetryAfter)
	}
}

func TestWindowRollover(t *testing.T) {
	now := time.Now()
	r := newRegistry(Settings{TimeWindow: time.Minute}, func() time.Time { return now })
	defer r.Close()

	const key = "unauthenticated:1.2.3.4"
	for i := 0; i < 3; i++ {
		checkAllowed(t, r.Allow(key, 3), 3-i-1)
	}
	checkRatelimited(t, r.Allow(key, 3))

	now = now.Add(time.Minute + time.Millisecond)
	checkAllowed(t, r.Allow(key, 3), 2)
}

func TestRetryAfterLowerBound(t *testing.T) {
	now := time.Now()
	r := newRegistry(Settings{TimeWindow: time.Minute}, func() time.Time { return now })
	defer r.Close()

	checkAllowed(t, r.Allow("k", 1), 0)

	now = now.Add(59*time.Second + 700*time.Millisecond)
	d := r.Allow("k", 1)
	checkRatelimited(t, d)
	if d.RetryAfter != time.Second {
		t.Errorf("got retry-after %v, expected the one second floor", d.RetryAfter)
	}

	if d.RetryAfterSeconds() != 1 {
		t.Errorf("got retry-after %ds, expected 1s", d.RetryAfterSeconds())
	}
}

func TestZeroLimitRejectsUnconditionally(t *testing.T) {
	now := time.Now()
	r := newRegistry(Settings{TimeWindow: time.Minute}, func() time.Time { return now })
	defer r.Close()

	for i := 0; i < 3; i++ {
		d := r.Allow("disabled", 0)
		if d.Allowed {
			t.Fatal("request is allowed for a zero limit key")
		}

		if d.RetryAfter != time.Minute {
			t.Errorf("got retry-after %v, expected the full window", d.RetryAfter)
		}
	}

	if r.Size() != 0 {
		t.Errorf("recorded %d entries for a zero limit key", r.Size())
	}
}

func TestKeysDoNotShareCounters(t *testing.T) {
	now := time.Now()
	r := newRegistry(Settings{TimeWindow: time.Minute}, func() time.Time { return now })
	defer r.Close()

	checkAllowed(t, r.Allow("unauthenticated:1.2.3.4", 1), 0)
	checkRatelimited(t, r.Allow("unauthenticated:1.2.3.4", 1))
	checkAllowed(t, r.Allow("authenticated:1.2.3.4", 1), 0)
}

func TestExpiredEntriesArePruned(t *testing.T) {
	now := time.Now()
	r := newRegistry(Settings{TimeWindow: time.Minute}, func() time.Time { return now })
	defer r.Close()

	const key = "login:1.2.3.4"
	for i := 0; i < 3; i++ {
		r.Allow(key, 3)
	}

	now = now.Add(2 * time.Minute)
	r.Allow(key, 3)

	s := r.shardFor(key)
	s.mu.Lock()
	stored := len(s.entries[key])
	s.mu.Unlock()

	if stored != 1 {
		t.Errorf("found %d stored entries, expected the expired ones discarded", stored)
	}
}

func TestIdleCountersAreRecycled(t *testing.T) {
	now := time.Now()
	r := newRegistry(Settings{TimeWindow: time.Minute}, func() time.Time { return now })
	defer r.Close()

	r.Allow("a", 3)
	r.Allow("b", 3)
	if r.Size() != 2 {
		t.Fatalf("got %d tracked keys, expected 2", r.Size())
	}

	now = now.Add(2 * time.Minute)
	r.dropIdle(now)

	if r.Size() != 0 {
		t.Errorf("got %d tracked keys after recycling, expected none", r.Size())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := NewRegistry(Settings{})
	r.Close()
	r.Close()
}

func TestConcurrentAllow(t *testing.T) {
	const (
		limit      = 10
		concurrent = 50
	)

	r := NewRegistry(Settings{TimeWindow: time.Minute})
	defer r.Close()

	var admitted int64
	var g errgroup.Group
	for i := 0; i < concurrent; i++ {
		g.Go(func() error {
			if r.Allow("shared", limit).Allowed {
				atomic.AddInt64(&admitted, 1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if admitted != limit {
		t.Errorf("admitted %d concurrent requests, expected exactly %d", admitted, limit)
	}
}

func TestSettingsString(t *testing.T) {
	s := DefaultSettings()
	expected := fmt.Sprintf(
		"ratelimit(login=%d,authenticated=%d,unauthenticated=%d,time-window=%s)",
		DefaultLoginLimit, DefaultAuthenticatedLimit, DefaultUnauthenticatedLimit, DefaultTimeWindow,
	)

	if s.String() != expected {
		t.Errorf("got %q, expected %q", s, expected)
	}
}
