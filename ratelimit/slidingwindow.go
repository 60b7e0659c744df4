package ratelimit

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"
)

// number of lock shards, must be a power of two
const shardCount = 64

type shard struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// Registry holds the active sliding window counters, ensures
// synchronized access to them and recycles the idle ones.
//
// One counter per key keeps the timestamps of the admitted requests
// within the trailing time window. The counters are sharded by key
// hash, so that unrelated keys do not serialize on one lock. Expired
// timestamps are physically discarded on every check, which bounds the
// memory per key to one window's worth of admitted traffic, and a
// background cleanup recycles counters whose keys went silent.
type Registry struct {
	window        time.Duration
	cleanInterval time.Duration
	now           func() time.Time
	shards        [shardCount]shard
	quit          chan struct{}
	once          sync.Once
}

// NewRegistry initializes a registry with the provided settings and
// starts its idle counter cleanup. Close releases it.
func NewRegistry(s Settings) *Registry {
	return newRegistry(s, time.Now)
}

func newRegistry(s Settings, now func() time.Time) *Registry {
	s = s.withDefaults()

	r := &Registry{
		window:        s.TimeWindow,
		cleanInterval: s.CleanInterval,
		now:           now,
		quit:          make(chan struct{}),
	}

	for i := range r.shards {
		r.shards[i].entries = make(map[string][]time.Time)
	}

	go r.clean()

	return r
}

func (r *Registry) shardFor(key string) *shard {
	return &r.shards[xxhash.Sum64String(key)&(shardCount-1)]
}

// Allow checks the counter of the given key against the given limit
// and records the request when it fits. The read-prune-count-append
// sequence runs under the key's shard lock: for any key, the number of
// admitted requests within any half-open window never exceeds the
// limit, also under concurrent checks.
//
// A non-positive limit rejects unconditionally and records nothing.
func (r *Registry) Allow(key string, limit int) Decision {
	now := r.now()
	d := Decision{Limit: limit, ResetAt: now.Add(r.window)}

	if limit <= 0 {
		d.RetryAfter = r.window
		return d
	}

	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	horizon := now.Add(-r.window)
	ts := s.entries[key]

	expired := 0
	for expired < len(ts) && !ts[expired].After(horizon) {
		expired++
	}
	if expired > 0 {
		ts = append(ts[:0], ts[expired:]...)
	}

	if len(ts) >= limit {
		d.RetryAfter = r.window - now.Sub(ts[0])
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}

		s.entries[key] = ts
		return d
	}

	d.Allowed = true
	d.Remaining = limit - len(ts) - 1
	s.entries[key] = append(ts, now)

	return d
}

// Window returns the length of the sliding window.
func (r *Registry) Window() time.Duration {
	return r.window
}

// Size returns the number of tracked keys.
func (r *Registry) Size() int {
	var n int
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}

	return n
}

// Close stops the cleanup of the registry. It is idempotent.
func (r *Registry) Close() {
	r.once.Do(func() {
		close(r.quit)
	})
}

func (r *Registry) clean() {
	ticker := time.NewTicker(r.cleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.dropIdle(r.now())
		case <-r.quit:
			return
		}
	}
}

// dropIdle deletes the counters whose newest entry fell out of the
// window, the rest will be pruned on their next check anyway.
func (r *Registry) dropIdle(now time.Time) {
	horizon := now.Add(-r.window)

	var dropped int
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for key, ts := range s.entries {
			if len(ts) == 0 || !ts[len(ts)-1].After(horizon) {
				delete(s.entries, key)
				dropped++
			}
		}
		s.mu.Unlock()
	}

	if dropped > 0 {
		log.Debugf("recycled %d idle ratelimit counters", dropped)
	}
}
