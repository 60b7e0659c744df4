// Package blocklist tracks the failure reputation of client addresses
// and escalates repeated authentication failures to a timed block.
//
// Per address, the tracker accumulates reported failures within a
// rolling reset window. When the count reaches the configured maximum,
// the address is blocked for the configured duration. A block expires
// by waiting it out, there is no manual unblock, and a success does not
// reset the count.
package blocklist

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxFailedAttempts = 10
	DefaultFailureReset      = time.Hour
	DefaultBlockDuration     = time.Hour
)

// Settings configures the tracker.
type Settings struct {

	// MaxFailedAttempts is the failure count at which an address
	// gets blocked.
	MaxFailedAttempts int

	// FailureReset is the rolling window of failure accumulation:
	// a failure arriving later than this after the window started
	// restarts the count at one.
	FailureReset time.Duration

	// BlockDuration is how long an address stays blocked after
	// escalation.
	BlockDuration time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.MaxFailedAttempts <= 0 {
		s.MaxFailedAttempts = DefaultMaxFailedAttempts
	}

	if s.FailureReset <= 0 {
		s.FailureReset = DefaultFailureReset
	}

	if s.BlockDuration <= 0 {
		s.BlockDuration = DefaultBlockDuration
	}

	return s
}

type failureRecord struct {
	count       int
	windowStart time.Time
}

// Tracker holds the failure records and active blocks per client
// address. Expired state is observed lazily: a block past its expiry
// is reported unblocked and evicted on the next lookup, and stale
// records are swept opportunistically, at most once per reset window,
// as a side effect of regular calls.
type Tracker struct {
	mu        sync.Mutex
	settings  Settings
	now       func() time.Time
	failures  map[string]*failureRecord
	blocks    map[string]time.Time
	lastSweep time.Time
}

// NewTracker creates a tracker with the given settings. Non-positive
// settings are replaced by the defaults.
func NewTracker(s Settings) *Tracker {
	return newTracker(s, time.Now)
}

func newTracker(s Settings, now func() time.Time) *Tracker {
	return &Tracker{
		settings: s.withDefaults(),
		now:      now,
		failures: make(map[string]*failureRecord),
		blocks:   make(map[string]time.Time),
	}
}

// Blocked reports whether addr is currently blocked, and for how much
// longer. An expired block is treated as absent and evicted.
func (t *Tracker) Blocked(addr string) (bool, time.Duration) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweep(now)

	expiry, ok := t.blocks[addr]
	if !ok {
		return false, 0
	}

	if !expiry.After(now) {
		delete(t.blocks, addr)
		return false, 0
	}

	return true, expiry.Sub(now)
}

// RecordFailure records an authentication failure for addr, blocking
// it when the failure count within the reset window reaches the
// configured maximum. The caller signals failures explicitly: only the
// code performing the credential check knows that an attempt was one.
func (t *Tracker) RecordFailure(addr string) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweep(now)

	rec, ok := t.failures[addr]
	if !ok || now.Sub(rec.windowStart) > t.settings.FailureReset {
		rec = &failureRecord{windowStart: now}
		t.failures[addr] = rec
	}
	rec.count++

	if rec.count >= t.settings.MaxFailedAttempts {
		// accumulation restarts at one after the block expires
		delete(t.failures, addr)
		t.blocks[addr] = now.Add(t.settings.BlockDuration)
		log.Infof("blocked %s for %v after %d failed attempts", addr, t.settings.BlockDuration, rec.count)
	}
}

// Size returns the number of tracked failure records and active
// blocks.
func (t *Tracker) Size() (failures, blocks int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failures), len(t.blocks)
}

// sweep drops stale failure records and expired blocks, at most once
// per reset window, to bound growth from addresses that went silent.
// Callers must hold the lock.
func (t *Tracker) sweep(now time.Time) {
	if now.Sub(t.lastSweep) < t.settings.FailureReset {
		return
	}
	t.lastSweep = now

	for addr, rec := range t.failures {
		if now.Sub(rec.windowStart) > t.settings.FailureReset {
			delete(t.failures, addr)
		}
	}

	for addr, expiry := range t.blocks {
		if !expiry.After(now) {
			delete(t.blocks, addr)
		}
	}
}
