package blocklist

import (
	"testing"
	"time"
)

func testSettings() Settings {
	return Settings{
		MaxFailedAttempts: 10,
		FailureReset:      time.Hour,
		BlockDuration:     time.Hour,
	}
}

func checkBlocked(t *testing.T, tr *Tracker, addr string) time.Duration {
	t.Helper()
	blocked, remaining := tr.Blocked(addr)
	if !blocked {
		t.Fatalf("%s is not blocked, but expected to be", addr)
	}

	return remaining
}

func checkNotBlocked(t *testing.T, tr *Tracker, addr string) {
	t.Helper()
	if blocked, _ := tr.Blocked(addr); blocked {
		t.Fatalf("%s is blocked, but expected not to be", addr)
	}
}

func TestEscalationAtThreshold(t *testing.T) {
	now := time.Now()
	tr := newTracker(testSettings(), func() time.Time { return now })

	const addr = "5.6.7.8"
	for i := 0; i < 9; i++ {
		tr.RecordFailure(addr)
		checkNotBlocked(t, tr, addr)
	}

	tr.RecordFailure(addr)
	remaining := checkBlocked(t, tr, addr)
	if remaining != time.Hour {
		t.Errorf("got %v remaining block time, expected a full hour", remaining)
	}
}

func TestAddressesAccumulateSeparately(t *testing.T) {
	now := time.Now()
	tr := newTracker(testSettings(), func() time.Time { return now })

	for i := 0; i < 10; i++ {
		tr.RecordFailure("5.6.7.8")
		tr.RecordFailure("9.10.11.12")
	}

	checkBlocked(t, tr, "5.6.7.8")
	checkBlocked(t, tr, "9.10.11.12")
	checkNotBlocked(t, tr, "1.2.3.4")
}

func TestFailureWindowRollover(t *testing.T) {
	now := time.Now()
	tr := newTracker(testSettings(), func() time.Time { return now })

	const addr = "5.6.7.8"
	for i := 0; i < 9; i++ {
		tr.RecordFailure(addr)
	}

	// the next failure arrives after the reset window, restarting
	// the count at one
	now = now.Add(time.Hour + time.Minute)
	tr.RecordFailure(addr)
	checkNotBlocked(t, tr, addr)

	for i := 0; i < 8; i++ {
		tr.RecordFailure(addr)
	}
	checkNotBlocked(t, tr, addr)

	tr.RecordFailure(addr)
	checkBlocked(t, tr, addr)
}

func TestBlockExpiry(t *testing.T) {
	now := time.Now()
	tr := newTracker(testSettings(), func() time.Time { return now })

	const addr = "5.6.7.8"
	for i := 0; i < 10; i++ {
		tr.RecordFailure(addr)
	}

	now = now.Add(30 * time.Minute)
	if remaining := checkBlocked(t, tr, addr); remaining != 30*time.Minute {
		t.Errorf("got %v remaining block time, expected 30m", remaining)
	}

	now = now.Add(30*time.Minute + time.Millisecond)
	checkNotBlocked(t, tr, addr)

	// the expired block was evicted as a side effect
	if _, blocks := tr.Size(); blocks != 0 {
		t.Errorf("found %d block entries after expiry, expected none", blocks)
	}

	// accumulation restarts from one
	for i := 0; i < 9; i++ {
		tr.RecordFailure(addr)
	}
	checkNotBlocked(t, tr, addr)

	tr.RecordFailure(addr)
	checkBlocked(t, tr, addr)
}

func TestStaleRecordsAreSwept(t *testing.T) {
	now := time.Now()
	tr := newTracker(testSettings(), func() time.Time { return now })

	tr.RecordFailure("5.6.7.8")
	tr.RecordFailure("9.10.11.12")

	if failures, _ := tr.Size(); failures != 2 {
		t.Fatalf("got %d failure records, expected 2", failures)
	}

	// the next call after a full reset window sweeps the stale
	// records of other addresses too
	now = now.Add(2 * time.Hour)
	checkNotBlocked(t, tr, "1.2.3.4")

	if failures, _ := tr.Size(); failures != 0 {
		t.Errorf("got %d failure records after sweeping, expected none", failures)
	}
}

func TestDefaultsApplied(t *testing.T) {
	now := time.Now()
	tr := newTracker(Settings{}, func() time.Time { return now })

	if tr.settings.MaxFailedAttempts != DefaultMaxFailedAttempts {
		t.Errorf("got max failed attempts %d, expected the default", tr.settings.MaxFailedAttempts)
	}

	if tr.settings.FailureReset != DefaultFailureReset {
		t.Errorf("got failure reset %v, expected the default", tr.settings.FailureReset)
	}

	if tr.settings.BlockDuration != DefaultBlockDuration {
		t.Errorf("got block duration %v, expected the default", tr.settings.BlockDuration)
	}
}
