package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultDedupCapacity bounds the deduplication ledger. When the bound is
// exceeded the oldest half of the entries is evicted; duplicates older than
// the bound are tolerated as a low-probability re-processing risk.
const DefaultDedupCapacity = 1000

// fingerprintPrefixLen is how much of the message body participates in the
// fingerprint.
const fingerprintPrefixLen = 20

// Fingerprint derives the duplicate-detection key for an inbound event from
// its source, delivery timestamp, and body prefix.
func Fingerprint(source string, ts time.Time, body string) string {
	prefix := body
	if len(prefix) > fingerprintPrefixLen {
		prefix = prefix[:fingerprintPrefixLen]
	}
	return fmt.Sprintf("%s|%d|%s", source, ts.Unix(), prefix)
}

// DedupLedger is a bounded set of recently processed inbound fingerprints.
// It is safe for concurrent use from interleaved continuations.
type DedupLedger struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]bool
	order    []string
}

// NewDedupLedger creates a ledger with the given capacity. Non-positive
// capacities fall back to DefaultDedupCapacity.
func NewDedupLedger(capacity int) *DedupLedger {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupLedger{
		capacity: capacity,
		seen:     make(map[string]bool),
	}
}

// Seen records the fingerprint and reports whether it was already present.
// Recording and checking are one atomic step so two interleaved deliveries of
// the same event cannot both pass the gate.
func (l *DedupLedger) Seen(fingerprint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen[fingerprint] {
		return true
	}
	l.seen[fingerprint] = true
	l.order = append(l.order, fingerprint)

	if len(l.order) > l.capacity {
		cut := len(l.order) / 2
		for _, fp := range l.order[:cut] {
			delete(l.seen, fp)
		}
		l.order = append([]string(nil), l.order[cut:]...)
		slog.Debug("dedup ledger evicted oldest entries", "evicted", cut, "remaining", len(l.order))
	}
	return false
}

// Len returns the number of tracked fingerprints.
func (l *DedupLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
