package filter

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DedupeFilter collapses repeated identical device lines for logging
type DedupeFilter struct {
	mu          sync.Mutex
	clock       clock.Clock
	window      time.Duration // Time window for deduplication (0 = consecutive only)
	seen        map[string]*dedupeEntry
	lastMessage string
}

type dedupeEntry struct {
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// NewDedupeFilter creates a new deduplication filter
// window=0 means only collapse consecutive identical lines
// window>0 means collapse identical lines within the time window
func NewDedupeFilter(window time.Duration, clk clock.Clock) *DedupeFilter {
	if clk == nil {
		clk = clock.New()
	}
	return &DedupeFilter{
		clock:  clk,
		window: window,
		seen:   make(map[string]*dedupeEntry),
	}
}

// DedupeResult holds the result of a dedupe check
type DedupeResult struct {
	ShouldEmit bool      // Whether this line should be logged
	Count      int       // Number of occurrences so far (1 = first occurrence)
	FirstSeen  time.Time // First occurrence timestamp
	LastSeen   time.Time // Last occurrence timestamp (same as FirstSeen if count=1)
}

// Check determines if a line should be logged or suppressed
func (f *DedupeFilter) Check(line string) DedupeResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()

	if f.window > 0 {
		f.cleanOldEntries(now)
	}

	if existing, ok := f.seen[line]; ok {
		existing.count++
		existing.lastSeen = now

		// In window mode, always suppress duplicates within window
		// In consecutive mode, only suppress if same as last line
		if f.window > 0 || f.lastMessage == line {
			return DedupeResult{
				ShouldEmit: false,
				Count:      existing.count,
				FirstSeen:  existing.firstSeen,
				LastSeen:   existing.lastSeen,
			}
		}
	}

	f.seen[line] = &dedupeEntry{
		count:     1,
		firstSeen: now,
		lastSeen:  now,
	}
	f.lastMessage = line

	return DedupeResult{
		ShouldEmit: true,
		Count:      1,
		FirstSeen:  now,
		LastSeen:   now,
	}
}

// Reset clears the deduplication state
func (f *DedupeFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = make(map[string]*dedupeEntry)
	f.lastMessage = ""
}

// cleanOldEntries removes entries outside the time window
func (f *DedupeFilter) cleanOldEntries(now time.Time) {
	cutoff := now.Add(-f.window)
	for key, entry := range f.seen {
		if entry.lastSeen.Before(cutoff) {
			delete(f.seen, key)
		}
	}
}
