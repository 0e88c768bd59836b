package l5dedup

import (
	"sort"
	"time"

	"github.com/banshee-data/modes1090/internal/modes/l4frames"
	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/cespare/xxhash/v2"
)

// DefaultWindow bounds how far apart two decodes of one transmission can
// arrive, across receivers, and still be collapsed.
const DefaultWindow = 300 * time.Millisecond

// MessageKey is a content fingerprint of a frame payload.
type MessageKey uint64

// KeyOf fingerprints a payload.
func KeyOf(payload []byte) MessageKey {
	return MessageKey(xxhash.Sum64(payload))
}

// Entry is the bookkeeping kept for one forwarded message.
type Entry struct {
	Key       MessageKey
	Best      l4frames.DecodedFrame
	FirstSeen time.Time
	Copies    int
	sources   map[string]struct{}
}

// Sources returns the receivers that decoded the message, sorted.
func (e *Entry) Sources() []string {
	out := make([]string, 0, len(e.sources))
	for s := range e.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Deduplicator suppresses repeats of recently forwarded frames. Age is
// measured on frame timestamps so replays behave like live runs. It is not
// safe for concurrent use; the merger goroutine owns it.
type Deduplicator struct {
	window   time.Duration
	counters *monitoring.Counters

	entries map[MessageKey]*Entry
	order   []*Entry // insertion order, oldest first
	head    int
}

// New creates a Deduplicator. A non-positive window takes DefaultWindow.
func New(window time.Duration, counters *monitoring.Counters) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	if counters == nil {
		counters = monitoring.NewCounters()
	}
	return &Deduplicator{
		window:   window,
		counters: counters,
		entries:  make(map[MessageKey]*Entry),
	}
}

// Offer records f and reports whether it should be forwarded. Only the
// first decode of a key inside the window is forwarded.
func (d *Deduplicator) Offer(f l4frames.DecodedFrame) bool {
	d.evict(f.Timestamp)

	key := KeyOf(f.Payload)
	// An entry can outlive its window when a newer one ahead of it in the
	// queue holds eviction back.
	if e, ok := d.entries[key]; ok && !e.FirstSeen.Before(f.Timestamp.Add(-d.window)) {
		d.counters.DuplicatesSuppressed.Add(1)
		e.Copies++
		e.sources[f.SourceID] = struct{}{}
		if f.Integrity.Better(e.Best.Integrity) {
			e.Best = f
		}
		return false
	}

	e := &Entry{
		Key:       key,
		Best:      f,
		FirstSeen: f.Timestamp,
		Copies:    1,
		sources:   map[string]struct{}{f.SourceID: {}},
	}
	d.entries[key] = e
	d.order = append(d.order, e)
	return true
}

// Lookup returns the entry for key if it has not been evicted yet.
func (d *Deduplicator) Lookup(key MessageKey) (*Entry, bool) {
	e, ok := d.entries[key]
	return e, ok
}

// Len returns the number of live entries.
func (d *Deduplicator) Len() int { return len(d.entries) }

// evict drops entries first seen more than one window before now.
// Timestamps from several receivers are only roughly ordered, so eviction
// stops at the first live entry and Offer re-checks the age of a match.
func (d *Deduplicator) evict(now time.Time) {
	cutoff := now.Add(-d.window)
	for d.head < len(d.order) {
		e := d.order[d.head]
		if !e.FirstSeen.Before(cutoff) {
			break
		}
		if d.entries[e.Key] == e {
			delete(d.entries, e.Key)
		}
		d.order[d.head] = nil
		d.head++
	}
	// Compact once the dead prefix dominates.
	if d.head > 1024 && d.head*2 > len(d.order) {
		n := copy(d.order, d.order[d.head:])
		clear(d.order[n:])
		d.order = d.order[:n]
		d.head = 0
	}
}
