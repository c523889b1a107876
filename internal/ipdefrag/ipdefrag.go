// Package ipdefrag reassembles fragmented IPv4 datagrams.
//
// The pack's gopacket/ip4defrag wiring (see Gh0st0ne-netcap/encoder/http.go)
// has no timeout/janitor knobs and hides the per-entry bookkeeping the spec
// requires, so this is a small hand-rolled defragmenter in the same style
// as the teacher's own per-entity maps (decoder/ipProfile.go).
package ipdefrag

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FragmentTimeout is the maximum age of an incomplete fragment entry.
const FragmentTimeout = 30 * time.Second

// janitorInterval is how often stale entries are swept.
const janitorInterval = 10 * time.Second

// fragKey identifies a fragmented datagram.
type fragKey struct {
	ipID  uint16
	src   string
	dst   string
	proto uint8
}

// fragment is one piece of a datagram, keyed by its byte offset.
type fragment struct {
	offset  int
	payload []byte
}

// entry accumulates fragments for a single datagram.
type entry struct {
	fragments []fragment
	lastSeen  time.Time
}

// Defragmenter reassembles fragmented IPv4 datagrams with a timeout.
type Defragmenter struct {
	mu      sync.Mutex
	entries map[fragKey]*entry
	log     *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Defragmenter and starts its background janitor.
func New(log *zap.Logger) *Defragmenter {
	if log == nil {
		log = zap.NewNop()
	}

	d := &Defragmenter{
		entries: make(map[fragKey]*entry),
		log:     log.Named("ipdefrag"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go d.janitor()

	return d
}

// Stop halts the background janitor. Safe to call once.
func (d *Defragmenter) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Defragmenter) janitor() {
	defer close(d.doneCh)

	t := time.NewTicker(janitorInterval)
	defer t.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case now := <-t.C:
			d.sweep(now)
		}
	}
}

func (d *Defragmenter) sweep(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, e := range d.entries {
		if now.Sub(e.lastSeen) > FragmentTimeout {
			delete(d.entries, k)
			d.log.Debug("evicted stale fragment entry", zap.Uint16("ip_id", k.ipID))
		}
	}
}

// Insert processes one IPv4 datagram. fragOffset is in 8-byte units, as
// carried in the IPv4 header. If the datagram is unfragmented (fragOffset
// == 0 && !moreFragments) it is returned unchanged without touching the
// cache. When a fragment with moreFragments cleared arrives, the fragments
// cached so far for its key are copied to their offsets, the result is
// returned and the entry is removed; fragments that arrive after it start
// a new entry. Otherwise Insert returns (nil, false).
func (d *Defragmenter) Insert(ipID uint16, src, dst string, proto uint8, fragOffset int, moreFragments bool, payload []byte) ([]byte, bool) {
	if fragOffset == 0 && !moreFragments {
		return payload, true
	}

	key := fragKey{ipID: ipID, src: src, dst: dst, proto: proto}
	byteOffset := fragOffset * 8

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[key]
	if !ok {
		e = &entry{}
		d.entries[key] = e
	}

	e.lastSeen = time.Now()
	e.fragments = append(e.fragments, fragment{offset: byteOffset, payload: payload})

	if moreFragments {
		return nil, false
	}

	// last fragment received: reconstruct.
	maxEnd := 0
	for _, f := range e.fragments {
		if end := f.offset + len(f.payload); end > maxEnd {
			maxEnd = end
		}
	}

	sort.Slice(e.fragments, func(i, j int) bool { return e.fragments[i].offset < e.fragments[j].offset })

	out := make([]byte, maxEnd)
	for _, f := range e.fragments {
		copy(out[f.offset:], f.payload)
	}

	delete(d.entries, key)

	return out, true
}

// Size returns the number of incomplete entries currently tracked.
func (d *Defragmenter) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.entries)
}
