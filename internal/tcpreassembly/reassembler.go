// Package tcpreassembly rebuilds a sequence-ordered byte stream from
// possibly out-of-order TCP segments of a single flow direction.
//
// The teacher's own decoder/stream/tcpConnection.go wraps
// github.com/dreadl0ck/netcap/reassembly, which owns sequencing internally
// and only reports aggregate stats (sg.Stats(), outOfOrderBytes, ...). The
// spec requires exact, inspectable admission/eviction/idle semantics that
// library doesn't expose as tunables, so this reassembler is hand-written,
// following the same shape: a per-flow struct guarded by its own mutex, a
// stats counter block held by the Reassembler, and zap logging on every
// anomaly.
package tcpreassembly

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Limits from spec §3/§6.
const (
	CacheMax    = 1000
	evictBatch  = 300 // 30% of CacheMax
	IdleTimeout = 30 * time.Second
)

// flowState is the sequence-ordered byte stream state for one flow direction.
type flowState struct {
	mu sync.Mutex

	hasNext  bool
	nextSeq  uint32
	oosCache map[uint32][]byte
	order    []uint32 // insertion order of entries still live in oosCache

	assembled    []byte
	lastActivity time.Time
}

// Stats are exported reassembly counters, mirroring the shape of the
// teacher's package-level `stats` struct in decoder/stream/tcpConnection.go.
type Stats struct {
	mu sync.Mutex

	SegmentsAdmitted int64
	SegmentsDropped  int64
	OutOfOrderBytes  int64
	Evictions        int64
	IdleResets       int64
}

func (s *Stats) addAdmitted(n int64) {
	s.mu.Lock()
	s.SegmentsAdmitted += n
	s.mu.Unlock()
}

func (s *Stats) addDropped(n int64) {
	s.mu.Lock()
	s.SegmentsDropped += n
	s.mu.Unlock()
}

func (s *Stats) addOOOBytes(n int64) {
	s.mu.Lock()
	s.OutOfOrderBytes += n
	s.mu.Unlock()
}

func (s *Stats) addEvictions(n int64) {
	s.mu.Lock()
	s.Evictions += n
	s.mu.Unlock()
}

func (s *Stats) addIdleResets(n int64) {
	s.mu.Lock()
	s.IdleResets += n
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		SegmentsAdmitted: s.SegmentsAdmitted,
		SegmentsDropped:  s.SegmentsDropped,
		OutOfOrderBytes:  s.OutOfOrderBytes,
		Evictions:        s.Evictions,
		IdleResets:       s.IdleResets,
	}
}

// Reassembler holds the byte stream for a single active flow direction.
//
// Spec §5 notes that, in this design, there is one active game flow at a
// time, so a single exclusive section covering admission+drain suffices;
// flowState.mu is that section.
type Reassembler struct {
	state Stats
	fs    *flowState
	log   *zap.Logger
}

// New creates an empty Reassembler.
func New(log *zap.Logger) *Reassembler {
	if log == nil {
		log = zap.NewNop()
	}

	return &Reassembler{
		fs:  &flowState{oosCache: make(map[uint32][]byte)},
		log: log.Named("tcpreassembly"),
	}
}

// Init sets the frontier sequence number for a newly identified flow.
// Called once by the flow router when the game flow is first confirmed.
func (r *Reassembler) Init(seq uint32) {
	r.fs.mu.Lock()
	defer r.fs.mu.Unlock()

	r.fs.hasNext = true
	r.fs.nextSeq = seq
	r.fs.assembled = r.fs.assembled[:0]
	r.fs.oosCache = make(map[uint32][]byte)
	r.fs.order = nil
	r.fs.lastActivity = time.Now()
}

// seqCmp returns next-seq in signed 32-bit modular arithmetic, matching
// spec §9's "(a - b) as signed 32-bit" rule.
func seqCmp(nextSeq, seq uint32) int32 {
	return int32(nextSeq - seq)
}

// Admit processes one TCP segment for the active flow. Empty payloads are
// discarded before cache admission, per spec §3.
func (r *Reassembler) Admit(seq uint32, payload []byte) {
	if len(payload) == 0 {
		return
	}

	r.fs.mu.Lock()
	defer r.fs.mu.Unlock()

	if !r.fs.hasNext {
		r.fs.hasNext = true
		r.fs.nextSeq = seq
	}

	r.fs.lastActivity = time.Now()

	if seqCmp(r.fs.nextSeq, seq) > 0 {
		// older than the contiguous frontier: discard.
		r.state.addDropped(1)
		r.log.Debug("dropped stale tcp segment", zap.Uint32("seq", seq), zap.Uint32("next_seq", r.fs.nextSeq))

		return
	}

	if _, exists := r.fs.oosCache[seq]; !exists {
		r.fs.order = append(r.fs.order, seq)
	}

	r.fs.oosCache[seq] = payload
	r.state.addAdmitted(1)

	if seq != r.fs.nextSeq {
		r.state.addOOOBytes(int64(len(payload)))
	}

	r.drainLocked()
	r.evictIfNeededLocked()
}

// drainLocked appends contiguous cached segments onto assembled and advances
// the frontier. Caller must hold fs.mu.
func (r *Reassembler) drainLocked() {
	for {
		data, ok := r.fs.oosCache[r.fs.nextSeq]
		if !ok {
			return
		}

		r.fs.assembled = append(r.fs.assembled, data...)
		delete(r.fs.oosCache, r.fs.nextSeq)
		r.removeFromOrderLocked(r.fs.nextSeq)

		r.fs.nextSeq += uint32(len(data))
	}
}

func (r *Reassembler) removeFromOrderLocked(seq uint32) {
	for i, s := range r.fs.order {
		if s == seq {
			r.fs.order = append(r.fs.order[:i], r.fs.order[i+1:]...)
			return
		}
	}
}

// evictIfNeededLocked enforces the bounded-memory invariant: when the cache
// exceeds CacheMax entries, the oldest evictBatch (by insertion order) are
// dropped. Caller must hold fs.mu.
func (r *Reassembler) evictIfNeededLocked() {
	if len(r.fs.oosCache) <= CacheMax {
		return
	}

	n := evictBatch
	if n > len(r.fs.order) {
		n = len(r.fs.order)
	}

	for i := 0; i < n; i++ {
		delete(r.fs.oosCache, r.fs.order[i])
	}

	r.fs.order = r.fs.order[n:]
	r.state.addEvictions(int64(n))

	r.log.Warn("out-of-order cache overflow, evicted oldest segments", zap.Int("evicted", n), zap.Int("remaining", len(r.fs.oosCache)))
}

// Assembled returns the current contiguous byte stream. The returned slice
// must not be retained past the next call to Consume.
func (r *Reassembler) Assembled() []byte {
	r.fs.mu.Lock()
	defer r.fs.mu.Unlock()

	return r.fs.assembled
}

// Consume removes the first n bytes of the assembled buffer, e.g. after the
// frame splitter has sliced off complete frames.
func (r *Reassembler) Consume(n int) {
	r.fs.mu.Lock()
	defer r.fs.mu.Unlock()

	if n >= len(r.fs.assembled) {
		r.fs.assembled = r.fs.assembled[:0]

		return
	}

	r.fs.assembled = r.fs.assembled[n:]
}

// Flush discards the entire assembled buffer, used when the frame splitter
// encounters a corrupt length prefix.
func (r *Reassembler) Flush() {
	r.fs.mu.Lock()
	defer r.fs.mu.Unlock()

	r.fs.assembled = r.fs.assembled[:0]
}

// NextSeq returns the current contiguous frontier.
func (r *Reassembler) NextSeq() (seq uint32, ok bool) {
	r.fs.mu.Lock()
	defer r.fs.mu.Unlock()

	return r.fs.nextSeq, r.fs.hasNext
}

// CheckIdle reports whether the flow has been silent longer than
// IdleTimeout, and resets the reassembler if so. Returns true if a reset
// occurred, signalling the caller (flow router) to invalidate its flow
// identity per spec §4.4.
func (r *Reassembler) CheckIdle(now time.Time) bool {
	r.fs.mu.Lock()
	defer r.fs.mu.Unlock()

	if !r.fs.hasNext || r.fs.lastActivity.IsZero() {
		return false
	}

	if now.Sub(r.fs.lastActivity) <= IdleTimeout {
		return false
	}

	r.fs.assembled = nil
	r.fs.hasNext = false
	r.fs.nextSeq = 0
	r.fs.oosCache = make(map[uint32][]byte)
	r.fs.order = nil

	r.state.addIdleResets(1)
	r.log.Warn("tcp flow idle, resetting reassembler")

	return true
}

// Stats returns a snapshot of the reassembly counters.
func (r *Reassembler) Stats() Stats {
	return r.state.Snapshot()
}

// CacheSize returns the number of entries currently buffered out-of-order.
func (r *Reassembler) CacheSize() int {
	r.fs.mu.Lock()
	defer r.fs.mu.Unlock()

	return len(r.fs.oosCache)
}
