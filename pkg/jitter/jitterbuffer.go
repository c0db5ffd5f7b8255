// Package jitter implements the receive-side JitterBuffer actor: it wraps
// a buffer.Store with the latency-bounded release timers and RFC 3550
// statistics described in the specification.
package jitter

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pion/jitterbuffer/pkg/buffer"
)

// Logger is the package-wide default, overridable per Buffer via New's
// logger argument, following the teacher's package-level-logr convention.
var Logger logr.Logger = logr.Discard()

// State is the lifecycle of a Buffer.
type State int

const (
	// StateWaiting is the initial state: packets accumulate but nothing
	// is released until Config.Latency has elapsed since the first one.
	StateWaiting State = iota
	// StateRunning releases buffered packets on the normal eviction cycle.
	StateRunning
	// StateDrained means Close has run; Push now fails.
	StateDrained
)

// Config configures a Buffer. Struct tags follow the teacher's
// mapstructure convention for host-process config decoding.
type Config struct {
	// Latency is the maximum time a packet may be held before it is
	// forcibly released even if earlier packets never arrive.
	Latency time.Duration `mapstructure:"latency"`
	// ClockRate is the RTP clock rate of the stream, used to convert RTP
	// timestamp deltas into wall-clock units for the jitter statistic.
	ClockRate uint32 `mapstructure:"clock_rate"`
}

// Buffer is the JitterBuffer actor. All exported methods are safe for
// concurrent use; internally, every operation is serialized under a single
// mutex, matching the specification's single-threaded-actor model.
type Buffer struct {
	mu sync.Mutex

	cfg    Config
	store  *buffer.Store
	stats  Stats
	logger logr.Logger

	state State
	onEvent func(Event)

	initialTimer  *time.Timer
	evictionTimer *time.Timer
	evictionArmed bool

	now func() time.Time
}

// New constructs a Buffer. cfg.Latency must be positive.
func New(cfg Config, logger logr.Logger) (*Buffer, error) {
	if cfg.Latency <= 0 {
		return nil, ErrLatencyRequired
	}
	if logger.GetSink() == nil {
		logger = Logger
	}
	return &Buffer{
		cfg:    cfg,
		store:  buffer.NewStore(),
		logger: logger,
		state:  StateWaiting,
		now:    time.Now,
	}, nil
}

// OnEvent registers the callback invoked whenever records are released or
// the stream drains. It is serialized with Push/Close under the buffer's
// mutex.
func (b *Buffer) OnEvent(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onEvent = fn
}

// Push inserts one arriving packet. On the very first packet, it arms the
// initial-latency timer; once that timer fires the buffer moves to
// StateRunning and begins its normal release cycle.
func (b *Buffer) Push(seq uint16, rtpTimestamp uint32, payload interface{}) error {
	arrival := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateDrained {
		return ErrStreamDrained
	}

	idx, err := b.store.Insert(seq, payload, arrival)
	if err != nil {
		b.logger.V(1).Info("dropping late or duplicate packet", "sequenceNumber", seq, "error", err)
		return err
	}
	b.stats.Observe(idx, rtpTimestamp, arrival, b.cfg.ClockRate)

	if b.state == StateWaiting && b.initialTimer == nil {
		b.initialTimer = time.AfterFunc(b.cfg.Latency, b.onInitialLatencyPassed)
	}
	if b.state == StateRunning && !b.evictionArmed {
		b.rearmEvictionTimer()
	}
	return nil
}

// onInitialLatencyPassed fires once, the first time Config.Latency has
// elapsed since the very first packet arrived. The timer is armed by that
// first accepted Push, not by New, so the store always holds at least that
// packet when this runs; a Buffer that never accepts a packet stays in
// StateWaiting.
func (b *Buffer) onInitialLatencyPassed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateWaiting {
		return
	}
	b.state = StateRunning
	b.sendBuffersLocked()
}

// onEvictionTimerFire runs the normal periodic release cycle. If the
// buffer has since been drained, this is a stale timer firing after
// Close and is ignored.
func (b *Buffer) onEvictionTimerFire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictionArmed = false
	if b.state != StateRunning {
		b.logger.V(2).Info("ignoring eviction timer fire after drain")
		return
	}
	b.sendBuffersLocked()
}

// sendBuffersLocked runs one release cycle: first force-release anything
// older than Config.Latency (skipping any gap left by loss), then release
// whatever is now contiguous with the drain watermark. The two results are
// concatenated — ShiftOrdered always picks up exactly where ShiftOlderThan
// left the drain watermark, so no gap can fall between them — and folded
// into Buffer/Discontinuity events interleaved in index order. Must be
// called with b.mu held.
func (b *Buffer) sendBuffersLocked() {
	cutoff := b.now().Add(-b.cfg.Latency)

	aged := b.store.ShiftOlderThan(cutoff)
	ordered := b.store.ShiftOrdered()

	items := make([]buffer.Item, 0, len(aged)+len(ordered))
	items = append(items, aged...)
	for _, r := range ordered {
		items = append(items, buffer.Item{Kind: buffer.ItemRecord, Record: r})
	}

	if b.onEvent != nil {
		for _, e := range buildEvents(items) {
			b.onEvent(e)
		}
	}

	if b.store.Len() > 0 {
		b.rearmEvictionTimer()
	}
}

// rearmEvictionTimer schedules the next release cycle to run when the
// oldest pending record will cross Config.Latency. Must be called with
// b.mu held.
func (b *Buffer) rearmEvictionTimer() {
	oldest, ok := b.store.FirstRecordTimestamp()
	if !ok {
		return
	}
	wait := b.cfg.Latency - b.now().Sub(oldest)
	if wait < 0 {
		wait = 0
	}
	b.evictionArmed = true
	if b.evictionTimer == nil {
		b.evictionTimer = time.AfterFunc(wait, b.onEvictionTimerFire)
	} else {
		b.evictionTimer.Reset(wait)
	}
}

// Close releases every remaining record, in index order, marks the buffer
// drained, and stops any pending timers.
func (b *Buffer) Close() []buffer.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialTimer != nil {
		b.initialTimer.Stop()
	}
	if b.evictionTimer != nil {
		b.evictionTimer.Stop()
	}

	items := b.store.Dump()
	records := make([]buffer.Record, 0, len(items))
	for _, it := range items {
		if it.Kind == buffer.ItemRecord {
			records = append(records, it.Record)
		}
	}

	b.state = StateDrained
	if len(records) > 0 && b.onEvent != nil {
		b.onEvent(Event{Kind: KindEndOfStream, Records: records})
	}
	return records
}

// GetAndUpdateStats returns a current RFC 3550 receiver-report snapshot
// and resets the fraction-lost interval counters.
func (b *Buffer) GetAndUpdateStats() Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	first, ok := b.store.FirstIndexEver()
	if !ok {
		return Report{}
	}
	// A late pre-rollover packet rebases every stored index up one cycle,
	// so the store's end index is the current highest extended index.
	if end, ok := b.store.EndIndex(); ok {
		b.stats.highestIndex = end
	}
	return b.stats.Snapshot(first)
}

// State returns the buffer's current lifecycle state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
