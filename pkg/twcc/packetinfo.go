package twcc

import (
	"sync"
	"time"
)

// PacketInfoStore records the arrival timestamp of every transport-wide
// sequence number it sees, tracking rollovers of the 16-bit wire space the
// same way buffer.Store does: the short-arc rollover test is evaluated
// against maxSeq (this store's analogue of a BufferStore's end_index),
// and an explicit hasBase/hasMax pair replaces the spec's ambiguous
// zero-value nil-coalescing, so a first packet whose extended sequence
// happens to be 0 is handled the same as any other value.
type PacketInfoStore struct {
	mu sync.Mutex

	arrivals map[uint32]time.Time

	baseSeq int64
	hasBase bool
	maxSeq  int64
	hasMax  bool
}

// NewPacketInfoStore returns an empty PacketInfoStore.
func NewPacketInfoStore() *PacketInfoStore {
	return &PacketInfoStore{arrivals: make(map[uint32]time.Time)}
}

// Insert records the arrival of one transport-wide sequence number and
// returns its extended (rollover-aware) index.
func (p *PacketInfoStore) Insert(seq uint16, arrival time.Time) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.classify(seq)
	p.arrivals[idx] = arrival

	if !p.hasBase || int64(idx) < p.baseSeq {
		p.baseSeq = int64(idx)
		p.hasBase = true
	}
	if !p.hasMax || int64(idx) > p.maxSeq {
		p.maxSeq = int64(idx)
		p.hasMax = true
	}
	return idx
}

func (p *PacketInfoStore) classify(seq uint16) uint32 {
	if !p.hasMax {
		return uint32(seq)
	}
	for {
		refWire := uint16(uint32(p.maxSeq))
		refCycle := uint32(p.maxSeq) >> 16

		lo, hi := refWire, seq
		if lo > hi {
			lo, hi = hi, lo
		}
		direct := uint32(hi - lo)
		wrapped := uint32(lo) + (65536 - uint32(hi))

		if wrapped >= direct {
			return refCycle<<16 | uint32(seq)
		}
		if seq > refWire {
			if refCycle == 0 {
				p.shiftUp()
				continue
			}
			return (refCycle-1)<<16 | uint32(seq)
		}
		return (refCycle+1)<<16 | uint32(seq)
	}
}

func (p *PacketInfoStore) shiftUp() {
	const cycle = uint32(1) << 16
	shifted := make(map[uint32]time.Time, len(p.arrivals))
	for idx, t := range p.arrivals {
		shifted[idx+cycle] = t
	}
	p.arrivals = shifted
	if p.hasBase {
		p.baseSeq += int64(cycle)
	}
	if p.hasMax {
		p.maxSeq += int64(cycle)
	}
}

// Empty reports whether the store has recorded any packet since the last
// Reset.
func (p *PacketInfoStore) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.arrivals) == 0
}

// Reset clears all recorded arrivals but keeps the rollover reference
// (maxSeq), so that a later Insert from the same stream still classifies
// correctly.
func (p *PacketInfoStore) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.arrivals = make(map[uint32]time.Time)
	p.hasBase = false
}

// Records returns a contiguous, index-sorted slice of codec Records
// spanning [base, base+count) — the shape Encode requires — filling any
// unseen index with a StatusNotReceived placeholder. It also reports the
// base extended index as a uint16 for the wire's base_seq_num field.
func (p *PacketInfoStore) Records() (baseSeqWire uint16, records []Record) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasBase || !p.hasMax {
		return 0, nil
	}

	count := uint32(p.maxSeq-p.baseSeq) + 1
	records = make([]Record, count)
	for i := uint32(0); i < count; i++ {
		idx := uint32(p.baseSeq) + i
		if t, ok := p.arrivals[idx]; ok {
			records[i] = Record{Index: i, Received: true, Arrival: t}
		} else {
			records[i] = Record{Index: i}
		}
	}
	return uint16(uint32(p.baseSeq)), records
}
