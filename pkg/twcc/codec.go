// Package twcc implements the receive side of Transport-Wide Congestion
// Control: PacketInfoStore records per-packet arrival timestamps across
// 16-bit sequence-number rollovers, and Encode/Decode implement the wire
// format of draft-holmer-rmcat-transport-wide-cc-extensions-01 bit-exact.
package twcc

import (
	"encoding/binary"
	"time"

	"github.com/gammazero/deque"
)

// deltaTick is the wire unit for receive deltas: 250 microseconds.
const deltaTick = 250 * time.Microsecond

// referenceTick is the wire unit for the header's reference_time field:
// 64 milliseconds.
const referenceTick = 64 * time.Millisecond

// StatusKind is one packet's status symbol in a TWCC feedback report.
type StatusKind uint8

const (
	// StatusNotReceived marks a sequence number the receiver never saw.
	StatusNotReceived StatusKind = 0
	// StatusReceivedSmallDelta marks a received packet whose receive
	// delta fits an unsigned one-byte tick count (0 to 63.75ms).
	StatusReceivedSmallDelta StatusKind = 1
	// StatusReceivedLargeDelta marks a received packet whose receive
	// delta needs the signed two-byte encoding.
	StatusReceivedLargeDelta StatusKind = 2
)

// Record is one packet-status slot in a feedback report, indexed by its
// offset from the report's base sequence number (Index 0 is base_seq_num
// itself). Received records must carry Arrival; the caller is responsible
// for resolving extended indices to this base-relative form.
type Record struct {
	Index    uint32
	Received bool
	Arrival  time.Time
}

// Encode builds the wire bytes of one TWCC feedback body (the part that
// follows the generic 4-byte RTCP header) from a contiguous, index-sorted
// slice of Records spanning [baseSeq, baseSeq+len(records)). fbPktCount is
// the sender's monotonically increasing feedback-packet counter.
func Encode(baseSeq uint16, fbPktCount uint8, records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrEmptyReport
	}

	refTime, refWire := quantizeReferenceTime(firstArrival(records))

	statuses := make([]StatusKind, len(records))
	var deltas []int64 // raw tick counts, one per received record, in order
	prev := refTime
	for i, r := range records {
		if !r.Received {
			statuses[i] = StatusNotReceived
			continue
		}
		ticks := clampTicks(r.Arrival.Sub(prev) / deltaTick)
		prev = prev.Add(time.Duration(ticks) * deltaTick)
		if ticks >= 0 && ticks <= 255 {
			statuses[i] = StatusReceivedSmallDelta
		} else {
			statuses[i] = StatusReceivedLargeDelta
		}
		deltas = append(deltas, ticks)
	}

	chunks := buildChunks(statuses)

	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:2], baseSeq)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(records)))
	buf[4] = byte(refWire >> 16)
	buf[5] = byte(refWire >> 8)
	buf[6] = byte(refWire)
	buf[7] = fbPktCount

	for _, c := range chunks {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], c)
		buf = append(buf, b[:]...)
	}

	deltaIdx := 0
	for _, s := range statuses {
		switch s {
		case StatusReceivedSmallDelta:
			buf = append(buf, byte(deltas[deltaIdx]))
			deltaIdx++
		case StatusReceivedLargeDelta:
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], uint16(int16(deltas[deltaIdx])))
			buf = append(buf, b[:]...)
			deltaIdx++
		}
	}

	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf, nil
}

// Decode parses a TWCC feedback body previously produced by Encode (or any
// compliant encoder). The returned Records are indexed relative to the
// decoded base sequence number, with Arrival reconstructed from the
// reference time and the chain of receive deltas.
func Decode(data []byte) (baseSeq uint16, fbPktCount uint8, records []Record, err error) {
	if len(data) < 8 {
		return 0, 0, nil, &DecodeError{Code: DecodeErrShortBuffer, Err: ErrShortBuffer}
	}

	baseSeq = binary.BigEndian.Uint16(data[0:2])
	count := binary.BigEndian.Uint16(data[2:4])
	refWire := uint32(data[4])<<16 | uint32(data[5])<<8 | uint32(data[6])
	fbPktCount = data[7]
	refTime := time.Unix(0, 0).Add(time.Duration(refWire) * referenceTick)

	pos := 8
	statuses := make([]StatusKind, 0, count)
	for uint16(len(statuses)) < count {
		if pos+2 > len(data) {
			return 0, 0, nil, &DecodeError{Code: DecodeErrChunkUnderflow, Err: ErrChunkUnderflow}
		}
		word := binary.BigEndian.Uint16(data[pos : pos+2])
		pos += 2

		symbols, err := decodeChunk(word)
		if err != nil {
			return 0, 0, nil, err
		}
		statuses = append(statuses, symbols...)
	}
	// A chunk's fixed width (7 or 14 symbols) commonly overshoots
	// packet_status_count on the boundary chunk — expected, per §4.4's
	// "final vector over-filled with trailing zeros" — so the excess is
	// simply dropped rather than treated as an error.
	statuses = statuses[:count]

	records = make([]Record, count)
	t := refTime
	for i, s := range statuses {
		records[i] = Record{Index: uint32(i), Received: s != StatusNotReceived}
		switch s {
		case StatusReceivedSmallDelta:
			if pos+1 > len(data) {
				return 0, 0, nil, &DecodeError{Code: DecodeErrChunkUnderflow, Err: ErrChunkUnderflow}
			}
			ticks := int64(data[pos])
			pos++
			t = t.Add(time.Duration(ticks) * deltaTick)
			records[i].Arrival = t
		case StatusReceivedLargeDelta:
			if pos+2 > len(data) {
				return 0, 0, nil, &DecodeError{Code: DecodeErrChunkUnderflow, Err: ErrChunkUnderflow}
			}
			ticks := int64(int16(binary.BigEndian.Uint16(data[pos : pos+2])))
			pos += 2
			t = t.Add(time.Duration(ticks) * deltaTick)
			records[i].Arrival = t
		}
	}

	return baseSeq, fbPktCount, records, nil
}

// runCapacity is the 13-bit run_length field's maximum value (2^13 - 1).
const runCapacity = 1<<13 - 1

// vectorCapacity is the fixed width of the 2-bit status vector this codec
// emits: 7 symbols, per §4.4 "Encoders emit only 2-bit vectors."
const vectorCapacity = 7

// tailChunk is the single chunk currently being accumulated by buildChunks,
// per the §4.4 left-to-right state machine. symbols is built in wire order
// directly, so finalize needs no reordering — only zero-padding up to
// vectorCapacity if the chunk closes short.
type tailChunk struct {
	isVector bool
	status   StatusKind // meaningful only when !isVector
	count    int
	symbols  []StatusKind // meaningful only when isVector
}

func (t *tailChunk) finalize() uint16 {
	if !t.isVector {
		return writeRunLengthChunk(t.status, uint16(t.count))
	}
	ordered := append([]StatusKind(nil), t.symbols...)
	for len(ordered) < vectorCapacity {
		ordered = append(ordered, StatusNotReceived)
	}
	return writeStatusVectorChunk(ordered)
}

// buildChunks packs a status list into run-length and status-vector
// chunks by processing it left-to-right, exactly per §4.4's 5-rule state
// machine. Only the last chunk closed — by the final flush once the
// input is exhausted — can ever be a status vector of fewer than 7
// symbols; every earlier vector closes only when full (rule 5), and every
// earlier run-length closes either at capacity (rule 1) or at a length of
// 7 or more (rule 5), which needs no padding. That keeps any
// zero-padding confined to the trailing edge of the emitted chunk list,
// where Decode's final packet_status_count truncation can safely absorb
// it. chunks accumulates through a deque purely as an ordered FIFO; the
// algorithm itself never needs to look anywhere but the tail.
func buildChunks(statuses []StatusKind) []uint16 {
	var out deque.Deque[uint16]
	var tail *tailChunk

	flush := func() {
		if tail != nil {
			out.PushBack(tail.finalize())
			tail = nil
		}
	}

	for _, s := range statuses {
		switch {
		case tail == nil || (!tail.isVector && tail.count >= runCapacity):
			// Rule 1: empty tail, or run-length at capacity.
			flush()
			tail = &tailChunk{status: s, count: 1}
		case !tail.isVector && tail.status == s:
			// Rule 2: run-length, same status, room to grow.
			tail.count++
		case !tail.isVector && tail.count < vectorCapacity:
			// Rule 3: short run-length, different status — fold into a vector.
			symbols := make([]StatusKind, 0, tail.count+1)
			for k := 0; k < tail.count; k++ {
				symbols = append(symbols, tail.status)
			}
			symbols = append(symbols, s)
			tail = &tailChunk{isVector: true, count: tail.count + 1, symbols: symbols}
		case tail.isVector && tail.count < vectorCapacity:
			// Rule 4: vector with room left.
			tail.symbols = append(tail.symbols, s)
			tail.count++
		default:
			// Rule 5: vector full, or run-length >= 7 with a different status.
			flush()
			tail = &tailChunk{status: s, count: 1}
		}
	}
	flush()

	chunks := make([]uint16, out.Len())
	for k := range chunks {
		chunks[k] = out.PopFront()
	}
	return chunks
}

func writeRunLengthChunk(status StatusKind, runLength uint16) uint16 {
	return uint16(status)<<13 | (runLength & 0x1FFF)
}

// writeStatusVectorChunk packs exactly 7 symbols as a 2-bit status
// vector, per §4.4's "encoders emit only 2-bit vectors."
func writeStatusVectorChunk(statuses []StatusKind) uint16 {
	chunk := uint16(1)<<15 | uint16(1)<<14
	var bits uint16
	shift := 12
	for _, s := range statuses {
		bits |= uint16(s) << uint(shift)
		if shift == 0 {
			break
		}
		shift -= 2
	}
	return chunk | bits
}

// decodeChunk expands one wire chunk into its packet-status symbols. It
// never errors on a chunk producing more symbols than the caller still
// needs — a fixed-width chunk naturally overshoots at the report's
// boundary, and Decode trims the excess afterward (§4.4). A reserved
// status value (3), wherever it appears, is the one case Decode cannot
// recover from.
func decodeChunk(word uint16) ([]StatusKind, error) {
	if word&(1<<15) == 0 {
		status := StatusKind((word >> 13) & 0x3)
		if status == 3 {
			return nil, &DecodeError{Code: DecodeErrUnrecognizedSymbol, Err: ErrUnrecognizedSymbol}
		}
		runLength := word & 0x1FFF
		out := make([]StatusKind, runLength)
		for i := range out {
			out[i] = status
		}
		return out, nil
	}

	twoBit := word&(1<<14) != 0
	if twoBit {
		out := make([]StatusKind, 0, 7)
		for shift := 12; shift >= 0; shift -= 2 {
			s := StatusKind((word >> uint(shift)) & 0x3)
			if s == 3 {
				return nil, &DecodeError{Code: DecodeErrUnrecognizedSymbol, Err: ErrUnrecognizedSymbol}
			}
			out = append(out, s)
		}
		return out, nil
	}
	out := make([]StatusKind, 0, 14)
	for shift := 13; shift >= 0; shift-- {
		s := StatusKind((word >> uint(shift)) & 0x1)
		out = append(out, s)
	}
	return out, nil
}

func firstArrival(records []Record) time.Time {
	for _, r := range records {
		if r.Received {
			return r.Arrival
		}
	}
	return time.Unix(0, 0)
}

// quantizeReferenceTime rounds t down to a 64ms tick and returns both the
// quantized time.Time and the raw 24-bit wire value (which wraps roughly
// every 4.66 hours, exactly as real TWCC feedback does).
func quantizeReferenceTime(t time.Time) (time.Time, uint32) {
	ticks := t.Sub(time.Unix(0, 0)) / referenceTick
	wire := uint32(ticks) & 0xFFFFFF
	quantized := time.Unix(0, 0).Add(time.Duration(wire) * referenceTick)
	return quantized, wire
}

// clampTicks clamps a delta to the signed 16-bit range the large-delta
// encoding can represent, rather than failing the whole report over one
// out-of-range packet — the same "recoverable, log and continue" policy
// applied to late packets elsewhere in this module.
func clampTicks(ticks time.Duration) int64 {
	v := int64(ticks)
	if v > 32767 {
		Logger.Info("clamping TWCC receive delta to the signed 16-bit range", "ticks", v)
		return 32767
	}
	if v < -32768 {
		Logger.Info("clamping TWCC receive delta to the signed 16-bit range", "ticks", v)
		return -32768
	}
	return v
}
