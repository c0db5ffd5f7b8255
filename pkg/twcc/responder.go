package twcc

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/pion/rtcp"
)

// Logger is the package-wide default, overridable per Responder.
var Logger logr.Logger = logr.Discard()

// cadence thresholds, grounded in the teacher's Responder.Push: a report
// is due once enough packets have accumulated and either enough time has
// passed, too many packets are pending, or the sender just closed a frame.
const (
	minPendingPackets  = 20
	reportInterval     = 100 * time.Millisecond
	markerReportAfter  = 50 * time.Millisecond
	maxPendingOverride = 100
)

// Responder glues a PacketInfoStore to the feedback codec and to the
// generic RTCP envelope: it answers "is it time to report" and produces a
// ready-to-send rtcp.RawPacket on demand.
type Responder struct {
	mediaSSRC  uint32
	senderSSRC uint32
	store      *PacketInfoStore
	fbPktCount uint8
	logger     logr.Logger
}

// NewResponder constructs a Responder for one media SSRC's receive-side
// TWCC tracking. senderSSRC identifies this receiver in outgoing RTCP.
func NewResponder(mediaSSRC, senderSSRC uint32, logger logr.Logger) *Responder {
	if logger.GetSink() == nil {
		logger = Logger
	}
	return &Responder{
		mediaSSRC:  mediaSSRC,
		senderSSRC: senderSSRC,
		store:      NewPacketInfoStore(),
		logger:     logger,
	}
}

// Push records one arriving packet's transport-wide sequence number.
func (r *Responder) Push(seq uint16, arrival time.Time) {
	r.store.Insert(seq, arrival)
}

// ShouldSendFeedback applies the teacher's cadence heuristic (see
// SPEC_FULL.md §7): a host loop calls this after each Push to decide
// whether to call BuildFeedback now. marker should be true when the just
// arrived packet set the RTP marker bit (end of a frame).
func (r *Responder) ShouldSendFeedback(pending int, sinceLast time.Duration, marker bool) bool {
	if pending < minPendingPackets {
		return false
	}
	if pending > maxPendingOverride {
		return true
	}
	if marker && sinceLast >= markerReportAfter {
		return true
	}
	return sinceLast >= reportInterval
}

// BuildFeedback encodes everything recorded since the last BuildFeedback
// (or Reset) into one RTCP transport-wide-CC packet, and clears the
// store's arrivals for the next reporting interval. It returns ok=false
// if there is nothing to report.
func (r *Responder) BuildFeedback() (pkt rtcp.RawPacket, ok bool, err error) {
	if r.store.Empty() {
		return nil, false, nil
	}

	baseSeq, records := r.store.Records()
	r.store.Reset()

	body, err := Encode(baseSeq, r.fbPktCount, records)
	if err != nil {
		r.logger.V(1).Info("dropping TWCC report", "error", err)
		return nil, false, err
	}
	r.fbPktCount++

	header := rtcp.Header{
		Padding: false,
		Count:   rtcp.FormatTCC,
		Type:    rtcp.TypeTransportSpecificFeedback,
		Length:  uint16(len(body)/4 + 2),
	}
	headerBytes, err := header.Marshal()
	if err != nil {
		return nil, false, err
	}

	var ssrcs [8]byte
	putUint32(ssrcs[0:4], r.senderSSRC)
	putUint32(ssrcs[4:8], r.mediaSSRC)

	raw := make(rtcp.RawPacket, 0, len(headerBytes)+len(ssrcs)+len(body))
	raw = append(raw, headerBytes...)
	raw = append(raw, ssrcs[:]...)
	raw = append(raw, body...)
	return raw, true, nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
