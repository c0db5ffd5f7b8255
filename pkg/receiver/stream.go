// Package receiver wires a jitter.Buffer and a twcc.Responder together
// into one per-SSRC RTP receive stream, and a Factory that manages many
// such streams keyed by SSRC — the glue the specification leaves as
// "external interfaces" for a host process to assemble.
package receiver

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/pion/jitterbuffer/pkg/buffer"
	"github.com/pion/jitterbuffer/pkg/jitter"
	"github.com/pion/jitterbuffer/pkg/twcc"
)

// Logger is the package-wide default, overridable per Stream via
// NewStream's logger argument.
var Logger logr.Logger = logr.Discard()

// Config configures one Stream's jitter buffer and feedback responder.
type Config struct {
	SSRC       uint32        `mapstructure:"ssrc"`
	SenderSSRC uint32        `mapstructure:"sender_ssrc"`
	Latency    time.Duration `mapstructure:"latency"`
	ClockRate  uint32        `mapstructure:"clock_rate"`
}

// Stream is one SSRC's receive-side pipeline: arriving RTP packets feed
// both the reorder/latency buffer and the TWCC arrival tracker.
type Stream struct {
	ssrc      uint32
	buf       *jitter.Buffer
	responder *twcc.Responder
	logger    logr.Logger
}

// NewStream constructs a Stream for one SSRC.
func NewStream(cfg Config, logger logr.Logger) (*Stream, error) {
	if logger.GetSink() == nil {
		logger = Logger
	}
	buf, err := jitter.New(jitter.Config{Latency: cfg.Latency, ClockRate: cfg.ClockRate}, logger)
	if err != nil {
		return nil, err
	}
	return &Stream{
		ssrc:      cfg.SSRC,
		buf:       buf,
		responder: twcc.NewResponder(cfg.SSRC, cfg.SenderSSRC, logger),
		logger:    logger,
	}, nil
}

// SSRC returns the stream's media SSRC.
func (s *Stream) SSRC() uint32 { return s.ssrc }

// OnEvent registers the jitter buffer's release callback.
func (s *Stream) OnEvent(fn func(jitter.Event)) { s.buf.OnEvent(fn) }

// PushRTP feeds one parsed RTP packet into both the jitter buffer and the
// TWCC arrival tracker.
func (s *Stream) PushRTP(pkt *rtp.Packet, arrival time.Time) error {
	s.responder.Push(pkt.SequenceNumber, arrival)
	return s.buf.Push(pkt.SequenceNumber, pkt.Timestamp, pkt)
}

// Stats returns the current RFC 3550 receiver-report snapshot.
func (s *Stream) Stats() jitter.Report { return s.buf.GetAndUpdateStats() }

// BuildFeedback encodes a TWCC RTCP packet for everything recorded since
// the last call, or ok=false if nothing is pending.
func (s *Stream) BuildFeedback() (rtcp.RawPacket, bool, error) { return s.responder.BuildFeedback() }

// Close drains the jitter buffer and returns everything still pending.
func (s *Stream) Close() []buffer.Record { return s.buf.Close() }
