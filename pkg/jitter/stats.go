package jitter

import "time"

// Stats tracks the RFC 3550 Appendix A.3/A.8 receiver-report quantities:
// interarrival jitter (an exponentially-weighted moving average with /16
// smoothing) and cumulative/fractional packet loss, measured against the
// highest extended index seen so far.
type Stats struct {
	highestIndex    uint32
	haveHighest     bool
	received        uint64
	jitter          float64
	haveLastArrival bool
	lastArrival     time.Time
	lastTimestamp   uint32

	// lost-fraction bookkeeping, reset by Snapshot.
	expectedAtLastReport uint64
	receivedAtLastReport uint64
}

// Report is a point-in-time snapshot suitable for an RTCP receiver report.
// Jitter and FractionLost are already rounded/clamped to their RTCP wire
// forms (a u32 timestamp-tick count and an 8-bit fixed-point fraction,
// lost/expected scaled by 256); for
// the unclamped f64 forms get_and_update_stats itself specifies, see
// InterarrivalJitter and FractionLostFraction.
type Report struct {
	Jitter         uint32
	CumulativeLost int64
	FractionLost   uint8
	HighestIndex   uint32

	// InterarrivalJitter is the raw RFC 3550 A.8 jitter estimate, in
	// clockRate timestamp ticks, before rounding to Jitter's u32 wire form.
	InterarrivalJitter float64
	// FractionLostFraction is lost_interval/expected_interval for this
	// interval, unclamped, before scaling to FractionLost's 8-bit wire form.
	FractionLostFraction float64
}

// Observe folds one packet's arrival into the running jitter EWMA, per
// RFC 3550 A.8: d = (arrival2-arrival1) - (rtp2-rtp1), both expressed in
// clockRate units; jitter += (|d| - jitter)/16.
func (s *Stats) Observe(index uint32, rtpTimestamp uint32, arrival time.Time, clockRate uint32) {
	if !s.haveHighest || index > s.highestIndex {
		s.highestIndex = index
		s.haveHighest = true
	}
	s.received++

	if s.haveLastArrival && clockRate > 0 {
		arrivalTicks := arrival.Sub(s.lastArrival).Seconds() * float64(clockRate)
		rtpTicks := float64(int64(rtpTimestamp) - int64(s.lastTimestamp))
		d := arrivalTicks - rtpTicks
		if d < 0 {
			d = -d
		}
		s.jitter += (d - s.jitter) / 16
	}
	s.lastArrival = arrival
	s.lastTimestamp = rtpTimestamp
	s.haveLastArrival = true
}

// Snapshot returns the current stats as an RTCP-ready Report and resets the
// fraction-lost interval counters, the way an RTP receiver report interval
// does between successive reports.
func (s *Stats) Snapshot(firstIndex uint32) Report {
	expected := uint64(0)
	if s.haveHighest && uint64(s.highestIndex) >= uint64(firstIndex) {
		expected = uint64(s.highestIndex) - uint64(firstIndex) + 1
	}
	cumulativeLost := int64(expected) - int64(s.received)

	intervalExpected := expected - s.expectedAtLastReport
	intervalReceived := s.received - s.receivedAtLastReport
	var fraction uint8
	var fractionExact float64
	if intervalExpected > 0 {
		lostInterval := int64(intervalExpected) - int64(intervalReceived)
		if lostInterval > 0 {
			fractionExact = float64(lostInterval) / float64(intervalExpected)
			fraction = uint8((uint64(lostInterval) << 8) / intervalExpected)
		}
	}

	s.expectedAtLastReport = expected
	s.receivedAtLastReport = s.received

	return Report{
		Jitter:               uint32(s.jitter),
		CumulativeLost:       cumulativeLost,
		FractionLost:         fraction,
		HighestIndex:         s.highestIndex,
		InterarrivalJitter:   s.jitter,
		FractionLostFraction: fractionExact,
	}
}
