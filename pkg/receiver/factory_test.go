package receiver

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func TestFactoryGetOrNewReusesStream(t *testing.T) {
	f := NewFactory(Config{Latency: 50 * time.Millisecond, ClockRate: 90000}, logr.Discard())

	s1, err := f.GetOrNew(42, 1)
	require.NoError(t, err)
	s2, err := f.GetOrNew(42, 1)
	require.NoError(t, err)
	require.Same(t, s1, s2)

	_, ok := f.Get(43)
	require.False(t, ok)
}

func TestStreamPushRTPAndClose(t *testing.T) {
	s, err := NewStream(Config{SSRC: 7, SenderSSRC: 1, Latency: 50 * time.Millisecond, ClockRate: 90000}, logr.Discard())
	require.NoError(t, err)

	pkt := &rtp.Packet{Header: rtp.Header{SequenceNumber: 1, Timestamp: 1000}}
	require.NoError(t, s.PushRTP(pkt, time.Now()))

	remaining := s.Close()
	require.Len(t, remaining, 1)
}

func TestFactoryRemoveClosesStream(t *testing.T) {
	f := NewFactory(Config{Latency: 50 * time.Millisecond, ClockRate: 90000}, logr.Discard())
	_, err := f.GetOrNew(1, 1)
	require.NoError(t, err)

	f.Remove(1)
	_, ok := f.Get(1)
	require.False(t, ok)
}
