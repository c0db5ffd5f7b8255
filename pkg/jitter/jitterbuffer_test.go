package jitter

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

func newTestBuffer(t *testing.T, latency time.Duration) (*Buffer, *time.Time) {
	t.Helper()
	b, err := New(Config{Latency: latency, ClockRate: 90000}, logr.Discard())
	require.NoError(t, err)
	clock := time.Now()
	b.now = func() time.Time { return clock }
	return b, &clock
}

func TestPushRejectsAfterClose(t *testing.T) {
	b, _ := newTestBuffer(t, 50*time.Millisecond)
	b.Close()
	err := b.Push(1, 0, "x")
	require.ErrorIs(t, err, ErrStreamDrained)
}

func TestInOrderReleaseOnContiguity(t *testing.T) {
	b, _ := newTestBuffer(t, 50*time.Millisecond)

	var got []Event
	b.OnEvent(func(e Event) { got = append(got, e) })

	b.state = StateRunning // simulate initial latency already elapsed
	require.NoError(t, b.Push(1, 0, "a"))
	require.NoError(t, b.Push(2, 0, "b"))

	b.mu.Lock()
	b.sendBuffersLocked()
	b.mu.Unlock()

	require.Len(t, got, 1)
	require.Equal(t, KindBuffer, got[0].Kind)
	require.Len(t, got[0].Records, 2)
}

// TestGapBetweenReleasesEmitsInterleavedDiscontinuity covers the loss/
// reorder release shape: a forced release spanning a lost index must
// surface as buf(100), discontinuity(), buf(102) — not one batch labeled
// by whichever kind happened to dominate it.
func TestGapBetweenReleasesEmitsInterleavedDiscontinuity(t *testing.T) {
	b, clock := newTestBuffer(t, 50*time.Millisecond)

	var got []Event
	b.OnEvent(func(e Event) { got = append(got, e) })

	b.state = StateRunning
	require.NoError(t, b.Push(100, 0, "r100"))
	// seq 101 is lost, never arrives.
	*clock = (*clock).Add(10 * time.Millisecond)
	require.NoError(t, b.Push(102, 0, "r102"))

	*clock = (*clock).Add(100 * time.Millisecond) // both now older than latency

	b.mu.Lock()
	b.sendBuffersLocked()
	b.mu.Unlock()

	require.Len(t, got, 3)

	require.Equal(t, KindBuffer, got[0].Kind)
	require.Len(t, got[0].Records, 1)
	require.EqualValues(t, 100, got[0].Records[0].Index)

	require.Equal(t, KindDiscontinuity, got[1].Kind)
	require.EqualValues(t, 101, got[1].GapFrom)
	require.EqualValues(t, 101, got[1].GapTo)

	require.Equal(t, KindBuffer, got[2].Kind)
	require.Len(t, got[2].Records, 1)
	require.EqualValues(t, 102, got[2].Records[0].Index)
}

// TestReorderWithinLatencyNeverEmitsDiscontinuity covers the reorder-only
// case (§8 scenario 4/5 shape without an actual loss): packets arrive out
// of wire order but all within the latency window, so ShiftOrdered alone
// releases everything contiguously and no gap is ever observed.
func TestReorderWithinLatencyNeverEmitsDiscontinuity(t *testing.T) {
	b, _ := newTestBuffer(t, 50*time.Millisecond)

	var got []Event
	b.OnEvent(func(e Event) { got = append(got, e) })

	b.state = StateRunning
	require.NoError(t, b.Push(2, 0, "b"))
	require.NoError(t, b.Push(1, 0, "a"))
	require.NoError(t, b.Push(3, 0, "c"))

	b.mu.Lock()
	b.sendBuffersLocked()
	b.mu.Unlock()

	require.Len(t, got, 1)
	require.Equal(t, KindBuffer, got[0].Kind)
	require.Len(t, got[0].Records, 3)
	require.Equal(t, "a", got[0].Records[0].Payload)
	require.Equal(t, "b", got[0].Records[1].Payload)
	require.Equal(t, "c", got[0].Records[2].Payload)
}

func TestNewRejectsNonPositiveLatency(t *testing.T) {
	_, err := New(Config{Latency: 0}, logr.Discard())
	require.ErrorIs(t, err, ErrLatencyRequired)
}

func TestCloseEmitsEndOfStreamForRemaining(t *testing.T) {
	b, _ := newTestBuffer(t, 50*time.Millisecond)
	var got []Event
	b.OnEvent(func(e Event) { got = append(got, e) })

	b.state = StateRunning
	require.NoError(t, b.Push(1, 0, "a"))
	// seq 2 never arrives; only seq 1 is ever buffered.

	b.Close()

	require.Len(t, got, 1)
	require.Equal(t, KindEndOfStream, got[0].Kind)
	require.Len(t, got[0].Records, 1)
}
