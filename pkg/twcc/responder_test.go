package twcc

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

func TestResponderBuildFeedbackEmpty(t *testing.T) {
	r := NewResponder(1, 2, logr.Discard())
	_, ok, err := r.BuildFeedback()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResponderBuildFeedbackAfterPush(t *testing.T) {
	r := NewResponder(1, 2, logr.Discard())
	now := time.Now()
	for i := uint16(0); i < 5; i++ {
		r.Push(i, now.Add(time.Duration(i)*time.Millisecond))
	}

	pkt, ok, err := r.BuildFeedback()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, len(pkt) >= 20) // 4 header + 8 ssrcs + >=8 twcc body

	// store is reset after a report.
	_, ok, err = r.BuildFeedback()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestShouldSendFeedbackCadence(t *testing.T) {
	r := NewResponder(1, 2, logr.Discard())
	require.False(t, r.ShouldSendFeedback(5, time.Second, false))
	require.True(t, r.ShouldSendFeedback(150, 0, false))
	require.True(t, r.ShouldSendFeedback(25, 60*time.Millisecond, true))
	require.True(t, r.ShouldSendFeedback(25, 150*time.Millisecond, false))
}
