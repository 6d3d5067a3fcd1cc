package micdebounce_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/augmentos-org/cloud-core/internal/micdebounce"
)

func TestDebouncer_FirstCallAppliesImmediately(t *testing.T) {
	t.Parallel()
	var starts int32
	d := micdebounce.New(micdebounce.Actions{
		StartTranscription: func() { atomic.AddInt32(&starts, 1) },
	})

	d.SetDesired(true)
	require.EqualValues(t, 1, atomic.LoadInt32(&starts))
	require.True(t, d.LastSent())
}

func TestDebouncer_RapidFlipsCoalesce(t *testing.T) {
	t.Parallel()
	var starts, stops int32
	d := micdebounce.New(micdebounce.Actions{
		StartTranscription: func() { atomic.AddInt32(&starts, 1) },
		StopTranscription:   func() { atomic.AddInt32(&stops, 1) },
	})

	d.SetDesired(true) // immediate
	d.SetDesired(false)
	d.SetDesired(true)
	d.SetDesired(false)

	require.Never(t, func() bool {
		return atomic.LoadInt32(&stops) > 0
	}, 200*time.Millisecond, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&stops) == 1
	}, 2*time.Second, 20*time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&starts))
}

func TestDebouncer_SameStateCancelsPendingFlip(t *testing.T) {
	t.Parallel()
	var stops int32
	d := micdebounce.New(micdebounce.Actions{
		StartTranscription: func() {},
		StopTranscription:   func() { atomic.AddInt32(&stops, 1) },
	})

	d.SetDesired(true) // immediate
	d.SetDesired(false)
	d.SetDesired(true) // settles back before the window elapses

	require.Never(t, func() bool {
		return atomic.LoadInt32(&stops) > 0
	}, 2*time.Second, 50*time.Millisecond)
	require.True(t, d.LastSent())
}

func TestDebouncer_StopCancelsPendingTimer(t *testing.T) {
	t.Parallel()
	var stops int32
	d := micdebounce.New(micdebounce.Actions{
		StartTranscription: func() {},
		StopTranscription:   func() { atomic.AddInt32(&stops, 1) },
	})

	d.SetDesired(true)
	d.SetDesired(false)
	d.Stop()

	require.Never(t, func() bool {
		return atomic.LoadInt32(&stops) > 0
	}, 2*time.Second, 50*time.Millisecond)
}
