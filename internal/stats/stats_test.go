package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotCounters(t *testing.T) {
	c := New()
	now := time.Now()

	c.RecordCrop(100, now)
	c.RecordCrop(250, now.Add(10*time.Millisecond))
	c.AddLostFrames(3)
	c.AddDuplicateFrame()

	snap := c.Snapshot(now.Add(time.Second))
	require.EqualValues(t, 2, snap.ReceivedCrops)
	require.EqualValues(t, 350, snap.TotalBytes)
	require.EqualValues(t, 3, snap.LostFrames)
	require.EqualValues(t, 1, snap.DuplicateFrames)
}

func TestConnectedGaugeInitiallyFalse(t *testing.T) {
	c := New()
	require.False(t, c.Snapshot(time.Now()).TCPConnected)
}

func TestConnectedGaugeTracksLastReceive(t *testing.T) {
	c := New()
	now := time.Now()
	c.RecordCrop(1, now)

	require.True(t, c.Snapshot(now.Add(29*time.Second)).TCPConnected)
	require.False(t, c.Snapshot(now.Add(31*time.Second)).TCPConnected)
}

func TestMeanFrameInterval(t *testing.T) {
	c := New()
	now := time.Now()
	c.RecordCrop(1, now)
	c.RecordCrop(1, now.Add(10*time.Millisecond))
	c.RecordCrop(1, now.Add(30*time.Millisecond))

	snap := c.Snapshot(now.Add(time.Second))
	require.InDelta(t, 15.0, snap.MeanFrameIntervalMs, 0.01, "intervals are 10ms and 20ms")
}

func TestRollingWindowIsBounded(t *testing.T) {
	c := New()
	now := time.Now()
	for i := 0; i < rollingWindow+100; i++ {
		c.RecordCrop(1, now.Add(time.Duration(i)*time.Millisecond))
	}
	c.mu.Lock()
	n := len(c.intervals)
	c.mu.Unlock()
	require.Equal(t, rollingWindow, n)
}

func TestRunEmitsAndStops(t *testing.T) {
	c := New()
	stop := make(chan struct{})
	got := make(chan Snapshot, 8)

	done := make(chan struct{})
	go func() {
		c.Run(stop, 5*time.Millisecond, ObserverFunc(func(s Snapshot) {
			select {
			case got <- s:
			default:
			}
		}))
		close(done)
	}()

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("no snapshot emitted")
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
