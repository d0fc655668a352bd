package lossdetect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstObservationReportsNoLoss(t *testing.T) {
	d := New()
	lost, dup := d.Observe(100)
	require.Zero(t, lost)
	require.False(t, dup)
}

func TestForwardGapReportsLoss(t *testing.T) {
	d := New()
	d.Observe(10)
	lost, dup := d.Observe(13)
	require.Equal(t, 2, lost)
	require.False(t, dup)
	require.EqualValues(t, 2, d.LostFrames())
}

func TestDuplicateFrameSequence(t *testing.T) {
	d := New()
	d.Observe(10)
	lost, dup := d.Observe(10)
	require.Zero(t, lost)
	require.True(t, dup)
	require.EqualValues(t, 1, d.DuplicateFrames())
}

func TestWrapAroundIsContiguousNoLoss(t *testing.T) {
	d := New()
	d.Observe(65534)
	d.Observe(65535)
	lost, dup := d.Observe(0)
	require.Zero(t, lost, "wrap from 65535 to 0 must not be reported as loss")
	require.False(t, dup)
	require.Zero(t, d.LostFrames())
}

func TestWrapWithGapCountsSkippedFrames(t *testing.T) {
	d := New()
	d.Observe(65534)
	lost, dup := d.Observe(0) // 65535 skipped across the boundary
	require.Equal(t, 1, lost)
	require.False(t, dup)
	require.EqualValues(t, 1, d.LostFrames())
}

func TestRollbackDoesNotReportLoss(t *testing.T) {
	d := New()
	d.Observe(500)
	lost, dup := d.Observe(10) // far below, not near the wrap window
	require.Zero(t, lost)
	require.False(t, dup)
	require.Zero(t, d.LostFrames())

	// Detector re-anchors on the reset value; forward progress from
	// here is measured normally again.
	lost, dup = d.Observe(13)
	require.Equal(t, 2, lost)
	require.False(t, dup)
}
