package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatsCounters(t *testing.T) {
	var st sessionStats
	locked := TrackState{Mode: ModeLocked}
	free := TrackState{Mode: ModeFree}

	st.observe(free, Step{})
	st.observe(locked, Step{Update: Update{Transition: TransitionLocked}})
	st.observe(locked, Step{Update: Update{Transition: TransitionReacquired, Match: Match{IoU: 0.6}}})
	st.observe(locked, Step{Update: Update{Transition: TransitionReacquired, Match: Match{IoU: 0.8}}})
	st.observe(free, Step{Update: Update{Transition: TransitionReleased}})
	st.observe(free, Step{Command: TransitionReset})

	s := st.result()
	assert.Equal(t, 6, s.Frames)
	assert.Equal(t, 3, s.LockedFrames)
	assert.Equal(t, 1, s.Locks)
	assert.Equal(t, 1, s.Releases)
	assert.Equal(t, 1, s.Resets)
	assert.InDelta(t, 0.7, s.MeanIoU, 1e-9)
	// sample standard deviation of {0.6, 0.8}
	assert.InDelta(t, 0.1414213562, s.StdDevIoU, 1e-9)
}

func TestSessionStatsFewSamples(t *testing.T) {
	var st sessionStats
	s := st.result()
	assert.Equal(t, 0.0, s.MeanIoU)
	assert.Equal(t, 0.0, s.StdDevIoU)

	st.observe(TrackState{Mode: ModeLocked}, Step{Update: Update{Transition: TransitionReacquired, Match: Match{IoU: 0.9}}})
	s = st.result()
	assert.Equal(t, 0.9, s.MeanIoU)
	assert.Equal(t, 0.0, s.StdDevIoU)
}

func TestSummaryString(t *testing.T) {
	s := Summary{Frames: 10, LockedFrames: 4, Locks: 1, MeanIoU: 0.5}
	assert.Equal(t, "frames=10 locked=4 locks=1 releases=0 resets=0 iou=0.500±0.000", s.String())
}
