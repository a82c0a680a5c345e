package internal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Summary is logged, and journaled when a record store is configured, at the
// end of a session.
type Summary struct {
	SessionId    string
	Frames       int
	LockedFrames int
	Locks        int
	Releases     int
	Resets       int
	MeanIoU      float64
	StdDevIoU    float64
}

func (s Summary) String() string {
	return fmt.Sprintf("frames=%d locked=%d locks=%d releases=%d resets=%d iou=%.3f±%.3f",
		s.Frames, s.LockedFrames, s.Locks, s.Releases, s.Resets, s.MeanIoU, s.StdDevIoU)
}

// sessionStats accumulates counters and the IoU of every re-acquisition.
type sessionStats struct {
	summary Summary
	ious    []float64
}

func (st *sessionStats) observe(state TrackState, step Step) {
	st.summary.Frames++
	if state.Mode == ModeLocked {
		st.summary.LockedFrames++
	}
	switch step.Transition {
	case TransitionLocked:
		st.summary.Locks++
	case TransitionReacquired:
		st.ious = append(st.ious, step.Match.IoU)
	case TransitionReleased:
		st.summary.Releases++
	}
	if step.Command == TransitionReset {
		st.summary.Resets++
	}
}

func (st *sessionStats) result() Summary {
	s := st.summary
	switch len(st.ious) {
	case 0:
	case 1:
		s.MeanIoU = st.ious[0]
	default:
		s.MeanIoU, s.StdDevIoU = stat.MeanStdDev(st.ious, nil)
		if math.IsNaN(s.StdDevIoU) {
			s.StdDevIoU = 0
		}
	}
	return s
}
