package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
)

func newTestTracker() *Tracker {
	return NewTracker(DefaultParams(), NewTargeter(640, 480, PresetMedium, DefaultMoveStep))
}

func TestTrackerStartsFree(t *testing.T) {
	tr := newTestTracker()
	assert.Equal(t, ModeFree, tr.State().Mode)
	assert.Equal(t, 0, tr.State().Misses)

	o := tr.Overlay()
	assert.Equal(t, "FREE", o.Label)
	assert.Equal(t, FreeColor, o.Color)
	assert.Equal(t, utils.MakeBox(270, 190, 100, 100), o.Box)
}

func TestTrackerAcquire(t *testing.T) {
	tr := newTestTracker()
	// intersection 80x100, union 120x100: IoU ~0.667
	det := utils.MakeBox(290, 190, 100, 100)

	step := tr.Step([]utils.BoundingBox{det}, CommandNone)
	assert.Equal(t, TransitionLocked, step.Transition)
	assert.Equal(t, TransitionNone, step.Command)
	assert.Equal(t, 0, step.Match.Index)

	st := tr.State()
	assert.Equal(t, ModeLocked, st.Mode)
	assert.Equal(t, det, st.Tracked)
	assert.Equal(t, 0, st.Misses)

	o := tr.Overlay()
	assert.Equal(t, "TRACK", o.Label)
	assert.Equal(t, TrackColor, o.Color)
	assert.Equal(t, det, o.Box)
}

func TestTrackerAcquireIoUHalf(t *testing.T) {
	tr := newTestTracker()
	// intersection 100x(100*2/3), union 100x(100*4/3): IoU 0.5
	det := utils.BoundingBox{X1: 270, Y1: 190 + 100.0/3.0, X2: 370, Y2: 190 + 100 + 100.0/3.0}
	require.InDelta(t, 0.5, utils.GetIoU(det, tr.Targeter().Box()), 1e-9)

	step := tr.Step([]utils.BoundingBox{det}, CommandNone)
	assert.Equal(t, TransitionLocked, step.Transition)
	assert.Equal(t, ModeLocked, tr.State().Mode)
}

func TestTrackerNoAcquireWithoutOverlap(t *testing.T) {
	tr := newTestTracker()
	step := tr.Step([]utils.BoundingBox{utils.MakeBox(0, 0, 50, 50)}, CommandNone)
	assert.Equal(t, TransitionNone, step.Transition)
	assert.Equal(t, ModeFree, tr.State().Mode)

	step = tr.Step(nil, CommandNone)
	assert.Equal(t, TransitionNone, step.Transition)
	assert.Equal(t, ModeFree, tr.State().Mode)
}

func TestTrackerReacquireFollowsTarget(t *testing.T) {
	tr := newTestTracker()
	tr.Step([]utils.BoundingBox{utils.MakeBox(270, 190, 100, 100)}, CommandNone)

	moved := utils.MakeBox(280, 195, 100, 100)
	step := tr.Step([]utils.BoundingBox{utils.MakeBox(0, 0, 20, 20), moved}, CommandNone)
	assert.Equal(t, TransitionReacquired, step.Transition)
	assert.Equal(t, 1, step.Match.Index)
	assert.Equal(t, moved, tr.State().Tracked)
	assert.Equal(t, 0, tr.State().Misses)
}

func TestTrackerMissResetsOnReacquire(t *testing.T) {
	tr := newTestTracker()
	target := utils.MakeBox(270, 190, 100, 100)
	tr.Step([]utils.BoundingBox{target}, CommandNone)

	for i := 0; i < 5; i++ {
		tr.Step(nil, CommandNone)
	}
	assert.Equal(t, 5, tr.State().Misses)
	assert.Equal(t, target, tr.State().Tracked, "tracked box is kept while missing")

	tr.Step([]utils.BoundingBox{target}, CommandNone)
	assert.Equal(t, 0, tr.State().Misses)
	assert.Equal(t, ModeLocked, tr.State().Mode)
}

func TestTrackerReleaseAfterMaxLostFrames(t *testing.T) {
	tr := newTestTracker()
	tr.Step([]utils.BoundingBox{utils.MakeBox(270, 190, 100, 100)}, CommandNone)

	for i := 1; i <= DefaultMaxLostFrames; i++ {
		step := tr.Step(nil, CommandNone)
		assert.Equal(t, TransitionMissed, step.Transition)
		assert.Equal(t, i, tr.State().Misses)
		assert.Equal(t, ModeLocked, tr.State().Mode)
	}

	// the 31st consecutive miss releases the lock
	step := tr.Step(nil, CommandNone)
	assert.Equal(t, TransitionReleased, step.Transition)
	assert.Equal(t, ModeFree, tr.State().Mode)
	assert.Equal(t, 0, tr.State().Misses)
}

func TestAdvanceMissBoundary(t *testing.T) {
	p := DefaultParams()
	tracked := utils.MakeBox(100, 100, 50, 50)
	targeter := utils.MakeBox(0, 0, 10, 10)

	next, u := Advance(TrackState{Mode: ModeLocked, Tracked: tracked, Misses: 29}, targeter, nil, p)
	assert.Equal(t, TransitionMissed, u.Transition)
	assert.Equal(t, TrackState{Mode: ModeLocked, Tracked: tracked, Misses: 30}, next)

	next, u = Advance(next, targeter, nil, p)
	assert.Equal(t, TransitionReleased, u.Transition)
	assert.Equal(t, ModeFree, next.Mode)
	assert.Equal(t, 0, next.Misses)
}

func TestAdvanceZeroMaxLostFrames(t *testing.T) {
	p := DefaultParams()
	p.MaxLostFrames = 0
	st := TrackState{Mode: ModeLocked, Tracked: utils.MakeBox(0, 0, 10, 10)}

	next, u := Advance(st, utils.MakeBox(0, 0, 10, 10), nil, p)
	assert.Equal(t, TransitionReleased, u.Transition)
	assert.Equal(t, ModeFree, next.Mode)
}

func TestTrackerLockedIgnoresWeakOverlap(t *testing.T) {
	tr := newTestTracker()
	target := utils.MakeBox(270, 190, 100, 100)
	tr.Step([]utils.BoundingBox{target}, CommandNone)

	// IoU ~0.176: would acquire from free, does not hold a lock
	weak := utils.MakeBox(340, 190, 100, 100)
	step := tr.Step([]utils.BoundingBox{weak}, CommandNone)
	assert.Equal(t, TransitionMissed, step.Transition)
	assert.Equal(t, target, tr.State().Tracked)
	assert.Equal(t, 1, tr.State().Misses)
}

func TestTrackerResetFromAnyState(t *testing.T) {
	// from free, after moving the targeter
	tr := newTestTracker()
	tr.Step(nil, CommandMoveLeft)
	tr.Step(nil, CommandMoveUp)
	assert.Equal(t, 255, tr.Targeter().X)

	step := tr.Step(nil, CommandLockOrReset)
	assert.Equal(t, TransitionReset, step.Command)
	assert.Equal(t, ModeFree, tr.State().Mode)
	assert.Equal(t, 270, tr.Targeter().X)
	assert.Equal(t, 190, tr.Targeter().Y)

	// from locked with misses
	tr.Step([]utils.BoundingBox{utils.MakeBox(270, 190, 100, 100)}, CommandNone)
	tr.Step(nil, CommandNone)
	require.Equal(t, ModeLocked, tr.State().Mode)

	step = tr.Step(nil, CommandLockOrReset)
	assert.Equal(t, TransitionMissed, step.Transition)
	assert.Equal(t, TransitionReset, step.Command)
	assert.Equal(t, TrackState{Mode: ModeFree}, tr.State())
	assert.Equal(t, 270, tr.Targeter().X)
	assert.Equal(t, 190, tr.Targeter().Y)
}

func TestTrackerMovesIgnoredWhileLocked(t *testing.T) {
	tr := newTestTracker()
	target := utils.MakeBox(270, 190, 100, 100)
	tr.Step([]utils.BoundingBox{target}, CommandNone)

	step := tr.Step([]utils.BoundingBox{target}, CommandMoveRight)
	assert.Equal(t, TransitionNone, step.Command)
	assert.Equal(t, 270, tr.Targeter().X)
	assert.Equal(t, target, tr.State().Tracked)
}

func TestTrackerMoveWhileFree(t *testing.T) {
	tr := newTestTracker()
	tr.Targeter().X = 10

	step := tr.Step(nil, CommandMoveLeft)
	assert.Equal(t, TransitionMoved, step.Command)
	assert.Equal(t, 0, tr.Targeter().X)

	step = tr.Step(nil, CommandMoveLeft)
	assert.Equal(t, TransitionNone, step.Command, "clamped move changes nothing")
	assert.Equal(t, 0, tr.Targeter().X)
}

func TestTrackerFirstMatchOnAcquire(t *testing.T) {
	tr := newTestTracker()
	dets := []utils.BoundingBox{
		utils.MakeBox(340, 190, 100, 100), // IoU ~0.176
		utils.MakeBox(270, 190, 100, 100), // IoU 1
	}
	step := tr.Step(dets, CommandNone)
	assert.Equal(t, TransitionLocked, step.Transition)
	assert.Equal(t, 0, step.Match.Index)
	assert.Equal(t, dets[0], tr.State().Tracked)
}

func TestTransitionAndModeNames(t *testing.T) {
	assert.Equal(t, "FREE", ModeFree.String())
	assert.Equal(t, "LOCKED", ModeLocked.String())
	assert.Equal(t, "locked", TransitionLocked.String())
	assert.Equal(t, "released", TransitionReleased.String())
	assert.Equal(t, "none", TransitionNone.String())
}
