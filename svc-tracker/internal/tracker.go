package internal

import (
	"image/color"

	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
)

// DefaultMaxLostFrames is how many consecutive unmatched frames a lock survives.
const DefaultMaxLostFrames = 30

type Mode int

const (
	ModeFree Mode = iota
	ModeLocked
)

func (m Mode) String() string {
	if m == ModeLocked {
		return "LOCKED"
	}
	return "FREE"
}

// TrackState is the whole lock state of a session. Tracked is meaningful only
// while Mode is ModeLocked.
type TrackState struct {
	Mode    Mode
	Tracked utils.BoundingBox
	Misses  int
}

// Transition names what a single update did to the state.
type Transition int

const (
	TransitionNone Transition = iota
	// FREE -> LOCKED on a detection overlapping the targeter
	TransitionLocked
	// LOCKED, target re-matched
	TransitionReacquired
	// LOCKED, no match, lock kept
	TransitionMissed
	// LOCKED -> FREE after too many misses
	TransitionReleased
	// any -> FREE on operator reset
	TransitionReset
	// FREE, targeter moved
	TransitionMoved
)

func (t Transition) String() string {
	switch t {
	case TransitionLocked:
		return "locked"
	case TransitionReacquired:
		return "reacquired"
	case TransitionMissed:
		return "missed"
	case TransitionReleased:
		return "released"
	case TransitionReset:
		return "reset"
	case TransitionMoved:
		return "moved"
	default:
		return "none"
	}
}

// Params are the association constants of the tracker.
type Params struct {
	HoldThreshold    float64
	AcquireThreshold float64
	MaxLostFrames    int
}

func DefaultParams() Params {
	return Params{
		HoldThreshold:    HoldIoUThreshold,
		AcquireThreshold: AcquireIoUThreshold,
		MaxLostFrames:    DefaultMaxLostFrames,
	}
}

// Update reports the association outcome of one frame.
type Update struct {
	Transition Transition
	// Match is set for TransitionLocked and TransitionReacquired.
	Match Match
}

// Advance is the per-frame transition function. It associates detections
// against the current state and returns the next state; targeter is the
// targeter box, used only while free.
func Advance(state TrackState, targeter utils.BoundingBox, detections []utils.BoundingBox, p Params) (TrackState, Update) {
	if state.Mode == ModeLocked {
		if m, ok := FindReacquisition(detections, state.Tracked, p.HoldThreshold); ok {
			return TrackState{Mode: ModeLocked, Tracked: m.Box}, Update{Transition: TransitionReacquired, Match: m}
		}
		state.Misses++
		if state.Misses > p.MaxLostFrames {
			return TrackState{Mode: ModeFree}, Update{Transition: TransitionReleased, Match: Match{Index: -1}}
		}
		return state, Update{Transition: TransitionMissed, Match: Match{Index: -1}}
	}

	if m, ok := FindInitialLock(detections, targeter, p.AcquireThreshold); ok {
		return TrackState{Mode: ModeLocked, Tracked: m.Box}, Update{Transition: TransitionLocked, Match: m}
	}
	return state, Update{Transition: TransitionNone, Match: Match{Index: -1}}
}

// Step is the combined result of association and command handling for a frame.
type Step struct {
	Update
	// Command is TransitionReset, TransitionMoved or TransitionNone.
	Command Transition
}

// Tracker owns the TrackState and the Targeter of one session.
type Tracker struct {
	params   Params
	state    TrackState
	targeter *Targeter
}

func NewTracker(p Params, targeter *Targeter) *Tracker {
	return &Tracker{
		params:   p,
		state:    TrackState{Mode: ModeFree},
		targeter: targeter,
	}
}

func (t *Tracker) State() TrackState {
	return t.state
}

func (t *Tracker) Targeter() *Targeter {
	return t.targeter
}

// Step runs the association for this frame's detections, then applies cmd to
// the resulting state. Moves act only while free; a reset always leaves the
// tracker free with the targeter recentered.
func (t *Tracker) Step(detections []utils.BoundingBox, cmd Command) Step {
	var s Step
	t.state, s.Update = Advance(t.state, t.targeter.Box(), detections, t.params)
	s.Command = t.Apply(cmd)
	return s
}

// Apply handles an operator command outside of association.
func (t *Tracker) Apply(cmd Command) Transition {
	switch {
	case cmd == CommandLockOrReset:
		t.Reset()
		return TransitionReset
	case cmd.IsMove() && t.state.Mode == ModeFree:
		if t.targeter.Move(cmd) {
			return TransitionMoved
		}
	}
	return TransitionNone
}

// Reset drops any lock and recenters the targeter.
func (t *Tracker) Reset() {
	t.state = TrackState{Mode: ModeFree}
	t.targeter.Recenter()
}

var (
	// TrackColor is drawn around a locked target.
	TrackColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	// FreeColor is drawn around the targeter.
	FreeColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
)

// Overlay is what the renderer draws for a frame.
type Overlay struct {
	Box   utils.BoundingBox
	Label string
	Color color.RGBA
}

func (t *Tracker) Overlay() Overlay {
	if t.state.Mode == ModeLocked {
		return Overlay{Box: t.state.Tracked, Label: "TRACK", Color: TrackColor}
	}
	return Overlay{Box: t.targeter.Box(), Label: "FREE", Color: FreeColor}
}
