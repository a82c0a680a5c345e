package internal

import (
	"fmt"

	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
)

// DefaultMoveStep is how far one move command shifts the targeter, in pixels.
const DefaultMoveStep = 15

// Preset is one of the selectable targeter sizes.
type Preset struct {
	Name   string
	Width  int
	Height int
}

func (p Preset) String() string {
	return fmt.Sprintf("%s (%dx%d)", p.Name, p.Width, p.Height)
}

var (
	PresetSmall  = Preset{Name: "Small", Width: 50, Height: 50}
	PresetMedium = Preset{Name: "Medium", Width: 100, Height: 100}
	PresetLarge  = Preset{Name: "Large", Width: 150, Height: 150}

	presets = map[string]Preset{
		"1": PresetSmall,
		"2": PresetMedium,
		"3": PresetLarge,
	}
)

// PresetFor resolves a menu choice ("1", "2" or "3"). Unknown choices resolve
// to the medium preset with ok set to false.
func PresetFor(choice string) (p Preset, ok bool) {
	if p, ok := presets[choice]; ok {
		return p, true
	}
	return PresetMedium, false
}

// Targeter is the operator-controlled selection box shown while the tracker
// is free. Its size is fixed for the session; its position is kept inside
// the frame.
type Targeter struct {
	X, Y int
	W, H int

	frameW, frameH int
	step           int
}

// NewTargeter creates a targeter of the given preset, centered in a
// frameW x frameH frame.
func NewTargeter(frameW, frameH int, p Preset, step int) *Targeter {
	if step <= 0 {
		step = DefaultMoveStep
	}
	t := &Targeter{
		W:      p.Width,
		H:      p.Height,
		frameW: frameW,
		frameH: frameH,
		step:   step,
	}
	t.Recenter()
	return t
}

// Recenter puts the box back in the middle of the frame using integer division.
func (t *Targeter) Recenter() {
	t.X = t.frameW/2 - t.W/2
	t.Y = t.frameH/2 - t.H/2
}

// Move shifts the box one step in the direction of cmd and clamps it to the
// frame. Non-move commands are ignored. It reports whether the position changed.
func (t *Targeter) Move(cmd Command) bool {
	x, y := t.X, t.Y
	switch cmd {
	case CommandMoveUp:
		y -= t.step
	case CommandMoveDown:
		y += t.step
	case CommandMoveLeft:
		x -= t.step
	case CommandMoveRight:
		x += t.step
	default:
		return false
	}
	x = clamp(x, 0, t.frameW-t.W)
	y = clamp(y, 0, t.frameH-t.H)
	moved := x != t.X || y != t.Y
	t.X, t.Y = x, y
	return moved
}

func (t *Targeter) Box() utils.BoundingBox {
	return utils.MakeBox(float64(t.X), float64(t.Y), float64(t.W), float64(t.H))
}

// clamp limits v to [lo, hi]; when the box is larger than the frame hi is
// below zero and v is pinned to lo.
func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
