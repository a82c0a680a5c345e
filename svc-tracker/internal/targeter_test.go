package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
)

func TestNewTargeterCentered(t *testing.T) {
	tg := NewTargeter(640, 480, PresetMedium, DefaultMoveStep)
	assert.Equal(t, 270, tg.X)
	assert.Equal(t, 190, tg.Y)
	assert.Equal(t, utils.MakeBox(270, 190, 100, 100), tg.Box())

	// odd sizes use integer division
	tg = NewTargeter(641, 481, PresetLarge, DefaultMoveStep)
	assert.Equal(t, 320-75, tg.X)
	assert.Equal(t, 240-75, tg.Y)
}

func TestTargeterMoves(t *testing.T) {
	tg := NewTargeter(640, 480, PresetMedium, DefaultMoveStep)

	assert.True(t, tg.Move(CommandMoveUp))
	assert.Equal(t, 175, tg.Y)
	assert.True(t, tg.Move(CommandMoveDown))
	assert.Equal(t, 190, tg.Y)
	assert.True(t, tg.Move(CommandMoveLeft))
	assert.Equal(t, 255, tg.X)
	assert.True(t, tg.Move(CommandMoveRight))
	assert.Equal(t, 270, tg.X)

	assert.False(t, tg.Move(CommandQuit))
	assert.False(t, tg.Move(CommandLockOrReset))
	assert.Equal(t, 270, tg.X)
	assert.Equal(t, 190, tg.Y)
}

func TestTargeterClamp(t *testing.T) {
	tg := NewTargeter(640, 480, PresetMedium, DefaultMoveStep)

	tg.X = 10
	assert.True(t, tg.Move(CommandMoveLeft))
	assert.Equal(t, 0, tg.X)
	assert.False(t, tg.Move(CommandMoveLeft), "already at the left edge")
	assert.Equal(t, 0, tg.X)

	tg.Y = 5
	tg.Move(CommandMoveUp)
	assert.Equal(t, 0, tg.Y)

	tg.X = 535
	tg.Move(CommandMoveRight)
	assert.Equal(t, 540, tg.X)

	tg.Y = 379
	tg.Move(CommandMoveDown)
	assert.Equal(t, 380, tg.Y)
}

func TestTargeterStaysInFrame(t *testing.T) {
	tg := NewTargeter(320, 240, PresetLarge, 7)
	cmds := []Command{CommandMoveUp, CommandMoveLeft, CommandMoveDown, CommandMoveRight}
	for i := 0; i < 400; i++ {
		tg.Move(cmds[(i/37)%len(cmds)])
		assert.GreaterOrEqual(t, tg.X, 0)
		assert.GreaterOrEqual(t, tg.Y, 0)
		assert.LessOrEqual(t, tg.X+tg.W, 320)
		assert.LessOrEqual(t, tg.Y+tg.H, 240)
	}
}

func TestTargeterLargerThanFrame(t *testing.T) {
	tg := NewTargeter(100, 100, PresetLarge, DefaultMoveStep)
	tg.Move(CommandMoveRight)
	assert.Equal(t, 0, tg.X)
	tg.Move(CommandMoveDown)
	assert.Equal(t, 0, tg.Y)
}

func TestPresetFor(t *testing.T) {
	tests := []struct {
		choice string
		want   Preset
		ok     bool
	}{
		{"1", PresetSmall, true},
		{"2", PresetMedium, true},
		{"3", PresetLarge, true},
		{"4", PresetMedium, false},
		{"", PresetMedium, false},
		{"large", PresetMedium, false},
	}
	for _, tt := range tests {
		got, ok := PresetFor(tt.choice)
		assert.Equal(t, tt.want, got, "choice %q", tt.choice)
		assert.Equal(t, tt.ok, ok, "choice %q", tt.choice)
	}
	assert.Equal(t, 50, PresetSmall.Width)
	assert.Equal(t, 150, PresetLarge.Height)
}

func TestCommandForKey(t *testing.T) {
	tests := map[int]Command{
		'q': CommandQuit,
		'Q': CommandQuit,
		'w': CommandMoveUp,
		's': CommandMoveDown,
		'a': CommandMoveLeft,
		'd': CommandMoveRight,
		'D': CommandMoveRight,
		't': CommandLockOrReset,
		'x': CommandNone,
		-1:  CommandNone,
		// high bits set by some window backends
		0x100000 | 'w': CommandMoveUp,
	}
	for key, want := range tests {
		assert.Equal(t, want, CommandForKey(key), "key %d", key)
	}
	assert.True(t, CommandMoveLeft.IsMove())
	assert.False(t, CommandLockOrReset.IsMove())
	assert.Equal(t, "lock-or-reset", CommandLockOrReset.String())
}
