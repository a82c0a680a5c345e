package internal

// Command is the single operator input consumed per tick.
type Command int

const (
	CommandNone Command = iota
	CommandQuit
	CommandMoveUp
	CommandMoveDown
	CommandMoveLeft
	CommandMoveRight
	CommandLockOrReset
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandQuit:
		return "quit"
	case CommandMoveUp:
		return "up"
	case CommandMoveDown:
		return "down"
	case CommandMoveLeft:
		return "left"
	case CommandMoveRight:
		return "right"
	case CommandLockOrReset:
		return "lock-or-reset"
	default:
		return "unknown"
	}
}

// IsMove reports whether c is one of the four direction commands.
func (c Command) IsMove() bool {
	return c >= CommandMoveUp && c <= CommandMoveRight
}

// CommandForKey maps a key code from the display window to a command:
// q quits, w/a/s/d move the targeter, t releases the lock and recenters.
// Upper case letters are accepted as well.
func CommandForKey(key int) Command {
	if key < 0 {
		return CommandNone
	}
	switch key & 0xFF {
	case 'q', 'Q':
		return CommandQuit
	case 'w', 'W':
		return CommandMoveUp
	case 's', 'S':
		return CommandMoveDown
	case 'a', 'A':
		return CommandMoveLeft
	case 'd', 'D':
		return CommandMoveRight
	case 't', 'T':
		return CommandLockOrReset
	default:
		return CommandNone
	}
}
