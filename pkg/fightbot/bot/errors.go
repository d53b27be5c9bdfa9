package bot

import "errors"

// Sentinel errors returned by the schedulers and command handlers. The
// router maps each one to a user-facing reply; anything else is treated
// as an internal failure and logged.
var (
	ErrEmptyArgument = errors.New("empty argument")
	ErrBadNumber     = errors.New("malformed number")

	ErrBroadcastRunning    = errors.New("broadcast already running")
	ErrBroadcastNotRunning = errors.New("broadcast not running")
	ErrRenameRunning       = errors.New("rename loop already running")
	ErrRenameNotRunning    = errors.New("rename loop not running")

	ErrNotAGroup = errors.New("not a group chat")
)
