package eventbus

import "errors"

// Event bus errors.
var (
	ErrTooShort          = errors.New("eventbus: frame too short")
	ErrUnknownPathfinder = errors.New("eventbus: unknown pathfinder id")
)
