package session

import "errors"

// Session layer errors.
var (
	ErrUnknownHandle  = errors.New("session: unknown handle")
	ErrInvalidAddress = errors.New("session: address is not a valid overlay address")
	ErrNoSwitchOut    = errors.New("session: config is missing the SwitchOut sink")
	ErrNoInsideOut    = errors.New("session: config is missing the InsideOut sink")
	ErrNoCryptoAuth   = errors.New("session: config is missing the CryptoAuth instance")
	ErrNoBus          = errors.New("session: config is missing the event bus")
)
