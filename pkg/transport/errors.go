package transport

import "errors"

// Transport errors.
var (
	ErrNoHandler        = errors.New("transport: config is missing the handler")
	ErrClosed           = errors.New("transport: socket is closed")
	ErrAlreadyStarted   = errors.New("transport: socket already started")
	ErrNoPeer           = errors.New("transport: no peer address known yet")
	ErrDatagramTooLarge = errors.New("transport: datagram exceeds maximum size")
)
