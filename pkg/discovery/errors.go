package discovery

import "errors"

// Discovery errors.
var (
	ErrBadPublicKey = errors.New("discovery: public key derives no valid overlay address")
	ErrNoVersion    = errors.New("discovery: config is missing the protocol version")
	ErrClosed       = errors.New("discovery: beacon is closed")
)
