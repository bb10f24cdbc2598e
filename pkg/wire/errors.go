package wire

import "errors"

// Wire layer errors.
var (
	ErrTooShort    = errors.New("wire: data too short")
	ErrBadFlags    = errors.New("wire: invalid flag combination")
	ErrNotControl  = errors.New("wire: frame is not a control frame")
	ErrBadChecksum = errors.New("wire: control checksum mismatch")
)
