package addr

import "errors"

// Address errors.
var (
	ErrBadKeyForm = errors.New("addr: malformed base32 key")
)
