package admin

import "errors"

// Admin view errors.
var (
	ErrNoManager = errors.New("admin: config is missing the session manager")
)
