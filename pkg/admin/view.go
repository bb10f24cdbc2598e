// Package admin exposes the read-only query surface of the session
// layer: handle enumeration and per-session statistics. It never
// mutates session state.
package admin

import (
	"github.com/backwardn/cjdns/pkg/session"
)

// DefaultPageSize is how many handles one Handles page carries. The
// figure keeps a serialized page comfortably inside one datagram for
// RPC transports.
const DefaultPageSize = 8

// SessionView is the admin read view over a session manager.
type SessionView struct {
	m        *session.Manager
	pageSize int
}

// Config configures a SessionView.
type Config struct {
	// Manager is the session manager to expose. Required.
	Manager *session.Manager

	// PageSize overrides the handle page size.
	// Default: DefaultPageSize.
	PageSize int
}

// NewSessionView creates the read view.
func NewSessionView(config Config) (*SessionView, error) {
	if config.Manager == nil {
		return nil, ErrNoManager
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	return &SessionView{m: config.Manager, pageSize: config.PageSize}, nil
}

// HandlesPage is one page of the handle enumeration.
type HandlesPage struct {
	// Handles are the receive handles on this page.
	Handles []uint32

	// Total is the number of live sessions at snapshot time.
	Total int

	// More is true when further pages exist.
	More bool
}

// Handles enumerates live receive handles, pageSize per page,
// starting at page 0. Pages past the end are empty.
func (v *SessionView) Handles(page int) HandlesPage {
	all := v.m.HandleList()
	out := HandlesPage{Total: len(all)}
	if page < 0 {
		return out
	}
	lo := page * v.pageSize
	if lo >= len(all) {
		return out
	}
	hi := lo + v.pageSize
	if hi > len(all) {
		hi = len(all)
	}
	out.Handles = all[lo:hi]
	out.More = hi < len(all)
	return out
}

// SessionStats reports the statistics of the session a handle names.
func (v *SessionView) SessionStats(handle uint32) (*session.Stats, error) {
	return v.m.SessionStats(handle)
}
