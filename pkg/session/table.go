package session

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/backwardn/cjdns/pkg/addr"
)

// Handle base range. Handles 0-3 are reserved: they collide with the
// handshake nonce words in the wire format. The base is drawn at
// random per instance so a remote peer cannot guess which handles
// are live; this randomization is the only barrier against forging
// data frames for another session.
const (
	MinFirstHandle = 4
	MaxFirstHandle = 100000
)

// Table is the dual-keyed session index: one authoritative map from
// overlay address to session, paired with a stable slot number per
// entry exposed as the receive handle. Slots are never renumbered;
// freed slots go on a free list and may be reallocated.
type Table struct {
	firstHandle uint32
	byIP        map[addr.IP6]*Session
	slots       []*Session
	free        []int
}

// NewTable creates a session table with a random handle base.
func NewTable() (*Table, error) {
	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	first := binary.BigEndian.Uint32(seed[:])%(MaxFirstHandle-MinFirstHandle) + MinFirstHandle
	return &Table{
		firstHandle: first,
		byIP:        make(map[addr.IP6]*Session),
	}, nil
}

// FirstHandle returns the handle of slot 0.
func (t *Table) FirstHandle() uint32 {
	return t.firstHandle
}

// Count returns the number of live sessions.
func (t *Table) Count() int {
	return len(t.byIP)
}

// ByIP6 looks up a session by overlay address. Returns nil if absent.
func (t *Table) ByIP6(ip addr.IP6) *Session {
	return t.byIP[ip]
}

// ByHandle looks up a session by receive handle. Returns nil when the
// handle maps to no live slot.
func (t *Table) ByHandle(handle uint32) *Session {
	if handle < t.firstHandle {
		return nil
	}
	idx := int(handle - t.firstHandle)
	if idx >= len(t.slots) {
		return nil
	}
	return t.slots[idx]
}

// Insert adds a session and assigns its receive handle. The address
// must not already be present.
func (t *Table) Insert(ip addr.IP6, s *Session) uint32 {
	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[idx] = s
	} else {
		idx = len(t.slots)
		t.slots = append(t.slots, s)
	}
	s.slot = idx
	s.ip6 = ip
	t.byIP[ip] = s
	return t.firstHandle + uint32(idx)
}

// Remove deletes a session from both indexes and frees its slot.
func (t *Table) Remove(s *Session) {
	if t.slots[s.slot] != s {
		return
	}
	t.slots[s.slot] = nil
	t.free = append(t.free, s.slot)
	delete(t.byIP, s.ip6)
}

// Handles returns a snapshot of all live handles in slot order.
func (t *Table) Handles() []uint32 {
	out := make([]uint32, 0, len(t.byIP))
	for idx, s := range t.slots {
		if s != nil {
			out = append(out, t.firstHandle+uint32(idx))
		}
	}
	return out
}

// ForEach visits live sessions in slot order.
func (t *Table) ForEach(fn func(*Session) bool) {
	for _, s := range t.slots {
		if s == nil {
			continue
		}
		if !fn(s) {
			return
		}
	}
}

// forEachReverse visits live sessions from the highest slot down, so
// fn may remove the visited session without disturbing the walk.
func (t *Table) forEachReverse(fn func(*Session)) {
	for i := len(t.slots) - 1; i >= 0; i-- {
		if s := t.slots[i]; s != nil {
			fn(s)
		}
	}
}
