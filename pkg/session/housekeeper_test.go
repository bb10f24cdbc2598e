package session

import (
	"testing"
	"time"

	"github.com/pion/transport/v3/test"

	"github.com/backwardn/cjdns/pkg/addr"
	"github.com/backwardn/cjdns/pkg/eventbus"
	"github.com/backwardn/cjdns/pkg/wire"
)

// TestSessionTimeout is the fifth end-to-end path: a silent session
// is evicted with exactly one SESSION_ENDED notice.
func TestSessionTimeout(t *testing.T) {
	e := newEnv(t, nil)

	if _, err := e.m.getOrCreate(e.peer.IP6(), e.peer.PublicKey(), 20, 0x13, 42, false); err != nil {
		t.Fatalf("getOrCreate() error = %v", err)
	}
	if e.m.SessionCount() != 1 {
		t.Fatal("no session")
	}

	// Not yet expired.
	e.clock.advance(DefaultSessionTimeout - time.Second)
	e.m.Housekeep()
	if e.m.SessionCount() != 1 {
		t.Fatal("session evicted before its timeout")
	}

	e.clock.advance(2 * time.Second)
	e.m.Housekeep()
	if e.m.SessionCount() != 0 {
		t.Error("expired session not evicted")
	}
	ended := e.nodeEvents(eventbus.CoreSessionEnded)
	if len(ended) != 1 {
		t.Fatalf("CoreSessionEnded events = %d, want 1", len(ended))
	}
	if ended[0].IP6 != e.peer.IP6() {
		t.Errorf("ended session = %s, want %s", ended[0].IP6, e.peer.IP6())
	}

	// The handle is dead after eviction.
	if s := e.m.SessionForHandle(e.m.table.FirstHandle()); s != nil {
		t.Error("evicted session still reachable by handle")
	}
}

func TestHousekeeper_MaintainedSessionSearches(t *testing.T) {
	e := newEnv(t, nil)

	// maintain=true: the housekeeper drives searches and unsetup
	// notices for it.
	s, err := e.m.getOrCreate(e.peer.IP6(), e.peer.PublicKey(), 20, 0x13, 42, true)
	if err != nil {
		t.Fatalf("getOrCreate() error = %v", err)
	}

	e.clock.advance(DefaultSessionSearchAfter + time.Millisecond)
	e.m.Housekeep()
	if got := len(e.events(eventbus.CoreSearchReq)); got != 1 {
		t.Fatalf("CoreSearchReq events = %d, want 1", got)
	}
	if s.lastSearchTime != e.clock.now().UnixMilli() {
		t.Error("lastSearchTime not updated")
	}

	// Immediately after, the search is not repeated; the session is
	// still keyless so an unsetup notice goes out instead.
	e.m.Housekeep()
	if got := len(e.events(eventbus.CoreSearchReq)); got != 1 {
		t.Errorf("CoreSearchReq events = %d, want still 1", got)
	}
	if got := len(e.nodeEvents(eventbus.CoreUnsetupSession)); got != 1 {
		t.Errorf("CoreUnsetupSession events = %d, want 1", got)
	}
}

func TestHousekeeper_UnmaintainedSessionLeftAlone(t *testing.T) {
	e := newEnv(t, nil)

	if _, err := e.m.getOrCreate(e.peer.IP6(), e.peer.PublicKey(), 20, 0x13, 42, false); err != nil {
		t.Fatalf("getOrCreate() error = %v", err)
	}
	e.clock.advance(DefaultSessionSearchAfter + time.Millisecond)
	e.m.Housekeep()
	if got := len(e.events(eventbus.CoreSearchReq)); got != 0 {
		t.Errorf("CoreSearchReq events = %d, want 0 for unmaintained session", got)
	}
	if e.m.SessionCount() != 1 {
		t.Error("unmaintained session evicted early")
	}
}

func TestHousekeeper_UnsetupNeedsVersionAndLabel(t *testing.T) {
	e := newEnv(t, nil)

	// Version unknown: no unsetup notice can be sent.
	if _, err := e.m.getOrCreate(e.peer.IP6(), e.peer.PublicKey(), 0, 0x13, 42, true); err != nil {
		t.Fatalf("getOrCreate() error = %v", err)
	}
	// First run burns the initial search; the second reaches the
	// unsetup branch, which must stay silent without a version.
	e.m.Housekeep()
	e.m.Housekeep()
	if got := len(e.nodeEvents(eventbus.CoreUnsetupSession)); got != 0 {
		t.Errorf("CoreUnsetupSession events = %d, want 0 without a version", got)
	}
}

// TestBufferFreshness: a parked message older than the buffer
// lifetime is dropped by the sweep, never delivered.
func TestBufferFreshness(t *testing.T) {
	e := newEnv(t, nil)

	e.m.HandleFromInside(insidePkt(addr.IP6{0xFC, 9}, addr.Key{}, 0, 0, 0,
		wire.ContentTypeIP6, []byte("stale")))
	if e.m.BufferedCount() != 1 {
		t.Fatal("message not parked")
	}

	e.clock.advance(DefaultBufferTimeout)
	e.m.Housekeep()
	if e.m.BufferedCount() != 0 {
		t.Error("stale parked message survived the sweep")
	}
}

func TestStartClose(t *testing.T) {
	report := test.CheckRoutines(t)
	defer report()

	e := newEnv(t, func(c *Config) { c.HousekeepingInterval = 10 * time.Millisecond })
	e.m.Start()
	time.Sleep(35 * time.Millisecond)
	e.m.Close()

	// Close is idempotent.
	e.m.Close()
}
