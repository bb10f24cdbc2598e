package session

import (
	"strings"
	"testing"
)

func TestSessionStats(t *testing.T) {
	e := newEnv(t, nil)

	s, err := e.m.getOrCreate(e.peer.IP6(), e.peer.PublicKey(), 20, 0x13, 42, false)
	if err != nil {
		t.Fatalf("getOrCreate() error = %v", err)
	}

	stats, err := e.m.SessionStats(s.ReceiveHandle())
	if err != nil {
		t.Fatalf("SessionStats() error = %v", err)
	}
	if stats.Handle != s.ReceiveHandle() {
		t.Errorf("Handle = %d, want %d", stats.Handle, s.ReceiveHandle())
	}
	if stats.Metric != 42 || stats.Version != 20 {
		t.Errorf("Metric/Version = %d/%d, want 42/20", stats.Metric, stats.Version)
	}
	if stats.State != "INIT" {
		t.Errorf("State = %q, want INIT", stats.State)
	}
	if stats.IP6 != e.peer.IP6().String() {
		t.Errorf("IP6 = %q, want %q", stats.IP6, e.peer.IP6())
	}
	if !strings.HasPrefix(stats.Addr, "v20.") || !strings.HasSuffix(stats.Addr, ".k") {
		t.Errorf("Addr = %q, want v20.<path>.<key>.k form", stats.Addr)
	}

	if _, err := e.m.SessionStats(1); err != ErrUnknownHandle {
		t.Errorf("SessionStats(1) error = %v, want ErrUnknownHandle", err)
	}
}
