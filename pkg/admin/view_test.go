package admin

import (
	"errors"
	"testing"

	"github.com/backwardn/cjdns/pkg/cryptoauth"
	"github.com/backwardn/cjdns/pkg/eventbus"
	"github.com/backwardn/cjdns/pkg/session"
	"github.com/backwardn/cjdns/pkg/wire"
)

// busAddNode creates a session for peer by sending a fully addressed
// DHT datagram through the inside interface.
func busAddNode(m *session.Manager, peer *cryptoauth.CryptoAuth) error {
	rh := wire.RouteHeader{
		SwitchHeader: wire.SwitchHeader{Label: 0x13, Version: wire.SwitchHeaderCurrentVersion},
		PublicKey:    peer.PublicKey(),
		Version:      20,
		IP6:          peer.IP6(),
	}
	dh := wire.DataHeader{Version: wire.DataHeaderCurrentVersion, ContentType: wire.ContentTypeDHT}
	m.HandleFromInside(append(rh.Encode(), dh.Encode()...))
	if m.SessionForIP6(peer.IP6()) == nil {
		return errors.New("session not created")
	}
	return nil
}

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	priv, _, err := cryptoauth.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	ca, err := cryptoauth.New(cryptoauth.Config{PrivateKey: priv})
	if err != nil {
		t.Fatalf("cryptoauth.New() error = %v", err)
	}
	m, err := session.NewManager(session.Config{
		CryptoAuth: ca,
		Bus:        eventbus.NewEmitter(eventbus.Config{}),
		SwitchOut:  func([]byte) {},
		InsideOut:  func([]byte) {},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

// addPeers creates n sessions by routing outbound traffic to n fresh
// peer identities.
func addPeers(t *testing.T, m *session.Manager, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		priv, _, err := cryptoauth.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair() error = %v", err)
		}
		peer, err := cryptoauth.New(cryptoauth.Config{PrivateKey: priv})
		if err != nil {
			t.Fatalf("cryptoauth.New() error = %v", err)
		}
		if s := m.SessionForIP6(peer.IP6()); s != nil {
			t.Fatal("duplicate peer identity")
		}
		if err := busAddNode(m, peer); err != nil {
			t.Fatalf("adding peer: %v", err)
		}
	}
}

func TestHandlesPaging(t *testing.T) {
	m := newManager(t)
	addPeers(t, m, 5)

	v, err := NewSessionView(Config{Manager: m, PageSize: 2})
	if err != nil {
		t.Fatalf("NewSessionView() error = %v", err)
	}

	var all []uint32
	page := 0
	for {
		p := v.Handles(page)
		if p.Total != 5 {
			t.Errorf("page %d Total = %d, want 5", page, p.Total)
		}
		all = append(all, p.Handles...)
		if !p.More {
			break
		}
		page++
	}
	if len(all) != 5 {
		t.Fatalf("enumerated %d handles, want 5", len(all))
	}
	if page != 2 {
		t.Errorf("pages = %d, want 3 pages (0..2)", page+1)
	}
	seen := make(map[uint32]bool)
	for _, h := range all {
		if seen[h] {
			t.Errorf("handle %d enumerated twice", h)
		}
		seen[h] = true
	}

	if p := v.Handles(99); len(p.Handles) != 0 || p.More {
		t.Error("page past the end is not empty")
	}
	if p := v.Handles(-1); len(p.Handles) != 0 {
		t.Error("negative page is not empty")
	}
}

func TestViewSessionStats(t *testing.T) {
	m := newManager(t)
	addPeers(t, m, 1)

	v, err := NewSessionView(Config{Manager: m})
	if err != nil {
		t.Fatalf("NewSessionView() error = %v", err)
	}
	p := v.Handles(0)
	if len(p.Handles) != 1 {
		t.Fatalf("handles = %v, want one", p.Handles)
	}
	stats, err := v.SessionStats(p.Handles[0])
	if err != nil {
		t.Fatalf("SessionStats() error = %v", err)
	}
	if stats.Handle != p.Handles[0] {
		t.Errorf("Handle = %d, want %d", stats.Handle, p.Handles[0])
	}

	if _, err := v.SessionStats(1); err != session.ErrUnknownHandle {
		t.Errorf("SessionStats(1) error = %v, want ErrUnknownHandle", err)
	}
}

func TestNewSessionView_RequiresManager(t *testing.T) {
	if _, err := NewSessionView(Config{}); err != ErrNoManager {
		t.Errorf("NewSessionView() error = %v, want ErrNoManager", err)
	}
}
