package session

import (
	"github.com/backwardn/cjdns/pkg/addr"
)

// Stats is the read-only per-session view surfaced to the admin
// interface.
type Stats struct {
	// Addr is the node identity in text form:
	// v<version>.<reversed path>.<base32 key>.k
	Addr string

	// IP6 is the derived overlay address in plain text form.
	IP6 string

	// State is the handshake state name.
	State string

	// Handle is our receive handle, SendHandle the peer's.
	Handle     uint32
	SendHandle uint32

	// Metric is the current path cost.
	Metric uint32

	// Version is the peer protocol version.
	Version uint32

	BytesIn  uint64
	BytesOut uint64

	// Anti-replay counters from the crypto session.
	Duplicates         uint32
	LostPackets        uint32
	ReceivedOutOfRange uint32
}

// SessionStats reports the statistics of the session a handle names.
func (m *Manager) SessionStats(handle uint32) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessionForHandle(handle)
	if s == nil {
		return nil, ErrUnknownHandle
	}
	caStats := s.ca.Stats()
	return &Stats{
		Addr:               addr.Format(s.version, s.sendSwitchLabel, s.ca.HerPublicKey()),
		IP6:                s.ip6.String(),
		State:              s.ca.State().String(),
		Handle:             s.receiveHandle,
		SendHandle:         s.sendHandle,
		Metric:             s.metric,
		Version:            s.version,
		BytesIn:            s.bytesIn,
		BytesOut:           s.bytesOut,
		Duplicates:         caStats.Duplicates,
		LostPackets:        caStats.LostPackets,
		ReceivedOutOfRange: caStats.ReceivedOutOfRange,
	}, nil
}
