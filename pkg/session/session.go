package session

import (
	"github.com/backwardn/cjdns/pkg/addr"
	"github.com/backwardn/cjdns/pkg/cryptoauth"
)

// Session is the per-peer state: the owned crypto session plus the
// routing view (labels, metric, handles) and activity counters. All
// fields are guarded by the owning Manager.
type Session struct {
	ca *cryptoauth.Session

	// ip6 is the table key. It always equals the address derived from
	// the peer key once that key is known (checked lazily on lookup).
	ip6 addr.IP6

	// version is the peer protocol version, 0 while unknown.
	version uint32

	// sendSwitchLabel routes toward the peer, recvSwitchLabel is the
	// return path packets from the peer arrived over. 0 = unknown.
	sendSwitchLabel uint64
	recvSwitchLabel uint64

	// metric is the cost of sendSwitchLabel; MetricDeadLink when the
	// path is known broken.
	metric uint32

	// sendHandle is written into outbound data frames; learned from
	// the peer's handshake. receiveHandle identifies this session in
	// frames the peer sends us.
	sendHandle    uint32
	receiveHandle uint32

	bytesIn  uint64
	bytesOut uint64

	// Millisecond clocks. timeOfKeepAliveIn counts any authenticated
	// traffic and drives the timeout; timeOfLastIn/-Out only count
	// user traffic, not the DHT channel.
	timeOfLastIn      int64
	timeOfLastOut     int64
	timeOfKeepAliveIn int64
	lastSearchTime    int64

	// maintainSession makes the housekeeper re-search and re-offer
	// this session; false means an external owner (a pathfinder)
	// keeps it alive itself. Sticky: once set it stays set.
	maintainSession bool

	// foundKey is flipped by the lazy key-consistency check once the
	// crypto session learned the peer key.
	foundKey bool

	// slot is the table slot index backing receiveHandle.
	slot int
}

// IP6 returns the peer overlay address this session is keyed by.
func (s *Session) IP6() addr.IP6 { return s.ip6 }

// Version returns the peer protocol version, 0 if unknown.
func (s *Session) Version() uint32 { return s.version }

// ReceiveHandle returns the handle identifying this session in
// inbound data frames.
func (s *Session) ReceiveHandle() uint32 { return s.receiveHandle }

// SendHandle returns the peer-assigned handle for outbound data
// frames, 0 before the handshake supplied it.
func (s *Session) SendHandle() uint32 { return s.sendHandle }

// Metric returns the current path metric.
func (s *Session) Metric() uint32 { return s.metric }

// SendSwitchLabel returns the forward path label, 0 if unknown.
func (s *Session) SendSwitchLabel() uint64 { return s.sendSwitchLabel }

// RecvSwitchLabel returns the return path label, 0 if unknown.
func (s *Session) RecvSwitchLabel() uint64 { return s.recvSwitchLabel }

// State returns the crypto session handshake state.
func (s *Session) State() cryptoauth.State { return s.ca.State() }

// HerPublicKey returns the peer public key, zero while unknown.
func (s *Session) HerPublicKey() addr.Key { return s.ca.HerPublicKey() }

// Established reports whether the session can carry user traffic.
func (s *Session) Established() bool {
	return s.ca.State() >= cryptoauth.StateReceivedKey
}
