package session

import (
	"github.com/backwardn/cjdns/pkg/cryptoauth"
	"github.com/backwardn/cjdns/pkg/eventbus"
	"github.com/backwardn/cjdns/pkg/wire"
)

// handleBusEvent is the manager's event-bus endpoint, registered for
// PathfinderNode and PathfinderSessions at construction.
func (m *Manager) handleBusEvent(ev eventbus.PathfinderEvent, sourcePf uint32, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev {
	case eventbus.PathfinderSessions:
		m.reannounceSessions(sourcePf)
	case eventbus.PathfinderNode:
		m.nodeDiscovered(payload)
	default:
		m.log.Debugf("DROP unexpected bus event %s", ev)
	}
}

// reannounceSessions replies to a pathfinder's SESSIONS request with
// one session event per live entry, targeted back at the asker.
func (m *Manager) reannounceSessions(sourcePf uint32) {
	m.table.ForEach(func(s *Session) bool {
		m.sendSessionEvent(s, s.sendSwitchLabel, sourcePf, eventbus.CoreSession)
		return true
	})
}

// nodeDiscovered merges a pathfinder's node report. Reports for nodes
// we hold neither a session nor a parked message for are ignored, as
// are broken-path reports for unknown nodes. When the report makes a
// parked destination reachable the parked message is flushed through
// the encrypt path; when the session still lacks its key exchange the
// pathfinder is asked to restart handshake signalling.
func (m *Manager) nodeDiscovered(payload []byte) {
	node, err := eventbus.DecodeNode(payload)
	if err != nil {
		m.log.Debugf("DROP malformed node event: %v", err)
		return
	}

	sess := m.sessionForIP6(node.IP6)
	if sess == nil {
		if !m.bufs.has(node.IP6) {
			// A node we don't care about.
			return
		}
		if node.Metric == MetricDeadLink {
			// A broken path to a node we hold no session for.
			return
		}
	}

	sess, err = m.getOrCreate(node.IP6, node.PublicKey, node.Version,
		node.Path, node.Metric, false)
	if err != nil {
		m.log.Debugf("DROP node event for [%s]: %v", node.IP6, err)
		return
	}

	if m.bufs.has(node.IP6) && sess.ca.State() >= cryptoauth.StateReceivedKey {
		bm := m.bufs.take(node.IP6)
		rh, err := wire.DecodeRouteHeader(bm.pkt)
		if err != nil {
			m.log.Debugf("DROP malformed parked message for [%s]", node.IP6)
			return
		}
		m.readyToSend(rh, bm.pkt[wire.RouteHeaderSize:], sess)
	} else if sess.ca.State() < cryptoauth.StateReceivedKey {
		m.unsetupSession(sess)
	}
}
